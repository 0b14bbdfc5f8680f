package service

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/MimeLyc/ytscribe/internal/media"
	"github.com/MimeLyc/ytscribe/pkg/log"
)

const tempPattern = "ytscribe-*"

// Pipeline runs download, transcription and the optional summarization in sequence.
//
// Each run owns a fresh temporary directory that is removed when Run returns.
type Pipeline struct {
	downloader   Downloader
	transcriber  Transcriber
	summarizer   Summarizer
	tempBase     string
	onStage      func(stage Stage)
	onTranscript func(text string)
	detectLang   func(text string) string
	mkdirTemp    func(dir, pattern string) (string, error)
	removeAll    func(path string) error
}

// Option is a function type for configuring Pipeline
type Option func(*Pipeline)

// WithSummarizer adds the summarization stage.
func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithTempBase creates run directories under dir instead of os.TempDir().
func WithTempBase(dir string) Option {
	return func(p *Pipeline) { p.tempBase = dir }
}

// WithStageHook calls fn on every stage transition.
func WithStageHook(fn func(stage Stage)) Option {
	return func(p *Pipeline) { p.onStage = fn }
}

// WithTranscriptHook calls fn with the transcript before summarization starts.
func WithTranscriptHook(fn func(text string)) Option {
	return func(p *Pipeline) { p.onTranscript = fn }
}

// WithLanguageDetector sets Result.Language from the transcript with detect.
func WithLanguageDetector(detect func(text string) string) Option {
	return func(p *Pipeline) { p.detectLang = detect }
}

func NewPipeline(downloader Downloader, transcriber Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{
		downloader:  downloader,
		transcriber: transcriber,
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes one video URL.
//
// On failure the returned error is a *PipelineError and the Result keeps whatever
// was produced before the failing stage.
func (p *Pipeline) Run(ctx context.Context, url string) (res Result, err error) {
	if strings.TrimSpace(url) == "" {
		return res, NewError(ErrConfig, "video URL is required").WithStage(StageDownloading)
	}

	tempDir, err := p.mkdirTemp(p.tempBase, tempPattern)
	if err != nil {
		return res, WrapError(err, ErrDownloadFailed, "failed to create temporary directory").
			WithStage(StageDownloading)
	}
	log.Debug("Created temporary directory %s", tempDir)
	defer func() {
		if rmErr := p.removeAll(tempDir); rmErr != nil {
			log.Warn("Failed to remove temporary directory %s: %v", tempDir, rmErr)
			return
		}
		log.Debug("Removed temporary directory %s", tempDir)
	}()

	p.emit(StageDownloading)
	audioPath, err := p.downloader.Download(ctx, url, tempDir)
	if err != nil {
		errType := ErrDownloadFailed
		if errors.Is(err, media.ErrNoAudioProduced) {
			errType = ErrNoAudioProduced
		}
		return res, WrapError(err, errType, "download failed").
			WithStage(StageDownloading).
			WithContext("url", url)
	}

	p.emit(StageTranscribing)
	transcript, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return res, WrapError(err, ErrTranscriptionFailed, "transcription failed").
			WithStage(StageTranscribing).
			WithContext("url", url)
	}
	res.Transcript = transcript
	res.Final = transcript
	if transcript != nil && p.detectLang != nil {
		res.Language = p.detectLang(*transcript)
	}

	if p.summarizer != nil {
		if transcript != nil && p.onTranscript != nil {
			p.onTranscript(*transcript)
		}

		p.emit(StageSummarizing)
		summary, err := p.summarizer.Summarize(ctx, transcript)
		if err != nil {
			res.Final = nil
			return res, WrapError(err, ErrSummarizationFailed, "summarization failed").
				WithStage(StageSummarizing).
				WithContext("url", url)
		}
		res.Summary = summary
		res.Final = summary
	}

	p.emit(StageDone)
	return res, nil
}

func (p *Pipeline) emit(stage Stage) {
	log.Debug("Pipeline stage: %s", stage)
	if p.onStage != nil {
		p.onStage(stage)
	}
}
