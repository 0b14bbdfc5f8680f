package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/MimeLyc/ytscribe/internal/replicate"
	"github.com/MimeLyc/ytscribe/pkg/log"
)

const (
	DefaultModel     = "vaibhavs10/incredibly-fast-whisper:3ab86df6c8f54c11309d4d1f930ac292bad43ace52d10c80d87eb258b3c9f79c"
	DefaultBatchSize = 64

	// autoLanguage is what the model expects for language auto-detection.
	autoLanguage = "None"

	minConfidence = 0.5
)

// Runner runs one prediction and returns its raw output.
type Runner interface {
	Run(ctx context.Context, model replicate.ModelRef, input replicate.Input) (json.RawMessage, error)
	// FileInput turns a local file into a value the model can fetch.
	FileInput(ctx context.Context, path string) (string, error)
}

type Options struct {
	Model     string
	Language  string
	BatchSize int
	DryRun    bool
}

// Whisper transcribes audio files with a hosted Whisper model.
type Whisper struct {
	runner    Runner
	model     replicate.ModelRef
	language  string
	batchSize int
	dryRun    bool
}

func NewWhisper(runner Runner, opts Options) (*Whisper, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	model, err := replicate.ParseModelRef(opts.Model)
	if err != nil {
		return nil, err
	}

	lang, err := ModelLanguage(opts.Language)
	if err != nil {
		return nil, err
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &Whisper{
		runner:    runner,
		model:     model,
		language:  lang,
		batchSize: opts.BatchSize,
		dryRun:    opts.DryRun,
	}, nil
}

// Transcribe returns the text spoken in the audio file, or nil on a dry run.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (*string, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}

	if w.dryRun {
		log.Info("Skipping call to Replicate API due to --dry-run, model=%s", w.model)
		return nil, nil
	}

	audio, err := w.runner.FileInput(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	raw, err := w.runner.Run(ctx, w.model, w.input(audio))
	if err != nil {
		return nil, err
	}

	var output struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fmt.Errorf("unexpected transcription output %s: %w", truncate(string(raw)), err)
	}
	if output.Text == nil {
		return nil, fmt.Errorf("transcription output has no text field: %s", truncate(string(raw)))
	}

	return output.Text, nil
}

func (w *Whisper) input(audio string) replicate.Input {
	return replicate.Input{
		"audio":         audio,
		"task":          "transcribe",
		"language":      w.language,
		"timestamp":     "chunk",
		"batch_size":    w.batchSize,
		"diarise_audio": false,
	}
}

// ModelLanguage maps a configured language to the model's language value.
//
// "auto" and empty select auto-detection, anything else must be a BCP 47 tag and
// is sent as its lower-case English name, e.g. "de" -> "german".
func ModelLanguage(raw string) (string, error) {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") || lang == autoLanguage {
		return autoLanguage, nil
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", raw, err)
	}
	base, _ := tag.Base()
	name := display.English.Languages().Name(language.Make(base.String()))
	if name == "" {
		return "", fmt.Errorf("unsupported language %q", raw)
	}

	return strings.ToLower(name), nil
}

// DetectLanguage guesses the language of a transcript and returns its ISO 639-1 code,
// empty when the text is too short or mixed to tell.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if info.Confidence < minConfidence {
		return ""
	}
	return info.Lang.Iso6391()
}

func truncate(s string) string {
	const maxLen = 200
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
