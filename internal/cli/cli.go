package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MimeLyc/ytscribe/internal/config"
	"github.com/MimeLyc/ytscribe/internal/media"
	"github.com/MimeLyc/ytscribe/internal/replicate"
	"github.com/MimeLyc/ytscribe/internal/service"
	"github.com/MimeLyc/ytscribe/internal/summarizer"
	"github.com/MimeLyc/ytscribe/internal/transcriber"
	"github.com/MimeLyc/ytscribe/pkg/log"
)

// Process exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// Run executes one command line invocation of variant and returns the exit code.
//
// The final text goes to stdout, logs and usage go to stderr.
func Run(ctx context.Context, variant config.Variant, args []string, stdout, stderr io.Writer) int {
	logger := log.NewWriterLogger(stderr, log.LevelError)
	log.SetLogger(logger)

	cfg, err := config.Load(variant, args, config.WithOutput(stderr))
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return ExitOK
		}
		log.Error("%v", err)
		return ExitUsage
	}
	logger.SetLevel(cfg.Log.LogLevel())
	log.Debug("Arguments: %+v", cfg.Redacted())

	errHandler := service.NewDefaultErrorHandler()

	pipeline, err := newPipeline(variant, cfg, stdout)
	if err != nil {
		errHandler.Handle(service.WrapError(err, service.ErrConfig, "invalid configuration"))
		return ExitFailure
	}

	res, err := pipeline.Run(ctx, cfg.URL)
	if err != nil {
		errHandler.Handle(err)
		return ExitFailure
	}

	if res.Language != "" {
		log.Info("Transcript language: %s", res.Language)
	}
	if text := res.FinalText(); text != "" {
		fmt.Fprintln(stdout, text)
	}
	return ExitOK
}

func newPipeline(variant config.Variant, cfg *config.Config, stdout io.Writer) (*service.Pipeline, error) {
	client, err := replicate.NewClient(&replicate.Config{
		APIToken:      cfg.Replicate.APIToken,
		APIURL:        cfg.Replicate.APIURL,
		Timeout:       cfg.Replicate.Timeout,
		UploadTimeout: cfg.Replicate.UploadTimeout,
		SyncWait:      cfg.Replicate.SyncWait,
		PollInterval:  cfg.Replicate.PollInterval,
		MaxWait:       cfg.Replicate.MaxWait,
		UserAgent:     variant.Name,
	})
	if err != nil {
		return nil, err
	}

	whisper, err := transcriber.NewWhisper(client, transcriber.Options{
		Model:     cfg.Transcribe.Model,
		Language:  cfg.Transcribe.Language,
		BatchSize: cfg.Transcribe.BatchSize,
		DryRun:    cfg.DryRun,
	})
	if err != nil {
		return nil, err
	}

	downloader := media.NewYtDlp(media.YtDlpOptions{
		Path:            cfg.Download.YtDlpPath,
		Retries:         cfg.Download.Retries,
		FragmentRetries: cfg.Download.FragmentRetries,
	})

	opts := []service.Option{
		service.WithTempBase(cfg.Download.TempDir),
		service.WithStageHook(stageTimer()),
		service.WithLanguageDetector(transcriber.DetectLanguage),
	}

	if cfg.Summarize.Enabled {
		llama, err := summarizer.NewLlama(client, summarizer.Options{
			Model:    cfg.Summarize.Model,
			MaxWords: cfg.Summarize.MaxWords,
			DryRun:   cfg.DryRun,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSummarizer(llama))

		if cfg.Summarize.PrintTranscript {
			opts = append(opts, service.WithTranscriptHook(func(text string) {
				fmt.Fprintln(stdout, text)
				fmt.Fprintln(stdout)
			}))
		}
	}

	return service.NewPipeline(downloader, whisper, opts...), nil
}

// stageTimer logs how long each stage took once the next one starts.
func stageTimer() func(service.Stage) {
	var (
		current service.Stage
		started time.Time
	)
	return func(stage service.Stage) {
		now := time.Now()
		if current != "" {
			log.Info("Stage %s took %s", current, now.Sub(started).Round(time.Millisecond))
		}
		current, started = stage, now
	}
}
