package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MimeLyc/ytscribe/internal/replicate"
	"github.com/MimeLyc/ytscribe/pkg/log"
)

const (
	DefaultModel    = "meta/meta-llama-3.1-405b-instruct"
	DefaultMaxWords = 150
)

// Runner runs one prediction and returns its raw output.
type Runner interface {
	Run(ctx context.Context, model replicate.ModelRef, input replicate.Input) (json.RawMessage, error)
}

type Options struct {
	Model    string
	MaxWords int
	DryRun   bool
}

// Llama condenses text with a hosted instruction-tuned language model.
type Llama struct {
	runner   Runner
	model    replicate.ModelRef
	maxWords int
	dryRun   bool
}

func NewLlama(runner Runner, opts Options) (*Llama, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	model, err := replicate.ParseModelRef(opts.Model)
	if err != nil {
		return nil, err
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultMaxWords
	}

	return &Llama{
		runner:   runner,
		model:    model,
		maxWords: opts.MaxWords,
		dryRun:   opts.DryRun,
	}, nil
}

// SystemPrompt is the instruction sent along with the text.
func (l *Llama) SystemPrompt() string {
	return fmt.Sprintf("Summarize the text in no more than %d words.", l.maxWords)
}

// Summarize returns the summary of text. A nil text or a dry run yields nil.
func (l *Llama) Summarize(ctx context.Context, text *string) (*string, error) {
	if text == nil {
		log.Info("No transcript to summarize")
		return nil, nil
	}
	if l.dryRun {
		log.Info("Skipping call to Replicate API due to --dry-run, model=%s", l.model)
		return nil, nil
	}

	raw, err := l.runner.Run(ctx, l.model, replicate.Input{
		"system_prompt": l.SystemPrompt(),
		"prompt":        *text,
	})
	if err != nil {
		return nil, err
	}

	summary, err := joinChunks(raw)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// joinChunks concatenates the streamed output tokens in order, without separator.
func joinChunks(raw json.RawMessage) (string, error) {
	var chunks []string
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return "", fmt.Errorf("unexpected summarization output, want a list of strings: %w", err)
	}
	if chunks == nil {
		return "", fmt.Errorf("summarization returned no output")
	}

	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(chunk)
	}
	return b.String(), nil
}
