package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/ytscribe/pkg/log"
)

type ErrorType int

const (
	ErrDownloadFailed ErrorType = iota
	ErrNoAudioProduced
	ErrTranscriptionFailed
	ErrSummarizationFailed
	ErrConfig
	ErrUnknown
)

// PipelineError is a stage-aware error of one pipeline run.
type PipelineError struct {
	Type    ErrorType
	Stage   Stage
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *PipelineError {
	return &PipelineError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *PipelineError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

func (e *PipelineError) WithContext(key string, value any) *PipelineError {
	e.Context[key] = value
	return e
}

func (e *PipelineError) WithStage(stage Stage) *PipelineError {
	e.Stage = stage
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrDownloadFailed:
		return "DownloadFailed"
	case ErrNoAudioProduced:
		return "NoAudioProduced"
	case ErrTranscriptionFailed:
		return "TranscriptionFailed"
	case ErrSummarizationFailed:
		return "SummarizationFailed"
	case ErrConfig:
		return "Config"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *PipelineError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice, it reports false for errors that are not *PipelineError.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var pErr *PipelineError
	if !errors.As(err, &pErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	log.Error("%v", err)
	log.Error("Advice: %s", h.GetAdvice(pErr))
	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *PipelineError) string {
	switch err.Type {
	case ErrDownloadFailed:
		return "Check the URL, your network connection, and that yt-dlp and ffmpeg are installed and up to date"
	case ErrNoAudioProduced:
		return "yt-dlp finished without a single mp3 file; make sure ffmpeg is installed and the URL points to one video, not a playlist"
	case ErrTranscriptionFailed, ErrSummarizationFailed:
		return "Check the Replicate API token, your account balance, and the model status at https://replicate.com"
	case ErrConfig:
		return "Check the command line flags, environment variables, and replicate.conf"
	default:
		return "Please review detailed error information and rerun with --debug"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var pErr *PipelineError
	if errors.As(err, &pErr) {
		return pErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *PipelineError {
	return NewErrorWithCause(errorType, message, err)
}
