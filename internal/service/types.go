package service

import "context"

// Stage is one state of a pipeline run.
type Stage string

const (
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageSummarizing  Stage = "summarizing"
	StageDone         Stage = "done"
)

// Downloader places the audio track of url in dir and returns its path.
type Downloader interface {
	Download(ctx context.Context, url string, dir string) (string, error)
}

// Transcriber turns an audio file into text, nil text means the call was skipped.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*string, error)
}

// Summarizer condenses text, nil in or nil out means nothing to report.
type Summarizer interface {
	Summarize(ctx context.Context, text *string) (*string, error)
}

// Result holds the texts produced by one run.
//
// Transcript is set as soon as transcription succeeded, also when summarization
// fails afterwards. Final is the text to print: the summary when a summarizer is
// configured, otherwise the transcript. Language is the detected language of the
// transcript, empty when unknown or no detector is configured.
type Result struct {
	Transcript *string
	Summary    *string
	Final      *string
	Language   string
}

// FinalText returns Final or an empty string when there is nothing to print.
func (r Result) FinalText() string {
	if r.Final == nil {
		return ""
	}
	return *r.Final
}
