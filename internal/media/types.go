package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoAudioProduced means the download finished without leaving exactly one audio file.
var ErrNoAudioProduced = errors.New("no audio produced")

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// DownloadError is a failed download tool invocation.
type DownloadError struct {
	URL string
	Log CommandLog
	Err error
}

func (e *DownloadError) Error() string {
	msg := fmt.Sprintf("download of %s failed (cmd=%s exit=%d): %v", e.URL, e.Log.Command, e.Log.ExitCode, e.Err)
	if stderr := strings.TrimSpace(e.Log.Stderr); stderr != "" {
		msg += ": " + lastLine(stderr)
	}
	return msg
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
