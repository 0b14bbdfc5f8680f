package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/ytscribe/pkg/file"
	"github.com/MimeLyc/ytscribe/pkg/log"
)

const (
	DefaultYtDlpPath       = "yt-dlp"
	DefaultRetries         = 10
	DefaultFragmentRetries = 10

	AudioExt = "mp3"
	// VBR quality 5 of the LAME encoder, yt-dlp's default for mp3
	audioQuality = "5"
	outputName   = "res"
)

type YtDlpOptions struct {
	Path            string
	Retries         int
	FragmentRetries int
}

// YtDlp extracts the best audio stream of a video with yt-dlp and transcodes it to mp3.
type YtDlp struct {
	path            string
	retries         int
	fragmentRetries int
	runner          commandRunner
	lookPath        func(file string) (string, error)
	stat            func(name string) (os.FileInfo, error)
}

func NewYtDlp(opts YtDlpOptions) *YtDlp {
	if opts.Path == "" {
		opts.Path = DefaultYtDlpPath
	}
	return &YtDlp{
		path:            opts.Path,
		retries:         opts.Retries,
		fragmentRetries: opts.FragmentRetries,
		runner:          &execRunner{},
		lookPath:        exec.LookPath,
		stat:            os.Stat,
	}
}

// Download runs yt-dlp for url with dir as output directory and returns the produced mp3.
//
// Exactly one mp3 file must be left in dir, zero or several fail with ErrNoAudioProduced.
func (y *YtDlp) Download(ctx context.Context, url string, dir string) (string, error) {
	args := y.downloadArgs(url, dir)
	cmdLog := CommandLog{Command: y.path, Args: args, ExitCode: -1}

	cmdPath, err := y.lookPath(y.path)
	if err != nil {
		return "", &DownloadError{URL: url, Log: cmdLog, Err: err}
	}

	log.Info("Downloading %s with yt-dlp...", url)
	log.Debug("yt-dlp arguments: %v", args)

	result, err := y.runner.Run(ctx, cmdPath, args...)
	cmdLog.ExitCode = result.ExitCode
	cmdLog.Stdout = result.Stdout
	cmdLog.Stderr = result.Stderr
	if err != nil {
		dlErr := &DownloadError{URL: url, Log: cmdLog, Err: err}
		if ctx.Err() != nil {
			return "", dlErr
		}
		// with --no-abort-on-error yt-dlp exits 1 after ignored errors, the audio may still be there
		audioPath, locateErr := y.locateAudio(dir)
		if locateErr != nil {
			return "", dlErr
		}
		log.Warn("yt-dlp exited with code %d but produced %s: %s",
			result.ExitCode, audioPath, lastLine(strings.TrimSpace(result.Stderr)))
		return audioPath, nil
	}

	audioPath, err := y.locateAudio(dir)
	if err != nil {
		return "", err
	}

	log.Info("Download done, file %s", audioPath)
	return audioPath, nil
}

func (y *YtDlp) locateAudio(dir string) (string, error) {
	found, err := file.FindByExt(dir, AudioExt)
	if err != nil {
		return "", fmt.Errorf("%w: cannot list %s: %v", ErrNoAudioProduced, dir, err)
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no .%s file in %s", ErrNoAudioProduced, AudioExt, dir)
	case 1:
	default:
		return "", fmt.Errorf("%w: ambiguous result, %d .%s files in %s: %v",
			ErrNoAudioProduced, len(found), AudioExt, dir, found)
	}

	if _, err := y.stat(found[0]); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoAudioProduced, err)
	}
	return found[0], nil
}

func (y *YtDlp) downloadArgs(url, dir string) []string {
	return []string{
		"--format", "bestaudio/best",
		"--extract-audio",
		"--audio-format", AudioExt,
		"--audio-quality", audioQuality,
		"--retries", strconv.Itoa(y.retries),
		"--fragment-retries", strconv.Itoa(y.fragmentRetries),
		// skip unavailable items instead of aborting, only extraction errors are fatal
		"--no-abort-on-error",
		"--no-progress",
		"--no-warnings",
		"--quiet",
		"--output", filepath.Join(dir, outputName+".%(ext)s"),
		"--", url,
	}
}
