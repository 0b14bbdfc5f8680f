package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

// ErrHelp is returned by Load when -h/--help was requested.
var ErrHelp = pflag.ErrHelp

// Variant describes one command line program.
type Variant struct {
	Name      string
	Summarize bool
}

var (
	TranscribeVariant = Variant{Name: "yt-transcribe"}
	SummarizeVariant  = Variant{Name: "yt-summarize", Summarize: true}
)

// DefaultDotenvFile is read from the working directory when present.
const DefaultDotenvFile = ".env"

type loader struct {
	environ    []string
	dotenvPath string
	output     io.Writer
}

// LoadOption is a function type for configuring Load
type LoadOption func(*loader)

// WithEnviron replaces os.Environ() as the environment source.
func WithEnviron(environ []string) LoadOption {
	return func(l *loader) { l.environ = environ }
}

// WithDotenv reads path instead of .env, empty disables it.
func WithDotenv(path string) LoadOption {
	return func(l *loader) { l.dotenvPath = path }
}

// WithOutput sets where usage and flag errors are written, stderr by default.
func WithOutput(w io.Writer) LoadOption {
	return func(l *loader) { l.output = w }
}

type flagValues struct {
	token           string
	tokenAlias      string
	verbose         bool
	debug           bool
	dryRun          bool
	retries         int
	fragmentRetries int
	language        string
	configFile      string
	printTranscript bool
}

// Load builds the run configuration for variant from command line args.
// Priority: flags > environment variables > .env > config file > defaults.
func Load(variant Variant, args []string, opts ...LoadOption) (*Config, error) {
	l := &loader{output: os.Stderr, dotenvPath: DefaultDotenvFile}
	for _, opt := range opts {
		opt(l)
	}
	if l.environ == nil {
		l.environ = os.Environ()
	}

	var fv flagValues
	fs := newFlagSet(variant, &fv, l.output)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("expected exactly one video URL, got %d arguments", fs.NArg())
	}

	settings, err := readConfigFile(fv.configFile, fs.Changed("config"))
	if err != nil {
		return nil, err
	}
	cfg, err := fromEnvironment(l.environ, settings.env, readDotenv(l.dotenvPath))
	if err != nil {
		return nil, err
	}
	if err := settings.applyOptions(fs, fv.configFile); err != nil {
		return nil, err
	}

	cfg.URL = fs.Arg(0)
	cfg.DryRun = fv.dryRun
	cfg.Summarize.Enabled = variant.Summarize
	cfg.Summarize.PrintTranscript = fv.printTranscript
	cfg.Log.Verbose = fv.verbose
	if fs.Changed("debug") {
		cfg.Log.Debug = Switch(fv.debug)
	}
	switch {
	case fs.Changed("replicate-api-token"):
		cfg.Replicate.APIToken = fv.token
	case fs.Changed("token"):
		cfg.Replicate.APIToken = fv.tokenAlias
	}
	if fs.Changed("retries") {
		cfg.Download.Retries = fv.retries
	}
	if fs.Changed("fragment-retries") {
		cfg.Download.FragmentRetries = fv.fragmentRetries
	}
	if fs.Changed("language") {
		cfg.Transcribe.Language = fv.language
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newFlagSet(variant Variant, fv *flagValues, output io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(variant.Name, pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.SortFlags = false

	fs.StringVarP(&fv.token, "replicate-api-token", "t", "",
		"Replicate API token - get yours at https://replicate.com/account/api-tokens (env REPLICATE_API_TOKEN)")
	fs.StringVar(&fv.tokenAlias, "token", "", "alias of --replicate-api-token")
	fs.BoolVarP(&fv.verbose, "verbose", "v", false, "log progress information")
	fs.BoolVarP(&fv.debug, "debug", "d", false, "log debug information (env DEBUG)")
	if variant.Summarize {
		fs.BoolVarP(&fv.dryRun, "dry-run", "n", false, "don't call Replicate API")
	} else {
		fs.BoolVarP(&fv.dryRun, "dry-run", "n", false, "don't process file with Whisper")
	}
	fs.IntVar(&fv.retries, "retries", 10, "yt-dlp retries of the whole download (env YTDLP_RETRIES)")
	fs.IntVar(&fv.fragmentRetries, "fragment-retries", 10, "yt-dlp retries of one fragment (env YTDLP_FRAGMENT_RETRIES)")
	fs.StringVar(&fv.language, "language", "auto", "spoken language as BCP 47 tag, or auto (env TRANSCRIBE_LANGUAGE)")
	fs.StringVar(&fv.configFile, "config", DefaultConfigFile, "config file with option = value lines")
	if variant.Summarize {
		fs.BoolVar(&fv.printTranscript, "print-transcript", false, "print the transcript before summarizing it")
	}

	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: %s [flags] url\n\nFlags:\n", variant.Name)
		fs.PrintDefaults()
	}
	return fs
}
