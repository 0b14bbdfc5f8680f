package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MimeLyc/ytscribe/pkg/log"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "replicate.conf"

// Config holds the configuration of one run
// Values come from flags, environment variables, .env and the config file, in that order of priority
//
// Environment Variables:
// Replicate:
// - REPLICATE_API_TOKEN: API token (required)
// - REPLICATE_API_URL: API base URL (default: https://api.replicate.com/v1)
// - REPLICATE_TIMEOUT: per-request timeout (default: 60s)
// - REPLICATE_UPLOAD_TIMEOUT: timeout of one audio upload (default: 10m)
// - REPLICATE_SYNC_WAIT: how long the API may hold a create request, 0 to poll only (default: 30s)
// - REPLICATE_POLL_INTERVAL: first delay between prediction polls (default: 1s)
// - REPLICATE_MAX_WAIT: longest wait for one prediction (default: 30m)
//
// Download:
// - YTDLP_PATH: yt-dlp executable (default: yt-dlp)
// - YTDLP_RETRIES: whole-download retries (default: 10)
// - YTDLP_FRAGMENT_RETRIES: per-fragment retries (default: 10)
// - YTSCRIBE_TMPDIR: parent of the per-run temporary directory (default: system temp dir)
//
// Models:
// - TRANSCRIBE_MODEL, TRANSCRIBE_LANGUAGE (default: auto), TRANSCRIBE_BATCH_SIZE (default: 64)
// - SUMMARIZE_MODEL, SUMMARIZE_MAX_WORDS (default: 150)
//
// Logging:
// - LOG_LEVEL: debug, info, warn or error (default: error)
// - DEBUG: debug logging when truthy (1, true, yes, on)
type Config struct {
	URL    string `json:"url"`
	DryRun bool   `json:"dry_run"`

	Replicate  ReplicateConfig  `json:"replicate"`
	Download   DownloadConfig   `json:"download"`
	Transcribe TranscribeConfig `json:"transcribe"`
	Summarize  SummarizeConfig  `json:"summarize"`
	Log        LogConfig        `json:"log"`
}

type ReplicateConfig struct {
	APIToken      string        `json:"api_token" env:"REPLICATE_API_TOKEN"`
	APIURL        string        `json:"api_url" env:"REPLICATE_API_URL" envDefault:"https://api.replicate.com/v1"`
	Timeout       time.Duration `json:"timeout" env:"REPLICATE_TIMEOUT" envDefault:"60s"`
	UploadTimeout time.Duration `json:"upload_timeout" env:"REPLICATE_UPLOAD_TIMEOUT" envDefault:"10m"`
	SyncWait      time.Duration `json:"sync_wait" env:"REPLICATE_SYNC_WAIT" envDefault:"30s"`
	PollInterval  time.Duration `json:"poll_interval" env:"REPLICATE_POLL_INTERVAL" envDefault:"1s"`
	MaxWait       time.Duration `json:"max_wait" env:"REPLICATE_MAX_WAIT" envDefault:"30m"`
}

type DownloadConfig struct {
	YtDlpPath       string `json:"ytdlp_path" env:"YTDLP_PATH" envDefault:"yt-dlp"`
	Retries         int    `json:"retries" env:"YTDLP_RETRIES" envDefault:"10"`
	FragmentRetries int    `json:"fragment_retries" env:"YTDLP_FRAGMENT_RETRIES" envDefault:"10"`
	TempDir         string `json:"temp_dir" env:"YTSCRIBE_TMPDIR"`
}

type TranscribeConfig struct {
	Model     string `json:"model" env:"TRANSCRIBE_MODEL" envDefault:"vaibhavs10/incredibly-fast-whisper:3ab86df6c8f54c11309d4d1f930ac292bad43ace52d10c80d87eb258b3c9f79c"`
	Language  string `json:"language" env:"TRANSCRIBE_LANGUAGE" envDefault:"auto"`
	BatchSize int    `json:"batch_size" env:"TRANSCRIBE_BATCH_SIZE" envDefault:"64"`
}

type SummarizeConfig struct {
	Enabled         bool   `json:"enabled"`
	Model           string `json:"model" env:"SUMMARIZE_MODEL" envDefault:"meta/meta-llama-3.1-405b-instruct"`
	MaxWords        int    `json:"max_words" env:"SUMMARIZE_MAX_WORDS" envDefault:"150"`
	PrintTranscript bool   `json:"print_transcript"`
}

type LogConfig struct {
	Level   string `json:"level" env:"LOG_LEVEL"`
	Verbose bool   `json:"verbose"`
	Debug   Switch `json:"debug" env:"DEBUG"`
}

// LogLevel combines LOG_LEVEL with the verbosity switches, which only ever lower it.
// Errors only by default.
func (c LogConfig) LogLevel() log.LogLevel {
	level := log.LevelError
	if strings.TrimSpace(c.Level) != "" {
		level = log.ParseLevel(c.Level)
	}
	if c.Verbose && level > log.LevelInfo {
		level = log.LevelInfo
	}
	if c.Debug {
		level = log.LevelDebug
	}
	return level
}

// Switch is a boolean that also accepts yes/no and on/off.
type Switch bool

func (s *Switch) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "1", "t", "true", "y", "yes", "on":
		*s = true
	case "", "0", "f", "false", "n", "no", "off":
		*s = false
	default:
		return fmt.Errorf("invalid boolean %q", string(text))
	}
	return nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.Replicate.APIToken != "" {
		c.Replicate.APIToken = "***"
	}
	return c
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.URL) == "" {
		errs = append(errs, fmt.Errorf("video URL is required"))
	}
	if c.Replicate.APIToken == "" {
		errs = append(errs, fmt.Errorf("REPLICATE_API_TOKEN is required: pass --replicate-api-token, "+
			"set the REPLICATE_API_TOKEN environment variable, or add it to %s", DefaultConfigFile))
	}
	if c.Download.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative"))
	}
	if c.Download.FragmentRetries < 0 {
		errs = append(errs, fmt.Errorf("fragment retries must not be negative"))
	}
	if c.Summarize.MaxWords < 1 {
		errs = append(errs, fmt.Errorf("summary word limit must be greater than 0"))
	}
	return errors.Join(errs...)
}

// fromEnvironment parses environ, overlaid on the fallback key/value sets in
// increasing order of priority.
func fromEnvironment(environ []string, fallbacks ...map[string]string) (*Config, error) {
	merged := map[string]string{}
	for _, values := range fallbacks {
		maps.Copy(merged, values)
	}
	maps.Copy(merged, env.ToMap(environ))

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: merged}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// readDotenv returns the variables of a .env file. A missing or broken file is skipped.
func readDotenv(path string) map[string]string {
	if path == "" {
		return nil
	}
	values, err := godotenv.Read(path)
	switch {
	case err == nil:
		log.Debug("Loaded %d values from %s", len(values), path)
		return values
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn("Ignoring %s: %v", path, err)
	}
	return nil
}
