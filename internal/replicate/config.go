package replicate

import (
	"fmt"
	"time"
)

const (
	DefaultAPIURL = "https://api.replicate.com/v1"

	// MaxSyncWait is the longest time the API holds a create request open.
	MaxSyncWait = 60 * time.Second
)

// Config holds the configuration for the Replicate client
//
// APIToken: token from https://replicate.com/account/api-tokens (required)
// APIURL: API base URL, without trailing slash
// Timeout: per-request HTTP timeout
// UploadTimeout: timeout of one file upload
// SyncWait: how long a create request may wait for the prediction to finish, 0 disables it
// PollInterval: first delay between prediction status checks
// MaxWait: upper bound on the time spent waiting for one prediction
type Config struct {
	APIToken      string        `json:"-"`
	APIURL        string        `json:"api_url"`
	Timeout       time.Duration `json:"timeout"`
	UploadTimeout time.Duration `json:"upload_timeout"`
	SyncWait      time.Duration `json:"sync_wait"`
	PollInterval  time.Duration `json:"poll_interval"`
	MaxWait       time.Duration `json:"max_wait"`
	UserAgent     string        `json:"user_agent"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("API token is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload timeout must be greater than 0")
	}
	if c.SyncWait < 0 || (c.SyncWait > 0 && c.SyncWait < time.Second) || c.SyncWait > MaxSyncWait {
		return fmt.Errorf("sync wait must be 0 or between 1s and %s, got %s", MaxSyncWait, c.SyncWait)
	}
	// the server answers a waiting create request only after SyncWait
	if c.SyncWait > 0 && c.Timeout <= c.SyncWait {
		return fmt.Errorf("timeout %s must be longer than the sync wait %s", c.Timeout, c.SyncWait)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}
	if c.MaxWait < c.PollInterval {
		return fmt.Errorf("max wait must not be shorter than the poll interval")
	}
	return nil
}

// GetHeaders returns the headers for a Replicate API request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIToken,
		"Content-Type":  "application/json",
		"Accept":        "application/json",
	}

	if c.UserAgent != "" {
		headers["User-Agent"] = c.UserAgent
	}

	return headers
}

// preferHeader is the Prefer value of create requests, empty when SyncWait is off.
func (c *Config) preferHeader() string {
	if c.SyncWait <= 0 {
		return ""
	}
	return fmt.Sprintf("wait=%d", int(c.SyncWait/time.Second))
}
