package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MimeLyc/ytscribe/pkg/log"
)

// errPending marks a poll that found the prediction still running.
var errPending = errors.New("prediction still running")

// Client talks to the Replicate predictions API
// A prediction is created once and then polled until it terminates
//
// config: Configuration for the API
// httpClient: HTTP client for API requests
// uploadClient: HTTP client for file uploads, with the longer upload timeout
// baseURL: Base URL for the API
type Client struct {
	config       *Config
	httpClient   *http.Client
	uploadClient *http.Client
	baseURL      string
	inlineLimit  int64
}

// NewClient creates a new Replicate client with the given configuration
//
// Example:
//
//	client, err := replicate.NewClient(&replicate.Config{
//		APIToken:      os.Getenv("REPLICATE_API_TOKEN"),
//		APIURL:        replicate.DefaultAPIURL,
//		Timeout:       time.Minute,
//		UploadTimeout: 10 * time.Minute,
//		SyncWait:      30 * time.Second,
//		PollInterval:  time.Second,
//		MaxWait:       30 * time.Minute,
//	})
//	if err != nil {
//		return err
//	}
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		uploadClient: &http.Client{
			Timeout: config.UploadTimeout,
		},
		inlineLimit: InlineFileLimit,
	}, nil
}

// Run creates a prediction for model, waits for it to finish and returns its raw output.
//
// A prediction that ends failed or canceled is returned as *PredictionError.
func (c *Client) Run(ctx context.Context, model ModelRef, input Input) (json.RawMessage, error) {
	log.Info("Calling Replicate API, model=%s", model)
	if log.Enabled(log.LevelDebug) {
		log.Debug("Model input: %v", redactInput(input))
	}

	prediction, err := c.CreatePrediction(ctx, model, input)
	if err != nil {
		return nil, err
	}

	prediction, err = c.Wait(ctx, prediction)
	if err != nil {
		return nil, err
	}

	if prediction.Status != StatusSucceeded {
		return nil, &PredictionError{
			ID:      prediction.ID,
			Status:  prediction.Status,
			Message: prediction.ErrorMessage(),
			Logs:    prediction.Logs,
		}
	}

	log.Info("Replicate API call done, prediction=%s", prediction.ID)
	log.Debug("Replicate returned: %s", string(prediction.Output))
	return prediction.Output, nil
}

// CreatePrediction starts a prediction
//
// Versioned references go through /predictions, unversioned ones through the model's
// own endpoint, which always runs its latest version.
func (c *Client) CreatePrediction(ctx context.Context, model ModelRef, input Input) (*Prediction, error) {
	path := "/predictions"
	body := predictionRequest{Version: model.Version, Input: input}
	if model.Version == "" {
		path = fmt.Sprintf("/models/%s/%s/predictions", url.PathEscape(model.Owner), url.PathEscape(model.Name))
	}

	var prediction Prediction
	if err := c.makeRequest(ctx, http.MethodPost, path, body, &prediction); err != nil {
		return nil, fmt.Errorf("create prediction for %s: %w", model, err)
	}
	log.Debug("Created prediction %s, status=%s", prediction.ID, prediction.Status)

	return &prediction, nil
}

// GetPrediction fetches the current state of a prediction
func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	var prediction Prediction
	if err := c.makeRequest(ctx, http.MethodGet, "/predictions/"+url.PathEscape(id), nil, &prediction); err != nil {
		return nil, fmt.Errorf("get prediction %s: %w", id, err)
	}
	return &prediction, nil
}

// Wait polls until the prediction terminates, with exponential backoff between polls
func (c *Client) Wait(ctx context.Context, prediction *Prediction) (*Prediction, error) {
	if prediction.Status.Terminated() {
		return prediction, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.PollInterval
	b.MaxInterval = 10 * c.config.PollInterval
	b.Multiplier = 1.5

	id := prediction.ID
	result, err := backoff.Retry(ctx, func() (*Prediction, error) {
		current, err := c.GetPrediction(ctx, id)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !current.Status.Terminated() {
			return nil, errPending
		}
		return current, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.config.MaxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug("Prediction %s not finished, next check in %s", id, next)
		}),
	)
	if errors.Is(err, errPending) {
		return nil, fmt.Errorf("prediction %s did not finish within %s", id, c.config.MaxWait)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// makeRequest makes a JSON request to the API and decodes a 2xx body into out
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if method == http.MethodPost {
		// the API holds the response until the prediction finishes or the wait runs out
		if prefer := c.config.preferHeader(); prefer != "" {
			req.Header.Set("Prefer", prefer)
		}
	}

	return c.do(c.httpClient, req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.config.GetHeaders() {
		req.Header.Set(key, value)
	}
	return req, nil
}

// do sends req with client, maps non-2xx answers to *APIError and decodes the body into out
func (c *Client) do(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return fmt.Errorf("request timed out: %w", err)
		}
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(responseBody))}
		_ = json.Unmarshal(responseBody, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// redactInput shortens long string values, inline files would otherwise flood debug logs.
func redactInput(input Input) map[string]any {
	const maxLen = 120

	out := make(map[string]any, len(input))
	for k, v := range input {
		s, ok := v.(string)
		if ok && len(s) > maxLen {
			out[k] = fmt.Sprintf("%s... (%d bytes)", s[:40], len(s))
			continue
		}
		out[k] = v
	}
	return out
}
