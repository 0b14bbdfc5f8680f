package replicate

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ModelRef identifies a hosted model as owner/name with an optional version hash.
type ModelRef struct {
	Owner   string
	Name    string
	Version string
}

// ParseModelRef parses "owner/name" or "owner/name:version".
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	ref, version, hasVersion := strings.Cut(s, ":")
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return ModelRef{}, fmt.Errorf("invalid model reference %q, want owner/name[:version]", s)
	}
	if hasVersion && version == "" {
		return ModelRef{}, fmt.Errorf("invalid model reference %q: empty version", s)
	}

	return ModelRef{Owner: owner, Name: name, Version: version}, nil
}

func (m ModelRef) String() string {
	if m.Version == "" {
		return m.Owner + "/" + m.Name
	}
	return m.Owner + "/" + m.Name + ":" + m.Version
}

// Input is the model input object of a prediction.
type Input map[string]any

// Status is the lifecycle state of a prediction.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// Terminated reports whether the prediction will not change state anymore.
func (s Status) Terminated() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Prediction is one model run as returned by the predictions API.
type Prediction struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Version string          `json:"version"`
	Status  Status          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
	Logs    string          `json:"logs,omitempty"`
	URLs    PredictionURLs  `json:"urls"`
}

type PredictionURLs struct {
	Get    string `json:"get"`
	Cancel string `json:"cancel"`
}

// ErrorMessage returns the prediction error as text, empty when there is none.
func (p *Prediction) ErrorMessage() string {
	if len(p.Error) == 0 || string(p.Error) == "null" {
		return ""
	}
	var msg string
	if err := json.Unmarshal(p.Error, &msg); err == nil {
		return msg
	}
	return string(p.Error)
}

type predictionRequest struct {
	Version string `json:"version,omitempty"`
	Input   Input  `json:"input"`
}

// APIError is a non-2xx answer from the API.
//
// Replicate reports errors as problem details: {"title": ..., "detail": ..., "status": ...}
type APIError struct {
	StatusCode int    `json:"-"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	switch {
	case e.Detail != "" && e.Title != "":
		return fmt.Sprintf("replicate API error %d: %s: %s", e.StatusCode, e.Title, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("replicate API error %d: %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("replicate API error %d: %s", e.StatusCode, e.Body)
	}
}

// PredictionError is returned for predictions that ended failed or canceled.
type PredictionError struct {
	ID      string
	Status  Status
	Message string
	Logs    string
}

func (e *PredictionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("prediction %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("prediction %s %s: %s", e.ID, e.Status, e.Message)
}
