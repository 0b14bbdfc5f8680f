package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) *Config {
	return &Config{
		APIToken:      "test-token",
		APIURL:        url,
		Timeout:       5 * time.Second,
		UploadTimeout: 5 * time.Second,
		SyncWait:      time.Second,
		PollInterval:  time.Millisecond,
		MaxWait:       2 * time.Second,
		UserAgent:     "ytscribe-test",
	}
}

func TestNewClient(t *testing.T) {
	config := testConfig("https://api.example.com/v1/")

	client, err := NewClient(config)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", client.baseURL)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	assert.Equal(t, 5*time.Second, client.uploadClient.Timeout)

	_, err = NewClient(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.APIToken = "" }, wantErr: "API token"},
		{name: "missing url", mutate: func(c *Config) { c.APIURL = "" }, wantErr: "API URL"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: "timeout"},
		{name: "zero upload timeout", mutate: func(c *Config) { c.UploadTimeout = 0 }, wantErr: "upload timeout"},
		{name: "sync wait off", mutate: func(c *Config) { c.SyncWait = 0 }},
		{name: "sync wait below a second", mutate: func(c *Config) { c.SyncWait = 500 * time.Millisecond }, wantErr: "sync wait"},
		{name: "sync wait above cap", mutate: func(c *Config) { c.SyncWait = 61 * time.Second }, wantErr: "sync wait"},
		{name: "timeout equals sync wait", mutate: func(c *Config) { c.Timeout = time.Second }, wantErr: "must be longer than the sync wait"},
		{name: "zero poll", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "poll interval"},
		{name: "wait below poll", mutate: func(c *Config) { c.MaxWait = 0 }, wantErr: "max wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig("https://api.example.com")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseModelRef(t *testing.T) {
	ref, err := ParseModelRef("vaibhavs10/incredibly-fast-whisper:3ab86df6")
	require.NoError(t, err)
	assert.Equal(t, ModelRef{Owner: "vaibhavs10", Name: "incredibly-fast-whisper", Version: "3ab86df6"}, ref)
	assert.Equal(t, "vaibhavs10/incredibly-fast-whisper:3ab86df6", ref.String())

	ref, err = ParseModelRef("meta/meta-llama-3.1-405b-instruct")
	require.NoError(t, err)
	assert.Empty(t, ref.Version)
	assert.Equal(t, "meta/meta-llama-3.1-405b-instruct", ref.String())

	for _, bad := range []string{"", "whisper", "/name", "owner/", "a/b/c", "owner/name:"} {
		_, err := ParseModelRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestRunVersionedModelWaitsViaPolling(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "ytscribe-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			assert.Equal(t, "wait=1", r.Header.Get("Prefer"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "abc123", body["version"])
			assert.Equal(t, map[string]any{"task": "transcribe"}, body["input"])
			_, _ = io.WriteString(w, `{"id":"p1","status":"starting"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if polls.Add(1) < 3 {
				_, _ = io.WriteString(w, `{"id":"p1","status":"processing"}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"p1","status":"succeeded","output":{"text":"hello world"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	out, err := client.Run(context.Background(),
		ModelRef{Owner: "owner", Name: "whisper", Version: "abc123"},
		Input{"task": "transcribe"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hello world"}`, string(out))
	assert.Equal(t, int32(3), polls.Load())
}

func TestRunCreateHeldForSyncWaitThenPolls(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "wait=1", r.Header.Get("Prefer"))
			// the API answers a still running prediction once the wait is over
			time.Sleep(time.Second)
			_, _ = io.WriteString(w, `{"id":"p1","status":"processing"}`)
		case http.MethodGet:
			polls.Add(1)
			_, _ = io.WriteString(w, `{"id":"p1","status":"succeeded","output":{"text":"late"}}`)
		}
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Timeout = 2 * time.Second
	client, err := NewClient(cfg)
	require.NoError(t, err)

	out, err := client.Run(context.Background(), ModelRef{Owner: "a", Name: "b", Version: "v"}, Input{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"late"}`, string(out))
	assert.Equal(t, int32(1), polls.Load())
}

func TestRunWithoutSyncWaitSendsNoPrefer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Prefer"))
		_, _ = io.WriteString(w, `{"id":"p1","status":"succeeded","output":"ok"}`)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SyncWait = 0
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Run(context.Background(), ModelRef{Owner: "a", Name: "b"}, Input{})
	require.NoError(t, err)
}

func TestRunUnversionedModelFinishedOnCreate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/models/meta/llama/predictions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasVersion := body["version"]
		assert.False(t, hasVersion)
		_, _ = io.WriteString(w, `{"id":"p2","status":"succeeded","output":["Hel","lo"]}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	out, err := client.Run(context.Background(), ModelRef{Owner: "meta", Name: "llama"}, Input{"prompt": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `["Hel","lo"]`, string(out))
}

func TestRunFailedPrediction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"p3","status":"failed","error":"CUDA out of memory","logs":"trace"}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Run(context.Background(), ModelRef{Owner: "o", Name: "m"}, Input{})
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Equal(t, StatusFailed, predErr.Status)
	assert.Equal(t, "CUDA out of memory", predErr.Message)
	assert.Equal(t, "trace", predErr.Logs)
}

func TestRunAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"title":"Unauthenticated","detail":"You did not pass a valid authentication token","status":401}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Run(context.Background(), ModelRef{Owner: "o", Name: "m"}, Input{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Unauthenticated", apiErr.Title)
	assert.Contains(t, err.Error(), "valid authentication token")
}

func TestRunNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "bad gateway\n")
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Run(context.Background(), ModelRef{Owner: "o", Name: "m"}, Input{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad gateway", apiErr.Body)
	assert.Contains(t, apiErr.Error(), "502")
}

func TestWaitGivesUpAfterMaxWait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"slow","status":"processing"}`)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxWait = 20 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	_, err = client.Wait(context.Background(), &Prediction{ID: "slow", Status: StatusStarting})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish")
}

func TestWaitStopsOnPollError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Not found."}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.Wait(context.Background(), &Prediction{ID: "gone", Status: StatusProcessing})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWaitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"p","status":"processing"}`)
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.PollInterval = 50 * time.Millisecond
	client, err := NewClient(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = client.Wait(ctx, &Prediction{ID: "p", Status: StatusProcessing})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
}

func TestPredictionErrorMessage(t *testing.T) {
	assert.Empty(t, (&Prediction{}).ErrorMessage())
	assert.Empty(t, (&Prediction{Error: json.RawMessage("null")}).ErrorMessage())
	assert.Equal(t, "boom", (&Prediction{Error: json.RawMessage(`"boom"`)}).ErrorMessage())
	assert.Equal(t, `{"code":1}`, (&Prediction{Error: json.RawMessage(`{"code":1}`)}).ErrorMessage())
}

func TestFileDataURI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "res.mp3")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	uri, err := FileDataURI(path)
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,YWJj", uri)

	_, err = FileDataURI(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestFileInputInlinesSmallFiles(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "res.mp3")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	value, err := client.FileInput(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "data:audio/mpeg;base64,YWJj", value)
	assert.Equal(t, int32(0), hits.Load())

	_, err = client.FileInput(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestFileInputUploadsLargeFiles(t *testing.T) {
	content := strings.Repeat("A", InlineFileLimit+1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/files" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Prefer"))

		part, header, err := r.FormFile("content")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer part.Close()
		got, _ := io.ReadAll(part)
		assert.Equal(t, "res.mp3", header.Filename)
		assert.Equal(t, "audio/mpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, len(content), len(got))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"f1","name":"res.mp3","content_type":"audio/mpeg","size":262145,`+
			`"urls":{"get":"https://api.replicate.com/v1/files/f1"}}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "res.mp3")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	value, err := client.FileInput(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.replicate.com/v1/files/f1", value)
}

func TestUploadFileAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, `{"detail":"file too large"}`)
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)
	client.inlineLimit = 0

	path := filepath.Join(t.TempDir(), "res.mp3")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	_, err = client.FileInput(context.Background(), path)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
}

func TestRedactInput(t *testing.T) {
	long := "data:audio/mpeg;base64," + strings.Repeat("A", 500)
	out := redactInput(Input{"audio": long, "batch_size": 64, "task": "transcribe"})

	assert.Equal(t, 64, out["batch_size"])
	assert.Equal(t, "transcribe", out["task"])
	assert.Contains(t, out["audio"], "(523 bytes)")
	assert.NotContains(t, out["audio"], strings.Repeat("A", 100))
}
