// Package whisper is a client for a faster-whisper HTTP sidecar, the
// speech-to-text collaborator for voice intakes.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/theyagu56/pathways-agent/internal/resilience"
)

const (
	defaultBaseURL = "http://localhost:8387"
	defaultModel   = "base"
	defaultTimeout = 120 * time.Second
)

// Client defines the transcription operations used by the intake pipeline.
type Client interface {
	Transcribe(ctx context.Context, req TranscribeRequest) (*Transcription, error)
	Health(ctx context.Context) error
}

// TranscribeRequest holds parameters for a transcription call.
type TranscribeRequest struct {
	// AudioPath is the path to the audio file to transcribe.
	AudioPath string
	// Language is the expected language of the audio (e.g. "en").
	Language string
	// Model overrides the client's default model.
	Model string
}

// Transcription is the sidecar's response.
type Transcription struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Options configures the HTTP client.
type Options struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// HTTPClient implements Client against the sidecar's multipart API.
type HTTPClient struct {
	opts   Options
	client *http.Client
}

// NewClient creates a whisper sidecar client.
func NewClient(opts Options) *HTTPClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	return &HTTPClient{
		opts: opts,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Health probes the sidecar's /health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/health", nil)
	if err != nil {
		return eris.Wrap(err, "whisper: build health request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "whisper: health request")
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("whisper: health status %d", resp.StatusCode)
	}
	return nil
}

// Transcribe uploads the audio file and returns the transcription.
// Transient sidecar failures are marked retryable for the caller.
func (c *HTTPClient) Transcribe(ctx context.Context, treq TranscribeRequest) (*Transcription, error) {
	audio, err := os.ReadFile(treq.AudioPath)
	if err != nil {
		return nil, eris.Wrapf(err, "whisper: read audio %s", treq.AudioPath)
	}

	model := c.opts.Model
	if treq.Model != "" {
		model = treq.Model
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(treq.AudioPath))
	if err != nil {
		return nil, eris.Wrap(err, "whisper: create form file")
	}
	if _, err := part.Write(audio); err != nil {
		return nil, eris.Wrap(err, "whisper: write audio part")
	}
	_ = mw.WriteField("model", model)
	if treq.Language != "" {
		_ = mw.WriteField("language", treq.Language)
	}
	if err := mw.Close(); err != nil {
		return nil, eris.Wrap(err, "whisper: close multipart writer")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/transcribe", &body)
	if err != nil {
		return nil, eris.Wrap(err, "whisper: build transcribe request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "whisper: transcribe request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := eris.Errorf("whisper: transcribe status %d: %s", resp.StatusCode, respBody)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var out Transcription
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "whisper: decode response")
	}

	zap.L().Debug("whisper: transcription complete",
		zap.String("model", model),
		zap.Float64("audio_seconds", out.Duration),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &out, nil
}
