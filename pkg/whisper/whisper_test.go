package whisper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theyagu56/pathways-agent/internal/resilience"
)

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intake.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake wav"), 0o644))
	return path
}

func TestTranscribe_Success(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transcribe", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		gotModel = r.FormValue("model")

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		_ = json.NewEncoder(w).Encode(Transcription{
			Text:       "I sprained my ankle, I'm in 10001 and have Blue Cross",
			Language:   "en",
			Duration:   4.2,
			Confidence: 0.91,
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Model: "base"})
	out, err := c.Transcribe(context.Background(), TranscribeRequest{AudioPath: writeTestAudio(t)})
	require.NoError(t, err)
	assert.Equal(t, "base", gotModel)
	assert.Contains(t, out.Text, "sprained my ankle")
	assert.InDelta(t, 0.91, out.Confidence, 0.001)
}

func TestTranscribe_ModelOverride(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		gotModel = r.FormValue("model")
		_ = json.NewEncoder(w).Encode(Transcription{Text: "ok"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	_, err := c.Transcribe(context.Background(), TranscribeRequest{
		AudioPath: writeTestAudio(t),
		Model:     "large-v3",
	})
	require.NoError(t, err)
	assert.Equal(t, "large-v3", gotModel)
}

func TestTranscribe_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	_, err := c.Transcribe(context.Background(), TranscribeRequest{AudioPath: writeTestAudio(t)})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestTranscribe_BadRequestNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported format", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	_, err := c.Transcribe(context.Background(), TranscribeRequest{AudioPath: writeTestAudio(t)})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestTranscribe_MissingAudioFile(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://localhost:1"})
	_, err := c.Transcribe(context.Background(), TranscribeRequest{AudioPath: "/nope/missing.wav"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read audio")
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealth_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL})
	assert.Error(t, c.Health(context.Background()))
}
