package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pathways-agent/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte("roster payload"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	content, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "roster payload", string(content))
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL)
	require.NoError(t, err)
	defer body.Close()

	assert.EqualValues(t, 3, calls.Load())
}

func TestDownloadExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, "all retries exhausted")
}

func TestDownloadNotFoundDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	_, err := f.Download(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected status 404")
	assert.EqualValues(t, 1, calls.Load())
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "out.bin")
	f := NewHTTPFetcher(HTTPOptions{})
	n, err := f.DownloadToFile(context.Background(), srv.URL, path)
	require.NoError(t, err)
	assert.EqualValues(t, len("file content"), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content", string(content))
}

func TestLimiterFor(t *testing.T) {
	custom := rate.NewLimiter(1, 1)
	f := NewHTTPFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{"portal.example.com": custom},
	})

	assert.Same(t, custom, f.limiterFor("https://portal.example.com/roster.xlsx"))
	assert.Same(t, f.fallback, f.limiterFor("https://other.example.com/x"))
	assert.Same(t, f.fallback, f.limiterFor("://bad-url"))
}
