package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/retry"
)

func newTestFetcher(cfg Config) *Fetcher {
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	}
	return New(cfg, logger.Discard())
}

func TestGetPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "livetv-test", r.Header.Get("User-Agent"))
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(Config{UserAgent: "livetv-test"}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n", string(body))
}

func TestGetDecodesGzipAndBrotli(t *testing.T) {
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write([]byte("gzipped"))
	zw.Close()

	var br bytes.Buffer
	bw := brotli.NewWriter(&br)
	bw.Write([]byte("brotlied"))
	bw.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gz":
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(gz.Bytes())
		case "/br":
			w.Header().Set("Content-Encoding", "br")
			w.Write(br.Bytes())
		}
	}))
	defer srv.Close()

	f := newTestFetcher(Config{})
	body, err := f.Get(context.Background(), srv.URL+"/gz")
	require.NoError(t, err)
	assert.Equal(t, "gzipped", string(body))

	body, err = f.Get(context.Background(), srv.URL+"/br")
	require.NoError(t, err)
	assert.Equal(t, "brotlied", string(body))
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(Config{}).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(Config{}).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFetchStatus, apperrors.GetErrorCode(err))
	assert.True(t, apperrors.IsFetchError(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	f := newTestFetcher(Config{Timeout: 20 * time.Millisecond, RetryConfig: retry.Config{MaxAttempts: 1}})
	_, err := f.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFetchTimeout, apperrors.GetErrorCode(err))
}

func TestGetSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer srv.Close()

	_, err := newTestFetcher(Config{MaxBytes: 10}).Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestGetUnreachable(t *testing.T) {
	_, err := newTestFetcher(Config{RetryConfig: retry.Config{MaxAttempts: 1}}).Get(context.Background(), "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.True(t, apperrors.IsFetchError(err))
}
