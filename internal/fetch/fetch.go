// Package fetch performs the bounded outbound GETs used for playlists, EPG
// guides and scrape pages.
package fetch

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/logger"
	"github.com/glefebvre/livetv/internal/retry"
)

// ErrTooLarge is returned when a body exceeds MaxBytes
var ErrTooLarge = errors.New("response body exceeds size limit")

// Config holds fetcher settings
type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64

	// RequestsPerSecond throttles outbound requests; zero disables it
	RequestsPerSecond float64
	RetryConfig       retry.Config
}

// Fetcher is a small HTTP GET client with a timeout, retries and
// transparent gzip/brotli decoding
type Fetcher struct {
	httpClient  *http.Client
	userAgent   string
	maxBytes    int64
	limiter     *rate.Limiter
	retryConfig retry.Config
	logger      *logger.Logger
}

// New creates a fetcher
func New(cfg Config, log *logger.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 64 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "livetv/1.0"
	}
	if log == nil {
		log = logger.AppLogger()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent:   cfg.UserAgent,
		maxBytes:    cfg.MaxBytes,
		limiter:     limiter,
		retryConfig: cfg.RetryConfig,
		logger:      log,
	}
}

// Get fetches url and returns the decoded body. Failures come back as
// FETCH_ERROR, FETCH_TIMEOUT or FETCH_BAD_STATUS application errors.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	cfg := f.retryConfig
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		f.logger.WithFields(map[string]interface{}{
			"url":     url,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).Warn("fetch failed, retrying")
	}

	return retry.DoWithResult(ctx, cfg, func() ([]byte, error) {
		return f.getOnce(ctx, url)
	}, apperrors.IsRetryable)
}

func (f *Fetcher) getOnce(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, apperrors.FetchError(url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.FetchError(url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeFetchTimeout, "remote source timed out").WithContext("url", url)
		}
		return nil, apperrors.FetchError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.FetchStatusError(url, resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return nil, apperrors.FetchError(url, err)
	}
	defer body.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, apperrors.Wrap(err, apperrors.CodeFetchTimeout, "remote source timed out").WithContext("url", url)
		}
		return nil, apperrors.FetchError(url, err)
	}
	if n > f.maxBytes {
		return nil, apperrors.Wrap(ErrTooLarge, apperrors.CodeMalformedData, "response too large").WithContext("url", url)
	}

	f.logger.WithFields(map[string]interface{}{
		"url":   url,
		"bytes": n,
	}).Debug("fetched")
	return buf.Bytes(), nil
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
