// Package cfkv talks to a hosted key/value namespace over its REST API,
// authenticated by an account/namespace/token triple.
package cfkv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/glefebvre/livetv/internal/errors"
	"github.com/glefebvre/livetv/internal/retry"
)

const (
	defaultBaseURL   = "https://api.cloudflare.com/client/v4"
	defaultPageLimit = 1000
	defaultMaxBatch  = 10000
)

// Config holds client configuration
type Config struct {
	BaseURL     string
	AccountID   string
	NamespaceID string
	APIToken    string
	Timeout     time.Duration

	// WritesPerSecond throttles PUT and DELETE calls; zero disables it
	WritesPerSecond float64
	PageLimit       int
	MaxBatch        int
	RetryConfig     retry.Config
}

// Client is a kv.Store and kv.BatchDeleter over the REST API
type Client struct {
	nsURL       string
	token       string
	httpClient  *http.Client
	limiter     *rate.Limiter
	pageLimit   int
	maxBatch    int
	retryConfig retry.Config
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool         `json:"success"`
	Errors  []apiMessage `json:"errors"`
}

type listResponse struct {
	apiResponse
	Result []struct {
		Name string `json:"name"`
	} `json:"result"`
	ResultInfo struct {
		Cursor string `json:"cursor"`
		Count  int    `json:"count"`
	} `json:"result_info"`
}

// New creates a client
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = defaultPageLimit
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultMaxBatch
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.WritesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WritesPerSecond), 1)
	}

	return &Client{
		nsURL: fmt.Sprintf("%s/accounts/%s/storage/kv/namespaces/%s",
			strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.AccountID), url.PathEscape(cfg.NamespaceID)),
		token:       cfg.APIToken,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     limiter,
		pageLimit:   cfg.PageLimit,
		maxBatch:    cfg.MaxBatch,
		retryConfig: cfg.RetryConfig,
	}
}

func (c *Client) valueURL(key string) string {
	return c.nsURL + "/values/" + url.PathEscape(key)
}

// Get reads a value; 404 is a miss, not an error
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		body  []byte
		found bool
	)
	err := retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, http.MethodGet, c.valueURL(key), nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			found = false
			return nil
		}
		if err := checkStatus(resp); err != nil {
			return err
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.FetchError(c.valueURL(key), err)
		}
		found = true
		return nil
	}, apperrors.IsRetryable)
	return body, found, err
}

// Set writes a value
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, http.MethodPut, c.valueURL(key), bytes.NewReader(value), "application/octet-stream")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkStatus(resp)
	}, apperrors.IsRetryable)
}

// Delete removes a value; deleting a missing key succeeds
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, http.MethodDelete, c.valueURL(key), nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return checkStatus(resp)
	}, apperrors.IsRetryable)
}

// ListKeys returns the first page of keys matching prefix. Namespaces larger
// than one page are not enumerated further.
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageLimit))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	endpoint := c.nsURL + "/keys?" + q.Encode()

	var page listResponse
	err := retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, http.MethodGet, endpoint, nil, "")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return apperrors.ParseError("decode key list", err).WithContext("url", endpoint)
		}
		if !page.Success {
			return apiError(endpoint, page.Errors)
		}
		return nil
	}, apperrors.IsRetryable)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(page.Result))
	for _, k := range page.Result {
		keys = append(keys, k.Name)
	}
	return keys, nil
}

// DeleteBatch removes up to MaxBatchSize keys in one call
func (c *Client) DeleteBatch(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if len(keys) > c.maxBatch {
		return apperrors.ValidationError(fmt.Sprintf("batch of %d exceeds max %d", len(keys), c.maxBatch))
	}
	body, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.nsURL + "/bulk/delete"
	return retry.Do(ctx, c.retryConfig, func() error {
		resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), "application/json")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		var out apiResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return apperrors.ParseError("decode bulk delete response", err).WithContext("url", endpoint)
		}
		if !out.Success {
			return apiError(endpoint, out.Errors)
		}
		return nil
	}, apperrors.IsRetryable)
}

// MaxBatchSize is the largest key list DeleteBatch accepts
func (c *Client) MaxBatchSize() int {
	return c.maxBatch
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.FetchError(endpoint, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	endpoint := resp.Request.URL.String()
	if resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.New(apperrors.CodeStoreRateLimited, "kv api rate limited").WithContext("url", endpoint)
	}
	return apperrors.FetchStatusError(endpoint, resp.StatusCode)
}

func apiError(endpoint string, msgs []apiMessage) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, fmt.Sprintf("%d: %s", m.Code, m.Message))
	}
	return apperrors.New(apperrors.CodeStoreUnavailable, "kv api error: "+strings.Join(parts, "; ")).
		WithContext("url", endpoint)
}
