package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "blinksync/0.1"

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer per
// Go convention "accept interfaces, return structs". The credentials
// package provides the real implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client is an HTTP client for the wellness backend. It handles request
// construction, authentication, client-side rate limiting, and error
// classification. Every call makes exactly one attempt; callers decide
// whether and when to try again.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Options tunes a Client. Zero values fall back to sane defaults.
type Options struct {
	Timeout   time.Duration // per-request timeout, default 30s
	RateLimit float64       // requests per second, default 5
	RateBurst int           // default 5
}

// NewClient creates a backend API client.
// baseURL is typically "https://api.example.com/api/v1".
func NewClient(baseURL string, token TokenSource, opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = 5
	}

	burst := opts.RateBurst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		logger:     logger,
	}
}

// Do executes one HTTP request against the backend. The path is appended
// to the client's base URL; a non-nil body is sent as JSON. Extra headers
// override nothing the client sets itself. On a non-2xx response the
// returned error is an *Error carrying the classified sentinel; the
// caller never sees the raw response in that case.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader, extra map[string]string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("api: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("api: obtaining token: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range extra {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("api: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("api: %s %s: %w: %w", method, path, ErrNetwork, err)
	}

	// 2xx passes through; the caller owns the body.
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	apiErr := &Error{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-Id"),
		Message:    string(errBody),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		Err:        classifyStatus(resp.StatusCode),
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return nil, apiErr
}

// doJSON executes a request with a JSON body and decodes a JSON response
// into out (which may be nil to discard the body).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encoding %s %s body: %w", method, path, err)
		}

		body = bytes.NewReader(raw)
	}

	resp, err := c.Do(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// parseRetryAfter interprets a Retry-After header given in seconds.
// HTTP-date forms are ignored; the engine falls back to its own backoff.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}

	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return 0
	}

	return time.Duration(seconds) * time.Second
}
