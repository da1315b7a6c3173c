package kitsu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"kitsupub/internal/logging"
	"kitsupub/internal/services"
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the tracking server REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    HTTPDoer
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the HTTP backend.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.http = doer
		}
	}
}

// WithTimeout installs an http.Client with the given per-request timeout.
// A zero timeout keeps the default client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "kitsu")
	}
}

// WithToken preloads a bearer token, typically restored from the settings file.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a client for host. "/api" is appended when missing.
func New(host string, opts ...Option) (*Client, error) {
	base, err := NormalizeHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL: base,
		http:    http.DefaultClient,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeHost trims the host and ensures it ends with "/api".
func NormalizeHost(host string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(host), "/")
	if trimmed == "" {
		return "", services.Wrap(services.ErrConfiguration, "kitsu", "host", "tracker host is empty", nil)
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return "", services.Wrap(services.ErrConfiguration, "kitsu", "host", fmt.Sprintf("host %q must start with http:// or https://", trimmed), nil)
	}
	if !strings.HasSuffix(trimmed, "/api") {
		trimmed += "/api"
	}
	return trimmed, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Host returns the API root without the trailing "/api".
func (c *Client) Host() string {
	return strings.TrimSuffix(c.baseURL, "/api")
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token used on authenticated calls.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrConnection, "kitsu", req.Method+" "+req.URL.Path, "request failed", err)
	}
	c.logger.Debug("tracker request",
		logging.String("method", req.Method),
		logging.String("path", req.URL.Path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
