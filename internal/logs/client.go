package logs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kitsupub/internal/api"
)

// ErrAPIUnavailable reports that no sidecar answered on the configured bind.
var ErrAPIUnavailable = errors.New("sidecar log API unavailable")

// Client fetches buffered log events from a running sidecar.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// Query selects events from the sidecar buffer. Tail returns the newest
// Limit events; otherwise events after Since are returned.
type Query struct {
	Since uint64
	Limit int
	Tail  bool
}

// NewClient builds a client for bind. An empty bind yields a nil client.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Fetch runs one query.
func (c *Client) Fetch(ctx context.Context, q Query) (api.LogStreamResponse, error) {
	if c == nil {
		return api.LogStreamResponse{}, ErrAPIUnavailable
	}
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Tail {
		values.Set("tail", "1")
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: "/api/logs", RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return api.LogStreamResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if unreachable(err) {
			return api.LogStreamResponse{}, fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
		}
		return api.LogStreamResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return api.LogStreamResponse{}, errors.New("sidecar rejected the api token (check paths.api_token)")
	}
	if resp.StatusCode >= 400 {
		return api.LogStreamResponse{}, fmt.Errorf("sidecar logs returned status %d", resp.StatusCode)
	}

	var payload api.LogStreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return api.LogStreamResponse{}, fmt.Errorf("decode log events: %w", err)
	}
	return payload, nil
}

func unreachable(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
