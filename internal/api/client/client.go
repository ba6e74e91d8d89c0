// internal/api/client/client.go
// Package client talks to the daemon's HTTP API on behalf of the CLI.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/sendlater/api/schemas"
	"github.com/xkilldash9x/sendlater/internal/api"
)

const (
	defaultTimeout = 30 * time.Second
	tokenTTL       = 5 * time.Minute
)

// Error is a non-2xx answer from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// Client is an API client. The zero value is not usable; use New.
type Client struct {
	base   *url.URL
	http   *http.Client
	secret []byte
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSecret signs a bearer token for every request.
func WithSecret(secret string) Option {
	return func(c *Client) { c.secret = []byte(secret) }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Schedule registers a message for delivery at at.
func (c *Client) Schedule(ctx context.Context, recipient, payload string, at time.Time) (schemas.ScheduledAction, error) {
	var rec schemas.ScheduledAction
	err := c.do(ctx, http.MethodPost, "/api/v1/schedules", api.ScheduleRequest{
		Recipient:     recipient,
		Payload:       payload,
		ScheduledTime: at.UnixMilli(),
	}, &rec)
	return rec, err
}

// List returns every scheduled message ordered by scheduled time.
func (c *Client) List(ctx context.Context) ([]schemas.ScheduledAction, error) {
	var records []schemas.ScheduledAction
	err := c.do(ctx, http.MethodGet, "/api/v1/schedules", nil, &records)
	return records, err
}

// Cancel removes a scheduled message.
func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/schedules/"+url.PathEscape(id), nil, nil)
}

// Dispatch asks the daemon to dispatch a pending message now.
func (c *Client) Dispatch(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/schedules/"+url.PathEscape(id)+"/dispatch", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if len(c.secret) > 0 {
		token, err := api.MintToken(c.secret, "sendlater-cli", tokenTTL)
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 300 {
			return &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return &Error{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
