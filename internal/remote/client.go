// ABOUTME: HTTP client for the hosted auth/database/storage backend
// ABOUTME: Maps transport and policy failures onto a small error taxonomy

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Error taxonomy for backend calls. Callers degrade to the local mirror on
// ErrUnavailable, surface ErrPermissionDenied as a policy failure, and treat
// ErrBadCredentials as an auth rejection.
var (
	ErrUnavailable      = errors.New("backend unavailable")
	ErrPermissionDenied = errors.New("permission denied by backend policy")
	ErrBadCredentials   = errors.New("invalid credentials")
)

const defaultTimeout = 30 * time.Second

// Client talks to the hosted backend: auth endpoints, row CRUD on the
// personnel/messages/general_messages/reports tables, object storage, and
// the realtime insert-event channel.
type Client struct {
	baseURL     string
	realtimeURL string
	anonKey     string
	client      *http.Client
	logger      *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithRealtimeURL overrides the websocket endpoint for realtime events.
// Defaults to the base URL with a ws scheme and /realtime/v1 path.
func WithRealtimeURL(url string) Option {
	return func(c *Client) {
		c.realtimeURL = url
	}
}

// New creates a backend client. baseURL is the backend's root URL and
// anonKey its public API key; both come from configuration.
func New(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default().With("component", "remote"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.realtimeURL == "" {
		ws := strings.Replace(c.baseURL, "http", "ws", 1)
		c.realtimeURL = ws + "/realtime/v1/websocket"
	}

	return c
}

// do performs a request with backend headers and decodes the JSON response
// into out (when non-nil). Network-level failures map to ErrUnavailable,
// auth/policy statuses to the taxonomy errors.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	_, err := c.doStatus(ctx, method, path, token, nil, body, out)
	return err
}

// doStatus is do plus extra headers and the response object, for call sites
// that need status details (row counts on delete).
func (c *Client) doStatus(ctx context.Context, method, path, token string, headers map[string]string, body, out any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.anonKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return resp, c.statusError(resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decoding response: %w", err)
		}
	}

	return resp, nil
}

// statusError converts an error status plus body into a taxonomy error.
func (c *Client) statusError(status int, body []byte) error {
	var apiErr struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Msg
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(msg), "credentials"):
		return fmt.Errorf("%w: %s", ErrBadCredentials, msg)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, msg)
	default:
		return fmt.Errorf("backend error: status %d: %s", status, msg)
	}
}

// rowsAffected extracts the affected row count from a Content-Range header
// of the form "0-4/5" or "*/0". Returns -1 when absent.
func rowsAffected(resp *http.Response) int64 {
	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		return -1
	}
	parts := strings.SplitN(cr, "/", 2)
	if len(parts) != 2 {
		return -1
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return -1
	}
	return n
}
