// pkg/client/client.go

// Package client is the thin outbound HTTP client for the bridge facade.
// It surfaces the facade's failure classification as a typed error so
// callers can branch on the class instead of the status code.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/chatbridge/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultBaseURL = "http://127.0.0.1:8765"

// APIError is a classified failure returned by the bridge.
type APIError struct {
	StatusCode int
	Class      schemas.FailureClass
	Message    string
	// RetryAfter is the admission wait hint, when the class is
	// rate_limited.
	RetryAfter time.Duration
	// Role names the unresolved selector role, when the class is
	// selector_unresolved.
	Role string
}

func (e *APIError) Error() string {
	if e.Class != "" {
		return fmt.Sprintf("bridge error (%s): %s", e.Class, e.Message)
	}
	return fmt.Sprintf("bridge error (status %d): %s", e.StatusCode, e.Message)
}

// Client talks to a running bridge instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default bridge address.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithTimeout caps each round trip. Chat calls wait on browser-speed
// responses, so the default is generous.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New builds a Client with the given options.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends a message and waits for the reply.
func (c *Client) Chat(ctx context.Context, req schemas.ChatRequest) (*schemas.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// A timeout with partial text comes back as a ChatResponse on an
	// error status; decode it as such before falling back to the error
	// envelope.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat response: %w", err)
	}

	var chat schemas.ChatResponse
	if err := json.Unmarshal(raw, &chat); err == nil && (chat.Success || chat.Partial) {
		if resp.StatusCode == http.StatusOK || chat.Partial {
			return &chat, nil
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFrom(resp, raw)
	}
	return &chat, nil
}

// Status reports the bridge's view of the browser session.
func (c *Client) Status(ctx context.Context) (*schemas.StatusResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status schemas.StatusResponse
	if err := c.decode(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ResetSession starts a fresh conversation and returns its identifier.
func (c *Client) ResetSession(ctx context.Context) (*schemas.SessionResponse, error) {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/session", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var session schemas.SessionResponse
	if err := c.decode(resp, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Screenshot fetches the current rendered page as PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/screenshot", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFrom(resp, raw)
	}
	return raw, nil
}

// Health runs the selector health probe.
func (c *Client) Health(ctx context.Context) (*schemas.HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The probe answers with the same shape on ok and degraded.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read health response: %w", err)
	}
	var health schemas.HealthResponse
	if err := json.Unmarshal(raw, &health); err != nil {
		return nil, apiErrorFrom(resp, raw)
	}
	return &health, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge unreachable: %w", err)
	}
	return resp, nil
}

func (c *Client) decode(resp *http.Response, out any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return apiErrorFrom(resp, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiErrorFrom builds an APIError from an error envelope, falling back
// to the raw body when the envelope does not parse.
func apiErrorFrom(resp *http.Response, raw []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}

	var envelope schemas.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		apiErr.Class = envelope.ErrorClass
		apiErr.Message = envelope.Error
		apiErr.Role = envelope.Role
		if envelope.RetryAfterSeconds > 0 {
			apiErr.RetryAfter = time.Duration(envelope.RetryAfterSeconds * float64(time.Second))
		}
	}

	if apiErr.RetryAfter == 0 {
		if header := resp.Header.Get("Retry-After"); header != "" {
			if secs, err := strconv.Atoi(header); err == nil {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return apiErr
}
