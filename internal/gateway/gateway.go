// Package gateway performs the single outbound HTTP call behind every node
// operation and normalizes transport and API failures into *Error values
// whose message surfaces the remote API's own error text.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Static errors for gateway operations.
var (
	// ErrURLRequired is returned when a request has no target URL.
	ErrURLRequired = errors.New("gateway: URL is required")
	// ErrTransport is returned when the request could not be sent or read.
	ErrTransport = errors.New("gateway: transport failure")
	// ErrRequestFailed is returned when the server answers with a non-2xx status.
	ErrRequestFailed = errors.New("gateway: request failed")
)

// Request is the envelope of one outbound call.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Body        []byte
	ContentType string
}

// Response is a fully-read successful response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response declares a JSON content type.
func (r *Response) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "json")
}

// DecodeJSON unmarshals the response body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

// Sender is implemented by Client. Operations depend on this interface.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is the net/http implementation of Sender.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(gc *Client) {
		gc.httpClient = c
	}
}

// WithLogger sets the logger used for error payload diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(gc *Client) {
		gc.logger = l
	}
}

// NewClient creates a gateway client. The default HTTP client has no
// timeout; cancellation is driven by the caller's context.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)

// Send performs a single request. It never retries.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" {
		return nil, ErrURLRequired
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, c.fail(method, req.URL, 0, nil, fmt.Errorf("%w: create request: %w", ErrTransport, err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(method, req.URL, 0, nil, fmt.Errorf("%w: %w", ErrTransport, err))
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(method, req.URL, resp.StatusCode, nil, fmt.Errorf("%w: read response: %w", ErrTransport, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(method, req.URL, resp.StatusCode, respBody,
			fmt.Errorf("%w with status %d", ErrRequestFailed, resp.StatusCode))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// Fetch downloads an arbitrary URL without credentials and returns its bytes.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.Send(ctx, Request{Method: http.MethodGet, URL: url})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) fail(method, url string, status int, payload []byte, cause error) error {
	gwErr := newError(status, payload, cause)
	if payload != nil {
		c.logger.Error("API error response",
			slog.String("method", method),
			slog.String("url", url),
			slog.Int("status", status),
			slog.String("payload", string(payload)),
		)
	} else {
		c.logger.Error("API request error",
			slog.String("method", method),
			slog.String("url", url),
			slog.String("error", cause.Error()),
		)
	}
	return gwErr
}
