// Package maiarouter knows the Maia Router API surface: endpoint paths, the
// two credential header styles, and JSON/multipart request helpers built on
// the gateway.
package maiarouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maauso/maiarouter-node/internal/gateway"
)

// DefaultBaseURL is the public Maia Router host.
const DefaultBaseURL = "https://api.maiarouter.ai"

// Static errors for client construction.
var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("maiarouter: API key is required")
)

// Auth selects how the API key is presented.
type Auth int

const (
	// AuthBearer sends "Authorization: Bearer <key>" (OpenAI-compatible routes).
	AuthBearer Auth = iota
	// AuthLiteLLM sends "x-litellm-api-key: <key>" (Vertex-AI passthrough routes).
	AuthLiteLLM
	// AuthNone sends no credentials (arbitrary external URLs).
	AuthNone
)

// Client issues authenticated calls against the Maia Router API.
type Client struct {
	gw      gateway.Sender
	apiKey  string
	baseURL string
}

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API host.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// NewClient creates an API client sending requests through gw.
func NewClient(gw gateway.Sender, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	c := &Client{
		gw:      gw,
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// V1 returns the URL of an OpenAI-compatible route, e.g. V1("videos", id).
// Path segments are escaped.
func (c *Client) V1(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.baseURL + "/v1/" + strings.Join(escaped, "/")
}

// Vertex returns the URL of a Vertex-AI publisher model action, e.g.
// Vertex("veo-3.0-generate-001", "predictLongRunning").
func (c *Client) Vertex(model, action string) string {
	return fmt.Sprintf("%s/vertex_ai/publishers/google/models/%s:%s", c.baseURL, url.PathEscape(model), action)
}

// Header returns the credential header for auth.
func (c *Client) Header(auth Auth) http.Header {
	h := make(http.Header)
	switch auth {
	case AuthBearer:
		h.Set("Authorization", "Bearer "+c.apiKey)
	case AuthLiteLLM:
		h.Set("x-litellm-api-key", c.apiKey)
	}
	return h
}

// PostJSON sends body as JSON.
func (c *Client) PostJSON(ctx context.Context, auth Auth, target string, body any) (*gateway.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("maiarouter: marshal request: %w", err)
	}
	return c.gw.Send(ctx, gateway.Request{
		Method:      http.MethodPost,
		URL:         target,
		Header:      c.Header(auth),
		Body:        raw,
		ContentType: "application/json",
	})
}

// PostMultipart sends form as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, auth Auth, target string, form *gateway.Multipart) (*gateway.Response, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, err
	}
	return c.gw.Send(ctx, gateway.Request{
		Method:      http.MethodPost,
		URL:         target,
		Header:      c.Header(auth),
		Body:        body,
		ContentType: contentType,
	})
}

// Get performs an authenticated GET.
func (c *Client) Get(ctx context.Context, auth Auth, target string) (*gateway.Response, error) {
	return c.gw.Send(ctx, gateway.Request{
		Method: http.MethodGet,
		URL:    target,
		Header: c.Header(auth),
	})
}

// VerifyCredentials checks the API key by listing the available models.
// Failures carry the same "Error: ..." message as any other call.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	_, err := c.Get(ctx, AuthBearer, c.V1("models"))
	return err
}

// Fetch downloads an external URL without credentials.
func (c *Client) Fetch(ctx context.Context, target string) ([]byte, error) {
	return c.gw.Fetch(ctx, target)
}

// DecodeObject decodes a JSON object response. Non-object bodies yield ok=false.
func DecodeObject(resp *gateway.Response) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}
