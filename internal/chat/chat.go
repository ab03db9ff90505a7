// Package chat implements the "Message a model" operation against the
// OpenAI-compatible chat completions endpoint.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role" validate:"oneof=system user assistant"`
	Content string `json:"content"`
}

// Tool is one tool declaration as configured in the node.
type Tool struct {
	ToolType     string   `json:"toolType"`
	EnableWidget *bool    `json:"enableWidget,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	LanguageCode string   `json:"languageCode,omitempty"`
}

// AdditionalFields are the optional completion settings. Nil means unset.
type AdditionalFields struct {
	Temperature      *float64              `json:"temperature,omitempty"`
	MaxTokens        *int                  `json:"max_tokens,omitempty"`
	TopP             *float64              `json:"top_p,omitempty"`
	Stream           *bool                 `json:"stream,omitempty"`
	Stop             StopSequences         `json:"stop,omitempty"`
	PresencePenalty  *float64              `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64              `json:"frequency_penalty,omitempty"`
	Tools            node.Collection[Tool] `json:"tools,omitempty"`
}

// StopSequences is the stop parameter. The host sends either a
// comma-separated string or a list of strings.
type StopSequences []string

// UnmarshalJSON accepts both shapes. A string is split on commas and each
// part trimmed; empty parts are kept.
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '[' {
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		*s = nil
		return nil
	}
	*s = splitStop(str)
	return nil
}

// Params are the node parameters for a chat request.
type Params struct {
	Model            string                   `json:"model" validate:"required"`
	Messages         node.Collection[Message] `json:"messages" validate:"dive"`
	AdditionalFields AdditionalFields         `json:"additionalFields"`
}

// Request is the chat completions request body.
type Request struct {
	Model            string           `json:"model"`
	Messages         []Message        `json:"messages"`
	Temperature      *float64         `json:"temperature,omitempty"`
	MaxTokens        *int             `json:"max_tokens,omitempty"`
	TopP             *float64         `json:"top_p,omitempty"`
	Stream           *bool            `json:"stream,omitempty"`
	Stop             []string         `json:"stop,omitempty"`
	PresencePenalty  *float64         `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64         `json:"frequency_penalty,omitempty"`
	Tools            []map[string]any `json:"tools,omitempty"`
}

// BuildRequest maps params into a request body. It fails with a validation
// error when no message is given.
func BuildRequest(p Params) (Request, error) {
	if len(p.Messages) == 0 {
		return Request{}, node.Validationf("At least one message is required")
	}

	af := p.AdditionalFields
	req := Request{
		Model:            p.Model,
		Messages:         []Message(p.Messages),
		Temperature:      af.Temperature,
		MaxTokens:        af.MaxTokens,
		TopP:             af.TopP,
		Stream:           af.Stream,
		PresencePenalty:  af.PresencePenalty,
		FrequencyPenalty: af.FrequencyPenalty,
	}
	if len(af.Stop) > 0 {
		req.Stop = []string(af.Stop)
	}
	req.Tools = buildTools(af.Tools)
	return req, nil
}

func splitStop(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func buildTools(tools []Tool) []map[string]any {
	var out []map[string]any
	for _, t := range tools {
		switch t.ToolType {
		case "googleMaps":
			cfg := map[string]any{}
			if t.EnableWidget != nil {
				cfg["enableWidget"] = *t.EnableWidget
			}
			if t.Latitude != nil {
				cfg["latitude"] = *t.Latitude
			}
			if t.Longitude != nil {
				cfg["longitude"] = *t.Longitude
			}
			if t.LanguageCode != "" {
				cfg["languageCode"] = t.LanguageCode
			}
			out = append(out, map[string]any{"googleMaps": cfg})
		case "urlContext", "codeExecution", "googleSearch":
			out = append(out, map[string]any{t.ToolType: map[string]any{}})
		}
	}
	return out
}

// MessageModel is the chat operation.
type MessageModel struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewMessageModel creates the chat operation.
func NewMessageModel(api *maiarouter.Client, logger *slog.Logger) *MessageModel {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageModel{api: api, logger: logger}
}

// Execute sends one chat completion request for the item.
func (m *MessageModel) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p Params
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}
	req, err := BuildRequest(p)
	if err != nil {
		return node.Item{}, err
	}

	m.logger.Debug("sending chat completion",
		slog.Int("item", in.Index),
		slog.String("model", req.Model),
		slog.Int("messages", len(req.Messages)),
		slog.Int("tools", len(req.Tools)),
	)

	resp, err := m.api.PostJSON(ctx, maiarouter.AuthBearer, m.api.V1("chat", "completions"), req)
	if err != nil {
		return node.Item{}, err
	}

	obj, ok := maiarouter.DecodeObject(resp)
	if !ok {
		return node.NewItem(in.Index, map[string]any{
			"raw_response":  string(resp.Body),
			"response_type": "unknown",
			"model":         req.Model,
		}), nil
	}
	return node.NewItem(in.Index, obj), nil
}
