// Package audio implements text-to-speech generation and speech transcription
// against the OpenAI-compatible audio endpoints.
package audio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// DefaultFormat is the speech output format when none is requested.
const DefaultFormat = "mp3"

// SpeechFields are the optional speech settings.
type SpeechFields struct {
	ResponseFormat string   `json:"response_format,omitempty" validate:"omitempty,oneof=mp3 opus aac flac wav pcm"`
	Speed          *float64 `json:"speed,omitempty" validate:"omitempty,gte=0.25,lte=4"`
}

// SpeechParams are the node parameters for speech generation.
type SpeechParams struct {
	Model            string       `json:"ttsModel" validate:"required"`
	Input            string       `json:"input" validate:"required"`
	Voice            string       `json:"voice" validate:"required"`
	AdditionalFields SpeechFields `json:"ttsAdditionalFields"`
}

// SpeechRequest is the /v1/audio/speech request body.
type SpeechRequest struct {
	Model          string   `json:"model"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
}

// Format returns the requested output format or DefaultFormat.
func (p SpeechParams) Format() string {
	if p.AdditionalFields.ResponseFormat != "" {
		return p.AdditionalFields.ResponseFormat
	}
	return DefaultFormat
}

// Speech is the text-to-speech operation.
type Speech struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewSpeech creates the text-to-speech operation.
func NewSpeech(api *maiarouter.Client, logger *slog.Logger) *Speech {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speech{api: api, logger: logger}
}

// Execute synthesizes speech for the item and returns it as the "data"
// attachment.
func (s *Speech) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p SpeechParams
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}

	req := SpeechRequest{
		Model:          p.Model,
		Input:          p.Input,
		Voice:          p.Voice,
		ResponseFormat: p.AdditionalFields.ResponseFormat,
		Speed:          p.AdditionalFields.Speed,
	}
	resp, err := s.api.PostJSON(ctx, maiarouter.AuthBearer, s.api.V1("audio", "speech"), req)
	if err != nil {
		return node.Item{}, err
	}

	audio, err := ExtractAudio(resp)
	if err != nil {
		return node.Item{}, err
	}
	if len(audio) == 0 {
		return node.Item{}, node.ResponseFormatf("Received empty audio buffer")
	}

	format := p.Format()
	s.logger.Debug("speech generated",
		slog.Int("item", in.Index),
		slog.String("model", p.Model),
		slog.String("format", format),
		slog.Int("bytes", len(audio)),
	)

	item := node.NewItem(in.Index, map[string]any{
		"success": true,
		"model":   p.Model,
		"voice":   p.Voice,
		"format":  format,
		"input":   p.Input,
		"size":    len(audio),
	})
	return item.WithBinary(node.DefaultBinaryProperty, node.NewBinary(audio, "speech."+format, "audio/"+format)), nil
}

// ExtractAudio returns the audio bytes of a speech response. Non-JSON bodies
// are the audio itself. JSON bodies must wrap the audio under "data" or
// "buffer" as a base64 string, a byte array, or a serialized Buffer object.
func ExtractAudio(resp *gateway.Response) ([]byte, error) {
	if !resp.IsJSON() {
		return resp.Body, nil
	}

	root := gjson.ParseBytes(resp.Body)
	if !gjson.ValidBytes(resp.Body) || !root.IsObject() {
		return nil, node.ResponseFormatf("Invalid audio response type: %s", resp.Header.Get("Content-Type"))
	}
	for _, key := range []string{"data", "buffer"} {
		if v := root.Get(key); v.Exists() {
			if b, ok := decodeBuffer(v); ok {
				return b, nil
			}
		}
	}

	keys := []string{}
	root.ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	slices.Sort(keys)
	listed, _ := json.Marshal(slices.Compact(keys))
	return nil, node.ResponseFormatf("Unexpected response format: %s", listed)
}

// decodeBuffer reads a base64 string, a byte array, or a serialized Node
// Buffer ({"type":"Buffer","data":[...]}).
func decodeBuffer(v gjson.Result) ([]byte, bool) {
	switch {
	case v.Type == gjson.String:
		b, err := base64.StdEncoding.DecodeString(v.String())
		return b, err == nil
	case v.IsArray():
		return bytesFromArray(v.Array())
	case v.IsObject() && v.Get("type").String() == "Buffer":
		return bytesFromArray(v.Get("data").Array())
	}
	return nil, false
}

func bytesFromArray(arr []gjson.Result) ([]byte, bool) {
	out := make([]byte, len(arr))
	for i, v := range arr {
		if v.Type != gjson.Number || v.Num != float64(int64(v.Num)) || v.Num < 0 || v.Num > 255 {
			return nil, false
		}
		out[i] = byte(v.Num)
	}
	return out, true
}
