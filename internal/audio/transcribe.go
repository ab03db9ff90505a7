package audio

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// Input data modes shared by the operations that accept a file.
const (
	InputBinary = "binaryData"
	InputURL    = "url"
)

const (
	fallbackAudioName = "audio.mp3"
	fallbackAudioMime = "audio/mpeg"
)

// TranscribeFields are the optional transcription settings.
type TranscribeFields struct {
	Language       string   `json:"language,omitempty"`
	Prompt         string   `json:"prompt,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty" validate:"omitempty,oneof=json text srt vtt verbose_json"`
	Temperature    *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// TranscribeParams are the node parameters for transcription.
type TranscribeParams struct {
	Model            string           `json:"transcribeModel" validate:"required"`
	InputDataMode    string           `json:"inputDataMode" validate:"omitempty,oneof=binaryData url"`
	BinaryProperty   string           `json:"binaryProperty"`
	AudioURL         string           `json:"audioUrl" validate:"omitempty,url"`
	AdditionalFields TranscribeFields `json:"transcribeAdditionalFields"`
}

// Transcribe is the speech-to-text operation.
type Transcribe struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewTranscribe creates the speech-to-text operation.
func NewTranscribe(api *maiarouter.Client, logger *slog.Logger) *Transcribe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcribe{api: api, logger: logger}
}

// Execute uploads the item's audio (or the audio behind audioUrl) for
// transcription.
func (t *Transcribe) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p TranscribeParams
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}

	file, err := t.loadAudio(ctx, in, p)
	if err != nil {
		return node.Item{}, err
	}

	form := gateway.NewMultipart().
		File("file", file.FileName, file.MimeType, file.Data).
		Field("model", p.Model)
	af := p.AdditionalFields
	if af.Language != "" {
		form.Field("language", af.Language)
	}
	if af.Prompt != "" {
		form.Field("prompt", af.Prompt)
	}
	if af.ResponseFormat != "" {
		form.Field("response_format", af.ResponseFormat)
	}
	if af.Temperature != nil {
		form.Field("temperature", strconv.FormatFloat(*af.Temperature, 'f', -1, 64))
	}

	t.logger.Debug("transcribing audio",
		slog.Int("item", in.Index),
		slog.String("model", p.Model),
		slog.String("file", file.FileName),
		slog.Int("bytes", len(file.Data)),
	)

	resp, err := t.api.PostMultipart(ctx, maiarouter.AuthBearer, t.api.V1("audio", "transcriptions"), form)
	if err != nil {
		return node.Item{}, err
	}

	if obj, ok := maiarouter.DecodeObject(resp); ok {
		return node.NewItem(in.Index, obj), nil
	}
	return node.NewItem(in.Index, map[string]any{
		"text":            string(resp.Body),
		"response_format": af.ResponseFormat,
	}), nil
}

func (t *Transcribe) loadAudio(ctx context.Context, in node.Input, p TranscribeParams) (*node.Binary, error) {
	if p.InputDataMode == InputURL {
		if p.AudioURL == "" {
			return nil, node.Validationf("Parameter %q is required", "audioUrl")
		}
		data, err := t.api.Fetch(ctx, p.AudioURL)
		if err != nil {
			return nil, err
		}
		return node.NewBinary(data, fallbackAudioName, fallbackAudioMime), nil
	}

	prop := p.BinaryProperty
	if prop == "" {
		prop = node.DefaultBinaryProperty
	}
	att, err := in.Attachment(prop)
	if err != nil {
		return nil, err
	}
	file := *att
	if file.FileName == "" {
		file.FileName = fallbackAudioName
	}
	if file.MimeType == "" {
		file.MimeType = fallbackAudioMime
	}
	return &file, nil
}
