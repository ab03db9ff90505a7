// Package image implements image generation and editing. Gemini models are
// served through chat completions with inline images; every other model uses
// the OpenAI-style /images endpoints.
package image

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strconv"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// Input data modes for the source image and mask.
const (
	InputBinary = "binaryData"
	InputURL    = "url"
)

const (
	defaultImageProperty = "image"
	defaultMaskProperty  = "mask"
	fallbackImageName    = "image.png"
	fallbackMaskName     = "mask.png"
)

// Fields are the optional image settings shared by generate and edit.
type Fields struct {
	Size           string `json:"size,omitempty"`
	N              *int   `json:"n,omitempty" validate:"omitempty,gte=1,lte=10"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty" validate:"omitempty,oneof=url b64_json"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
}

// GenerateParams are the node parameters for image generation.
type GenerateParams struct {
	Model            string `json:"imageModel" validate:"required"`
	Prompt           string `json:"prompt" validate:"required"`
	AdditionalFields Fields `json:"imageAdditionalFields"`
}

// EditParams are the node parameters for image editing.
type EditParams struct {
	Model               string `json:"editImageModel" validate:"required"`
	Prompt              string `json:"editPrompt" validate:"required"`
	InputMode           string `json:"editInputMode" validate:"omitempty,oneof=binaryData url"`
	ImageBinaryProperty string `json:"imageBinaryProperty"`
	ImageURL            string `json:"imageUrl"`
	UseMask             bool   `json:"useMask"`
	MaskBinaryProperty  string `json:"maskBinaryProperty"`
	MaskURL             string `json:"maskUrl"`
	AdditionalFields    Fields `json:"editAdditionalFields"`
}

// GenerationRequest is the /v1/images/generations request body.
type GenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	N              *int   `json:"n,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// ChatImageRequest is the chat completions body used for Gemini image models.
type ChatImageRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	ImageConfig *ImageConfig  `json:"imageConfig,omitempty"`
}

// ChatMessage carries either a plain string or a list of ContentPart.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ContentPart is one element of a multi-part chat message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// ImageConfig holds Gemini image output settings.
type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

func imageConfig(f Fields) *ImageConfig {
	if f.AspectRatio == "" {
		return nil
	}
	return &ImageConfig{AspectRatio: f.AspectRatio}
}

// BuildGenerate returns the target route segments and body for a generation.
func BuildGenerate(p GenerateParams) ([]string, any) {
	if backend.ClassifyImage(p.Model) == backend.ImageProviderGemini {
		return []string{"chat", "completions"}, ChatImageRequest{
			Model:       p.Model,
			Messages:    []ChatMessage{{Role: "user", Content: p.Prompt}},
			ImageConfig: imageConfig(p.AdditionalFields),
		}
	}
	af := p.AdditionalFields
	return []string{"images", "generations"}, GenerationRequest{
		Model:          p.Model,
		Prompt:         p.Prompt,
		Size:           af.Size,
		N:              af.N,
		Quality:        af.Quality,
		ResponseFormat: af.ResponseFormat,
	}
}

// Generate is the image generation operation.
type Generate struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewGenerate creates the image generation operation.
func NewGenerate(api *maiarouter.Client, logger *slog.Logger) *Generate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generate{api: api, logger: logger}
}

// Execute generates images for the item.
func (g *Generate) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p GenerateParams
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}

	route, body := BuildGenerate(p)
	g.logger.Debug("generating image",
		slog.Int("item", in.Index),
		slog.String("model", p.Model),
		slog.String("provider", string(backend.ClassifyImage(p.Model))),
	)

	resp, err := g.api.PostJSON(ctx, maiarouter.AuthBearer, g.api.V1(route...), body)
	if err != nil {
		return node.Item{}, err
	}
	return translator{naming: generateNaming, model: p.Model, logger: g.logger}.translate(in.Index, resp), nil
}

// Edit is the image editing operation.
type Edit struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewEdit creates the image editing operation.
func NewEdit(api *maiarouter.Client, logger *slog.Logger) *Edit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Edit{api: api, logger: logger}
}

// Execute edits the item's source image.
func (e *Edit) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p EditParams
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}

	gemini := backend.ClassifyImage(p.Model) == backend.ImageProviderGemini
	if gemini && p.UseMask {
		return node.Item{}, node.Unsupportedf("Masks are not supported for Gemini image models")
	}

	source, err := e.load(ctx, in, p.InputMode, p.ImageBinaryProperty, defaultImageProperty, p.ImageURL, "Image URL is required", fallbackImageName)
	if err != nil {
		return node.Item{}, err
	}

	tr := translator{naming: editNaming, model: p.Model, logger: e.logger}
	if gemini {
		resp, err := e.api.PostJSON(ctx, maiarouter.AuthBearer, e.api.V1("chat", "completions"), BuildGeminiEdit(p, source))
		if err != nil {
			return node.Item{}, err
		}
		return tr.translate(in.Index, resp), nil
	}

	af := p.AdditionalFields
	form := gateway.NewMultipart().
		File("image", source.FileName, source.MimeType, source.Data).
		Field("prompt", p.Prompt).
		Field("model", p.Model)
	if af.Size != "" {
		form.Field("size", af.Size)
	}
	if af.ResponseFormat != "" {
		form.Field("response_format", af.ResponseFormat)
	}
	if af.Quality != "" {
		form.Field("quality", af.Quality)
	}
	if af.N != nil {
		form.Field("n", strconv.Itoa(*af.N))
	}
	if p.UseMask {
		mask, err := e.load(ctx, in, p.InputMode, p.MaskBinaryProperty, defaultMaskProperty, p.MaskURL, "Mask URL is required", fallbackMaskName)
		if err != nil {
			return node.Item{}, err
		}
		form.File("mask", mask.FileName, mask.MimeType, mask.Data)
	}

	e.logger.Debug("editing image",
		slog.Int("item", in.Index),
		slog.String("model", p.Model),
		slog.Int("bytes", len(source.Data)),
		slog.Bool("mask", p.UseMask),
	)

	resp, err := e.api.PostMultipart(ctx, maiarouter.AuthBearer, e.api.V1("images", "edits"), form)
	if err != nil {
		return node.Item{}, err
	}
	return tr.translate(in.Index, resp), nil
}

// BuildGeminiEdit returns the chat completions body that asks a Gemini model
// to edit source.
func BuildGeminiEdit(p EditParams, source *node.Binary) ChatImageRequest {
	mime := source.MimeType
	if mime == "" {
		mime = generatedMimeType
	}
	return ChatImageRequest{
		Model: p.Model,
		Messages: []ChatMessage{{
			Role: "user",
			Content: []ContentPart{
				{Type: "text", Text: p.Prompt},
				{Type: "image_url", ImageURL: &ImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(source.Data)}},
			},
		}},
		ImageConfig: imageConfig(p.AdditionalFields),
	}
}

func (e *Edit) load(ctx context.Context, in node.Input, mode, prop, defProp, url, missingURL, fallbackName string) (*node.Binary, error) {
	if mode == InputURL {
		if url == "" {
			return nil, node.Validationf("%s", missingURL)
		}
		data, err := e.api.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		return node.NewBinary(data, fallbackName, generatedMimeType), nil
	}

	if prop == "" {
		prop = defProp
	}
	att, err := in.Attachment(prop)
	if err != nil {
		return nil, err
	}
	file := *att
	if file.FileName == "" {
		file.FileName = fallbackName
	}
	if file.MimeType == "" {
		file.MimeType = generatedMimeType
	}
	return &file, nil
}
