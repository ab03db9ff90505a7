package video

import (
	"context"
	"log/slog"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// OpenAIBackend drives jobs through the /v1/videos resource.
type OpenAIBackend struct {
	api    *maiarouter.Client
	logger *slog.Logger
}

// NewOpenAIBackend creates the OpenAI-family backend.
func NewOpenAIBackend(api *maiarouter.Client, logger *slog.Logger) *OpenAIBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIBackend{api: api, logger: logger}
}

// Compile-time check that OpenAIBackend implements Backend.
var _ Backend = (*OpenAIBackend)(nil)

// createRequest is the /v1/videos request body.
type createRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	Size      string `json:"size"`
	Seconds   string `json:"seconds"`
	ResumeURL string `json:"resume_url,omitempty"`
}

// Family returns backend.FamilyOpenAI.
func (b *OpenAIBackend) Family() backend.Family {
	return backend.FamilyOpenAI
}

// Start creates a video. A reference image switches the body to multipart.
func (b *OpenAIBackend) Start(ctx context.Context, opts StartOptions) (Outcome, error) {
	var (
		resp *gateway.Response
		err  error
	)
	target := b.api.V1("videos")
	if opts.Reference != nil {
		form := gateway.NewMultipart().
			Field("model", opts.Model).
			Field("prompt", opts.Prompt).
			Field("size", opts.Size).
			Field("seconds", opts.Seconds)
		if opts.ResumeURL != "" {
			form.Field("resume_url", opts.ResumeURL)
		}
		ref := opts.Reference
		form.File("input_reference", ref.FileName, ref.MimeType, ref.Data)
		resp, err = b.api.PostMultipart(ctx, maiarouter.AuthBearer, target, form)
	} else {
		resp, err = b.api.PostJSON(ctx, maiarouter.AuthBearer, target, createRequest{
			Model:     opts.Model,
			Prompt:    opts.Prompt,
			Size:      opts.Size,
			Seconds:   opts.Seconds,
			ResumeURL: opts.ResumeURL,
		})
	}
	if err != nil {
		return Outcome{}, err
	}

	obj, id, err := videoObject(resp, "creation")
	if err != nil {
		return Outcome{}, err
	}
	b.logger.Info("video job created",
		slog.String("model", opts.Model),
		slog.String("video_id", id),
		slog.Bool("input_reference", opts.Reference != nil),
	)

	return Outcome{JobID: id, JSON: map[string]any{
		"success": true,
		"model":   opts.Model,
		"prompt":  opts.Prompt,
		"size":    opts.Size,
		"seconds": opts.Seconds,
		"videoId": id,
		"status":  statusOf(obj),
	}}, nil
}

// Status returns the remote video record merged over the job identity.
func (b *OpenAIBackend) Status(ctx context.Context, model, jobID string) (Outcome, error) {
	if jobID == "" {
		return Outcome{}, node.Validationf("Video ID is required for status check")
	}
	resp, err := b.api.Get(ctx, maiarouter.AuthBearer, b.api.V1("videos", jobID))
	if err != nil {
		return Outcome{}, err
	}
	obj, ok := maiarouter.DecodeObject(resp)
	if !ok {
		return Outcome{}, node.ResponseFormatf("Unexpected video status response")
	}
	return Outcome{JobID: jobID, JSON: node.Merge(map[string]any{
		"model":   model,
		"videoId": jobID,
	}, obj)}, nil
}

// Download fetches the rendered MP4.
func (b *OpenAIBackend) Download(ctx context.Context, model, jobID string) (Outcome, error) {
	if jobID == "" {
		return Outcome{}, node.Validationf("Video ID is required for download")
	}
	resp, err := b.api.Get(ctx, maiarouter.AuthBearer, b.api.V1("videos", jobID, "content"))
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{JobID: jobID, Video: resp.Body, JSON: map[string]any{
		"success": true,
		"model":   model,
		"videoId": jobID,
		"size":    len(resp.Body),
		"format":  videoFormat,
	}}, nil
}

// Remix creates a new video from jobID with a new prompt.
func (b *OpenAIBackend) Remix(ctx context.Context, model, jobID, prompt string) (Outcome, error) {
	if jobID == "" {
		return Outcome{}, node.Validationf("Video ID is required for remix")
	}
	if prompt == "" {
		return Outcome{}, node.Validationf("Prompt is required for remix")
	}
	resp, err := b.api.PostJSON(ctx, maiarouter.AuthBearer, b.api.V1("videos", jobID, "remix"), map[string]string{"prompt": prompt})
	if err != nil {
		return Outcome{}, err
	}

	obj, id, err := videoObject(resp, "remix")
	if err != nil {
		return Outcome{}, err
	}
	b.logger.Info("video remix created",
		slog.String("model", model),
		slog.String("video_id", id),
		slog.String("previous_video_id", jobID),
	)

	return Outcome{JobID: id, JSON: map[string]any{
		"success":         true,
		"model":           model,
		"prompt":          prompt,
		"videoId":         id,
		"previousVideoId": jobID,
		"status":          statusOf(obj),
	}}, nil
}

func videoObject(resp *gateway.Response, call string) (map[string]any, string, error) {
	obj, ok := maiarouter.DecodeObject(resp)
	if !ok {
		return nil, "", node.ResponseFormatf("Unexpected video %s response", call)
	}
	id, _ := obj["id"].(string)
	if id == "" {
		return nil, "", node.ResponseFormatf("Video %s response did not include an id", call)
	}
	return obj, id, nil
}

func statusOf(obj map[string]any) string {
	if s, ok := obj["status"].(string); ok && s != "" {
		return s
	}
	return string(StatusQueued)
}
