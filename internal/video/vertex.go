package video

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

// DefaultStorageURI is the bucket Vertex writes rendered videos to.
const DefaultStorageURI = "gs://maiarouter/"

const (
	gcsScheme     = "gs://"
	gcsPublicHost = "https://storage.googleapis.com/"
)

// VertexBackend drives long-running predict operations on the Vertex-AI
// passthrough routes.
type VertexBackend struct {
	api        *maiarouter.Client
	storageURI string
	logger     *slog.Logger
}

// VertexOption configures a VertexBackend.
type VertexOption func(*VertexBackend)

// WithStorageURI sets the default output bucket.
func WithStorageURI(uri string) VertexOption {
	return func(b *VertexBackend) {
		if uri != "" {
			b.storageURI = uri
		}
	}
}

// WithVertexLogger sets the logger.
func WithVertexLogger(l *slog.Logger) VertexOption {
	return func(b *VertexBackend) {
		b.logger = l
	}
}

// NewVertexBackend creates the Vertex-family backend.
func NewVertexBackend(api *maiarouter.Client, opts ...VertexOption) *VertexBackend {
	b := &VertexBackend{
		api:        api,
		storageURI: DefaultStorageURI,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Compile-time check that VertexBackend implements Backend.
var _ Backend = (*VertexBackend)(nil)

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParameters `json:"parameters"`
}

type predictInstance struct {
	Prompt string `json:"prompt"`
}

type predictParameters struct {
	StorageURI  string `json:"storageUri"`
	SampleCount int    `json:"sampleCount"`
}

// Family returns backend.FamilyVertex.
func (b *VertexBackend) Family() backend.Family {
	return backend.FamilyVertex
}

// Start submits a predictLongRunning operation.
func (b *VertexBackend) Start(ctx context.Context, opts StartOptions) (Outcome, error) {
	storage := opts.StorageURI
	if storage == "" {
		storage = b.storageURI
	}
	count := opts.SampleCount
	if count <= 0 {
		count = 1
	}

	resp, err := b.api.PostJSON(ctx, maiarouter.AuthLiteLLM, b.api.Vertex(opts.Model, "predictLongRunning"), predictRequest{
		Instances:  []predictInstance{{Prompt: opts.Prompt}},
		Parameters: predictParameters{StorageURI: storage, SampleCount: count},
	})
	if err != nil {
		return Outcome{}, err
	}

	obj, ok := maiarouter.DecodeObject(resp)
	if !ok {
		return Outcome{}, node.ResponseFormatf("Unexpected predictLongRunning response")
	}
	name, _ := obj["name"].(string)
	if name == "" {
		return Outcome{}, node.ResponseFormatf("predictLongRunning response did not include an operation name")
	}
	b.logger.Info("vertex operation started",
		slog.String("model", opts.Model),
		slog.String("operation", name),
		slog.Int("sample_count", count),
	)

	return Outcome{JobID: name, JSON: map[string]any{
		"success":       true,
		"model":         opts.Model,
		"prompt":        opts.Prompt,
		"operationName": name,
		"status":        string(StatusStarted),
	}}, nil
}

// Status fetches the operation and derives a public download URL when the
// render is finished.
func (b *VertexBackend) Status(ctx context.Context, model, opName string) (Outcome, error) {
	obj, downloadURL, err := b.fetch(ctx, model, opName)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{JobID: opName, JSON: node.Merge(map[string]any{
		"model":         model,
		"operationName": opName,
		"downloadUrl":   downloadURL,
	}, obj)}, nil
}

// Download fetches the operation, then the video behind its download URL.
func (b *VertexBackend) Download(ctx context.Context, model, opName string) (Outcome, error) {
	_, downloadURL, err := b.fetch(ctx, model, opName)
	if err != nil {
		return Outcome{}, err
	}
	if downloadURL == "" {
		return Outcome{}, node.Validationf("No download URL available")
	}
	data, err := b.api.Fetch(ctx, downloadURL)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{JobID: opName, Video: data, JSON: map[string]any{
		"success":       true,
		"model":         model,
		"operationName": opName,
		"downloadUrl":   downloadURL,
		"size":          len(data),
		"format":        videoFormat,
	}}, nil
}

// Remix is not offered by the Vertex routes.
func (b *VertexBackend) Remix(context.Context, string, string, string) (Outcome, error) {
	return Outcome{}, node.Unsupportedf("Remix is not supported for Vertex AI video models")
}

func (b *VertexBackend) fetch(ctx context.Context, model, opName string) (map[string]any, string, error) {
	if opName == "" {
		return nil, "", node.Validationf("Missing operation name. Pass the previous Start output (operationName) into this node or provide a jobHandle.")
	}
	resp, err := b.api.PostJSON(ctx, maiarouter.AuthLiteLLM, b.api.Vertex(model, "fetchPredictOperation"), map[string]string{"operationName": opName})
	if err != nil {
		return nil, "", err
	}
	obj, ok := maiarouter.DecodeObject(resp)
	if !ok {
		return nil, "", node.ResponseFormatf("Unexpected fetchPredictOperation response")
	}
	return obj, DownloadURL(resp.Body), nil
}

// DownloadURL extracts response.videos[0].gcsUri from an operation record,
// rewriting gs:// URIs to their public storage.googleapis.com form.
func DownloadURL(op []byte) string {
	uri := gjson.GetBytes(op, "response.videos.0.gcsUri").String()
	if strings.HasPrefix(uri, gcsScheme) {
		return gcsPublicHost + strings.TrimPrefix(uri, gcsScheme)
	}
	return uri
}
