package video

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/maiarouter"
	"github.com/maauso/maiarouter-node/internal/node"
)

const (
	defaultSize    = "1280x720"
	defaultSeconds = "8"
	videoFormat    = "mp4"
	videoFileName  = "generated-video.mp4"
	videoMimeType  = "video/mp4"
)

// Fields are the optional video settings.
type Fields struct {
	Size        string      `json:"size,omitempty"`
	Seconds     node.Scalar `json:"seconds,omitempty"`
	SampleCount node.Scalar `json:"sampleCount,omitempty"`
	ResumeURL   string      `json:"resumeUrl,omitempty" validate:"omitempty,url"`
	StorageURI  string      `json:"storageUri,omitempty"`
}

// Params are the node parameters of the video operation.
type Params struct {
	Mode                         string  `json:"videoMode" validate:"omitempty,oneof=start status download remix"`
	Model                        string  `json:"videoModel" validate:"required"`
	Prompt                       string  `json:"prompt"`
	VideoID                      string  `json:"videoId"`
	OperationName                string  `json:"operationName"`
	JobHandle                    *Handle `json:"jobHandle"`
	BackendFamily                string  `json:"backendFamily"`
	InputReferenceBinaryProperty string  `json:"inputReferenceBinaryProperty"`
	AdditionalFields             Fields  `json:"videoAdditionalFields"`
}

// Controller dispatches video lifecycle steps to the backend of the model's
// family. It holds no job state between invocations.
type Controller struct {
	registry *backend.Registry
	backends map[backend.Family]Backend
	logger   *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRegistry sets the model classification table.
func WithRegistry(r *backend.Registry) ControllerOption {
	return func(c *Controller) {
		c.registry = r
	}
}

// WithBackend registers b for its family, replacing any previous one.
func WithBackend(b Backend) ControllerOption {
	return func(c *Controller) {
		c.backends[b.Family()] = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates a controller with the OpenAI and Vertex backends
// bound to api.
func NewController(api *maiarouter.Client, opts ...ControllerOption) *Controller {
	c := &Controller{
		registry: backend.NewRegistry(),
		backends: make(map[backend.Family]Backend),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := c.backends[backend.FamilyOpenAI]; !ok {
		c.backends[backend.FamilyOpenAI] = NewOpenAIBackend(api, c.logger)
	}
	if _, ok := c.backends[backend.FamilyVertex]; !ok {
		c.backends[backend.FamilyVertex] = NewVertexBackend(api, WithVertexLogger(c.logger))
	}
	return c
}

// Execute performs the step selected by videoMode for one item.
func (c *Controller) Execute(ctx context.Context, in node.Input) (node.Item, error) {
	var p Params
	if err := in.Params.Decode(&p); err != nil {
		return node.Item{}, err
	}
	mode := Mode(p.Mode)
	if mode == "" {
		mode = ModeStart
	}

	family, err := c.family(p, mode, in)
	if err != nil {
		return node.Item{}, err
	}
	b, ok := c.backends[family]
	if !ok {
		return node.Item{}, node.Unsupportedf("No video backend registered for family %q", family)
	}

	c.logger.Debug("video step",
		slog.Int("item", in.Index),
		slog.String("mode", string(mode)),
		slog.String("model", p.Model),
		slog.String("family", string(family)),
	)

	var out Outcome
	switch mode {
	case ModeStart:
		opts, err := startOptions(p, in)
		if err != nil {
			return node.Item{}, err
		}
		out, err = b.Start(ctx, opts)
		if err != nil {
			return node.Item{}, err
		}
	case ModeStatus:
		out, err = b.Status(ctx, p.Model, jobID(p, in, family))
	case ModeDownload:
		out, err = b.Download(ctx, p.Model, jobID(p, in, family))
	case ModeRemix:
		if family != backend.FamilyOpenAI {
			return node.Item{}, node.Unsupportedf("Remix is not supported for %s video models", family)
		}
		out, err = b.Remix(ctx, p.Model, jobID(p, in, family), p.Prompt)
	default:
		return node.Item{}, node.Unsupportedf("Unknown video mode %q", mode)
	}
	if err != nil {
		return node.Item{}, err
	}

	result := node.Merge(out.JSON, map[string]any{
		"mode":      string(mode),
		"jobHandle": Handle{JobID: out.JobID, BackendFamily: family}.Map(),
	})
	item := node.NewItem(in.Index, result)
	if out.Video != nil || mode == ModeDownload {
		item = item.WithBinary(node.DefaultBinaryProperty, node.NewBinary(out.Video, videoFileName, videoMimeType))
	}
	return item, nil
}

// family resolves the backend family: an explicit backendFamily, then the
// jobHandle parameter, then the model registry. A handle inherited from the
// previous node's output only settles models the registry cannot place, and
// never a start.
func (c *Controller) family(p Params, mode Mode, in node.Input) (backend.Family, error) {
	explicit := []string{p.BackendFamily}
	if p.JobHandle != nil {
		explicit = append(explicit, string(p.JobHandle.BackendFamily))
	}
	if f, ok, err := firstFamily(explicit); ok || err != nil {
		return f, err
	}

	if f := c.registry.Classify(p.Model); f.IsKnown() {
		return f, nil
	}

	if mode != ModeStart {
		inherited := []string{string(handleFrom(in.Item.JSON["jobHandle"]).BackendFamily)}
		if f, ok, err := firstFamily(inherited); ok || err != nil {
			return f, err
		}
	}
	return "", node.Validationf("Cannot determine the backend family of model %q. Set %q to openai or vertex.", p.Model, "backendFamily")
}

// firstFamily parses the first non-empty name.
func firstFamily(names []string) (backend.Family, bool, error) {
	for _, name := range names {
		if name == "" {
			continue
		}
		f, err := backend.ParseFamily(name)
		if err != nil {
			return "", false, node.Validationf("Parameter %q must be one of [openai vertex], got %s", "backendFamily", name)
		}
		if f.IsKnown() {
			return f, true, nil
		}
	}
	return "", false, nil
}

// jobID resolves the job to act on: the family's id parameter, the jobHandle
// parameter, then the previous node's output.
func jobID(p Params, in node.Input, family backend.Family) string {
	explicit, key := p.VideoID, "videoId"
	if family == backend.FamilyVertex {
		explicit, key = p.OperationName, "operationName"
	}
	if explicit != "" {
		return explicit
	}
	if p.JobHandle != nil && p.JobHandle.JobID != "" {
		return p.JobHandle.JobID
	}
	if s := in.String(key); s != "" {
		return s
	}
	return handleFrom(in.Item.JSON["jobHandle"]).JobID
}

func startOptions(p Params, in node.Input) (StartOptions, error) {
	if p.Prompt == "" {
		return StartOptions{}, node.Validationf("Parameter %q is required", "prompt")
	}
	af := p.AdditionalFields
	opts := StartOptions{
		Model:       p.Model,
		Prompt:      p.Prompt,
		Size:        af.Size,
		Seconds:     af.Seconds.String(),
		ResumeURL:   af.ResumeURL,
		SampleCount: sampleCount(af.SampleCount),
		StorageURI:  af.StorageURI,
	}
	if opts.Size == "" {
		opts.Size = defaultSize
	}
	if opts.Seconds == "" || opts.Seconds == "0" {
		opts.Seconds = defaultSeconds
	}
	if p.InputReferenceBinaryProperty != "" {
		ref, err := in.Attachment(p.InputReferenceBinaryProperty)
		if err != nil {
			return StartOptions{}, err
		}
		opts.Reference = ref
	}
	return opts, nil
}

// sampleCount parses the integer part of n, defaulting to 1.
func sampleCount(n node.Scalar) int {
	if i, err := strconv.Atoi(n.String()); err == nil && i > 0 {
		return i
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil && f >= 1 {
		return int(f)
	}
	return 1
}
