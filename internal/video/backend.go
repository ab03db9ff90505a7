package video

import (
	"context"

	"github.com/maauso/maiarouter-node/internal/backend"
	"github.com/maauso/maiarouter-node/internal/node"
)

// StartOptions contains parameters for submitting a job.
type StartOptions struct {
	Model       string
	Prompt      string
	Size        string       // OpenAI only
	Seconds     string       // OpenAI only, sent as a decimal string
	ResumeURL   string       // OpenAI only
	Reference   *node.Binary // OpenAI only, sent as input_reference
	SampleCount int          // Vertex only
	StorageURI  string       // Vertex only
}

// Outcome is what a backend reports for one lifecycle step.
type Outcome struct {
	// JobID is the id of the job the outcome refers to (the new job for
	// start and remix).
	JobID string
	// JSON holds the result fields, without mode and jobHandle.
	JSON map[string]any
	// Video holds the downloaded bytes (download only).
	Video []byte
}

// Backend is one video API family. OpenAI and Vertex implement this interface.
type Backend interface {
	// Family returns the family served by this backend.
	Family() backend.Family

	// Start submits a generation job.
	Start(ctx context.Context, opts StartOptions) (Outcome, error)

	// Status fetches the current state of jobID.
	Status(ctx context.Context, model, jobID string) (Outcome, error)

	// Download fetches the rendered video of jobID.
	Download(ctx context.Context, model, jobID string) (Outcome, error)

	// Remix submits a new job derived from jobID.
	Remix(ctx context.Context, model, jobID, prompt string) (Outcome, error)
}
