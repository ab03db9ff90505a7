// Package video drives asynchronous video generation jobs. Each invocation
// performs one step of the job lifecycle (start, status, download or remix)
// against the backend family that serves the model; polling is left to the
// workflow.
package video

import (
	"github.com/maauso/maiarouter-node/internal/backend"
)

// Mode is the lifecycle step requested for an invocation.
type Mode string

const (
	// ModeStart submits a new job.
	ModeStart Mode = "start"
	// ModeStatus reports the current state of a job.
	ModeStatus Mode = "status"
	// ModeDownload fetches the finished video.
	ModeDownload Mode = "download"
	// ModeRemix derives a new job from a finished one.
	ModeRemix Mode = "remix"
)

// Status is a job state as reported by the remote API. Values are passed
// through unnormalized; the constants name the ones callers branch on.
type Status string

const (
	// StatusQueued is the OpenAI initial state, also assumed when the API omits it.
	StatusQueued Status = "queued"
	// StatusInProgress means the job is rendering.
	StatusInProgress Status = "in_progress"
	// StatusCompleted means the video can be downloaded.
	StatusCompleted Status = "completed"
	// StatusFailed means the job ended without a video.
	StatusFailed Status = "failed"
	// StatusStarted is assumed for Vertex jobs, whose start call returns only
	// an operation handle.
	StatusStarted Status = "started"
)

// IsTerminal returns true if the status represents a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Handle identifies a job across invocations: the OpenAI video id or the
// Vertex operation name, tagged with the family that issued it.
type Handle struct {
	JobID         string         `json:"jobId"`
	BackendFamily backend.Family `json:"backendFamily,omitempty"`
}

// Map renders the handle for inclusion in a result record.
func (h Handle) Map() map[string]any {
	return map[string]any{
		"jobId":         h.JobID,
		"backendFamily": string(h.BackendFamily),
	}
}

// handleFrom reads a handle embedded in a previous node's output.
func handleFrom(v any) Handle {
	m, ok := v.(map[string]any)
	if !ok {
		return Handle{}
	}
	id, _ := m["jobId"].(string)
	family, _ := m["backendFamily"].(string)
	return Handle{JobID: id, BackendFamily: backend.Family(family)}
}
