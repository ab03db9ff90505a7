package server

import "github.com/maauso/maiarouter-node/internal/node"

// ExecuteRequest represents the request body for POST /v1/execute.
type ExecuteRequest struct {
	Resource       string         `json:"resource" validate:"required"`
	Operation      string         `json:"operation" validate:"required"`
	ContinueOnFail bool           `json:"continueOnFail"`
	Parameters     map[string]any `json:"parameters"`
	Items          []node.Item    `json:"items" validate:"max=1000"`
	// PersistBinary stores result attachments and returns their locations
	// instead of inline base64 data.
	PersistBinary bool `json:"persistBinary"`
}

// ExecuteResponse represents the response body for POST /v1/execute.
type ExecuteResponse struct {
	Items []node.Item `json:"items"`
}

// OperationsResponse represents the response body for GET /v1/operations.
type OperationsResponse struct {
	Operations []string `json:"operations"`
}

// CredentialsResponse represents the response body for GET /v1/credentials/test.
type CredentialsResponse struct {
	Status string `json:"status"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Item is the index of the input item that aborted the batch.
	Item *int `json:"item,omitempty"`
}

// HealthResponse represents the response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
