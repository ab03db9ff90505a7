package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/maiarouter-node/internal/dispatch"
	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/node"
	"github.com/maauso/maiarouter-node/internal/storage"
)

// maxBodyBytes bounds request bodies; items carry inline base64 attachments.
const maxBodyBytes = 64 << 20

// Runner executes node batches.
type Runner interface {
	Run(ctx context.Context, b dispatch.Batch) ([]node.Item, error)
	Operations() []string
}

// CredentialChecker verifies the upstream API key.
type CredentialChecker interface {
	VerifyCredentials(ctx context.Context) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	runner    Runner
	store     storage.Storage
	checker   CredentialChecker
	validator *validator.Validate
	logger    *slog.Logger
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithStorage enables persistBinary requests by writing attachments to st.
func WithStorage(st storage.Storage) HandlerOption {
	return func(h *Handlers) {
		h.store = st
	}
}

// WithCredentialChecker enables GET /v1/credentials/test.
func WithCredentialChecker(c CredentialChecker) HandlerOption {
	return func(h *Handlers) {
		h.checker = c
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(runner Runner, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		runner:    runner,
		validator: validator.New(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Operations handles GET /v1/operations requests.
func (h *Handlers) Operations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OperationsResponse{Operations: h.runner.Operations()})
}

// TestCredentials handles GET /v1/credentials/test requests.
func (h *Handlers) TestCredentials(w http.ResponseWriter, r *http.Request) {
	if h.checker == nil {
		writeError(w, http.StatusNotImplemented, "credential check is not configured", "NOT_CONFIGURED")
		return
	}
	if err := h.checker.VerifyCredentials(r.Context()); err != nil {
		status, code := http.StatusBadGateway, "UPSTREAM_ERROR"
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && (gwErr.StatusCode == http.StatusUnauthorized || gwErr.StatusCode == http.StatusForbidden) {
			status, code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
		}
		h.logger.Warn("credential check failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, CredentialsResponse{Status: "ok"})
}

// Execute handles POST /v1/execute requests.
func (h *Handlers) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.PersistBinary && h.store == nil {
		writeError(w, http.StatusBadRequest, "binary persistence is not configured", "STORAGE_UNAVAILABLE")
		return
	}

	items, err := h.runner.Run(r.Context(), dispatch.Batch{
		Resource:       req.Resource,
		Operation:      req.Operation,
		Params:         req.Parameters,
		Items:          req.Items,
		ContinueOnFail: req.ContinueOnFail,
	})
	if err != nil {
		status, code := classify(err)
		h.logger.Error("node execution failed",
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("resource", req.Resource),
			slog.String("operation", req.Operation),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		resp := ErrorResponse{Error: err.Error(), Code: code}
		var itemErr *dispatch.ItemError
		if errors.As(err, &itemErr) {
			resp.Item = &itemErr.Index
		}
		writeJSON(w, status, resp)
		return
	}

	if req.PersistBinary {
		if err := storage.Persist(r.Context(), h.store, items, h.logger); err != nil {
			h.logger.Error("failed to persist attachments",
				slog.String("request_id", RequestIDFrom(r.Context())),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to persist attachments", "PERSIST_FAILED")
			return
		}
	}

	h.logger.Info("node executed",
		slog.String("request_id", RequestIDFrom(r.Context())),
		slog.String("resource", req.Resource),
		slog.String("operation", req.Operation),
		slog.Int("items", len(items)),
	)

	writeJSON(w, http.StatusOK, ExecuteResponse{Items: items})
}

// classify maps an execution error to an HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, node.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, node.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_OPERATION"
	case errors.Is(err, node.ErrResponseFormat):
		return http.StatusBadGateway, "UNEXPECTED_RESPONSE"
	case gateway.IsError(err):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
