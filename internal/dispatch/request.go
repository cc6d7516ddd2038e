package dispatch

import (
	"github.com/google/uuid"

	"github.com/calbot-io/calbot/internal/calendar"
)

// Operation names accepted by the engine.
const (
	OpCreateEvent = "create_event"
	OpListEvents  = "list_events"
	OpUpdateEvent = "update_event"
	OpDeleteEvent = "delete_event"
)

// ToolCallRequest is one structured operation request produced by the
// classifier on behalf of a user.
type ToolCallRequest struct {
	// RequestID correlates log lines across validation, refresh, and the
	// backend call.
	RequestID string
	UserID    string
	Name      string
	Arguments map[string]any
}

// NewToolCallRequest builds a request with a fresh correlation id.
func NewToolCallRequest(userID, name string, args map[string]any) *ToolCallRequest {
	return &ToolCallRequest{
		RequestID: uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Arguments: args,
	}
}

// Status tags the outcome of a dispatch.
type Status string

const (
	// StatusSuccess means the backend call completed and Payload is set.
	StatusSuccess Status = "success"

	// StatusValidationError means the request never reached the backend;
	// Reason explains what was wrong in user-facing terms.
	StatusValidationError Status = "validation_error"

	// StatusAuthRequired means the user has no usable credential and must
	// (re)authorize before retrying.
	StatusAuthRequired Status = "auth_required"

	// StatusBackendError means the backend call failed; ErrorKind and
	// Retryable describe the failure.
	StatusBackendError Status = "backend_error"
)

// Result is the normalized outcome of one dispatch. Exactly one of the
// detail fields is meaningful per status.
type Result struct {
	RequestID string
	Status    Status

	// Payload is set on StatusSuccess.
	Payload *Payload

	// Reason is set on StatusValidationError.
	Reason string

	// ErrorKind and Retryable are set on StatusBackendError.
	ErrorKind calendar.ErrorKind
	Retryable bool
}

// Payload is the single success shape for all operations. Events is set for
// list_events, Event for create/update, EventID for delete.
type Payload struct {
	Operation string           `json:"operation"`
	Event     *calendar.Event  `json:"event,omitempty"`
	Events    []calendar.Event `json:"events,omitempty"`
	EventID   string           `json:"event_id,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func validationError(req *ToolCallRequest, reason string) *Result {
	return &Result{RequestID: req.RequestID, Status: StatusValidationError, Reason: reason}
}

func authRequired(req *ToolCallRequest) *Result {
	return &Result{RequestID: req.RequestID, Status: StatusAuthRequired}
}

func backendFailure(req *ToolCallRequest, berr *calendar.BackendError) *Result {
	return &Result{
		RequestID: req.RequestID,
		Status:    StatusBackendError,
		ErrorKind: berr.Kind,
		Retryable: berr.Retryable,
	}
}

func success(req *ToolCallRequest, payload *Payload) *Result {
	return &Result{RequestID: req.RequestID, Status: StatusSuccess, Payload: payload}
}
