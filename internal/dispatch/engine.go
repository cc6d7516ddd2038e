package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/calbot-io/calbot/internal/auth"
	"github.com/calbot-io/calbot/internal/calendar"
	"github.com/calbot-io/calbot/internal/logging"
)

// TokenSource yields an access token valid for at least the freshness margin.
type TokenSource interface {
	EnsureValid(ctx context.Context, userID string) (string, error)
}

// Observer receives one notification per dispatch outcome.
type Observer interface {
	ObserveDispatch(operation, status string)
}

// Engine executes validated tool calls against the calendar backend. It
// never retries: a retryable failure is reported as such and the caller
// decides whether to resubmit.
type Engine struct {
	tokens   TokenSource
	backend  calendar.Backend
	logger   *slog.Logger
	observer Observer
}

// NewEngine creates a dispatch engine.
func NewEngine(tokens TokenSource, backend calendar.Backend, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tokens: tokens, backend: backend, logger: logger}
}

// SetObserver attaches an outcome observer. Nil disables observation.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Dispatch validates req, obtains a fresh access token, and executes the
// operation. Validation runs before token acquisition: a malformed request
// never triggers a refresh, let alone a backend call.
func (e *Engine) Dispatch(ctx context.Context, req *ToolCallRequest) *Result {
	if req == nil {
		return &Result{Status: StatusValidationError, Reason: "empty request"}
	}

	result := e.dispatch(ctx, req)

	e.logger.Info("tool call dispatched",
		logging.Tool(req.Name),
		logging.UserHash(req.UserID),
		logging.Status(string(result.Status)),
		slog.String("request_id", req.RequestID))
	if e.observer != nil {
		e.observer.ObserveDispatch(req.Name, string(result.Status))
	}

	return result
}

// execFunc runs a fully validated operation with a valid access token.
type execFunc func(ctx context.Context, token string) *Result

func (e *Engine) dispatch(ctx context.Context, req *ToolCallRequest) *Result {
	if !KnownOperation(req.Name) {
		return validationError(req, fmt.Sprintf("unknown operation %q", req.Name))
	}
	if req.UserID == "" {
		return validationError(req, "user id is required")
	}

	var (
		exec execFunc
		vErr *Result
	)
	switch req.Name {
	case OpCreateEvent:
		exec, vErr = e.planCreate(req)
	case OpListEvents:
		exec, vErr = e.planList(req)
	case OpUpdateEvent:
		exec, vErr = e.planUpdate(req)
	default:
		exec, vErr = e.planDelete(req)
	}
	if vErr != nil {
		return vErr
	}

	token, err := e.tokens.EnsureValid(ctx, req.UserID)
	if err != nil {
		return e.tokenFailure(req, err)
	}

	return exec(ctx, token)
}

// tokenFailure maps a token acquisition error onto a result. Revoked and
// absent credentials both require re-authorization; a transient refresh
// failure stays a retryable backend error.
func (e *Engine) tokenFailure(req *ToolCallRequest, err error) *Result {
	if errors.Is(err, auth.ErrAuthRequired) || errors.Is(err, auth.ErrRevoked) {
		return authRequired(req)
	}
	var berr *calendar.BackendError
	if errors.As(err, &berr) {
		return backendFailure(req, berr)
	}
	return backendFailure(req, &calendar.BackendError{
		Kind: calendar.KindUnknown, Retryable: false, Err: err,
	})
}

func (e *Engine) planCreate(req *ToolCallRequest) (execFunc, *Result) {
	summary, err := requiredString(req.Arguments, "summary")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	start, err := timeArg(req.Arguments, "start")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	end, err := timeArg(req.Arguments, "end")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	if !end.After(start) {
		return nil, validationError(req, "end must be after start")
	}
	description, err := stringArg(req.Arguments, "description")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	location, err := stringArg(req.Arguments, "location")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	tz, err := stringArg(req.Arguments, "time_zone")
	if err != nil {
		return nil, validationError(req, err.Error())
	}

	input := calendar.EventInput{
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       start.UTC(),
		End:         end.UTC(),
		TimeZone:    tz,
	}
	return func(ctx context.Context, token string) *Result {
		event, err := e.backend.CreateEvent(ctx, token, calendar.DefaultCalendarID, input)
		if err != nil {
			return backendFailure(req, calendar.ClassifyError(err))
		}
		return success(req, &Payload{
			Operation: OpCreateEvent,
			Event:     event,
			EventID:   event.ID,
		})
	}, nil
}

func (e *Engine) planList(req *ToolCallRequest) (execFunc, *Result) {
	from, err := timeArg(req.Arguments, "from")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	to, err := timeArg(req.Arguments, "to")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	if !to.After(from) {
		return nil, validationError(req, "to must be after from")
	}
	requested, present, err := intArg(req.Arguments, "max_results")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	maxResults := clampMaxResults(requested, present, calendar.DefaultMaxResults, calendar.MaxResultsCap)

	fromUTC, toUTC := from.UTC(), to.UTC()
	return func(ctx context.Context, token string) *Result {
		events, err := e.backend.ListEvents(ctx, token, calendar.DefaultCalendarID, fromUTC, toUTC, maxResults)
		if err != nil {
			return backendFailure(req, calendar.ClassifyError(err))
		}

		// Ordering is enforced here regardless of what the backend returned.
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Start.Before(events[j].Start)
		})

		return success(req, &Payload{
			Operation: OpListEvents,
			Events:    events,
		})
	}, nil
}

func (e *Engine) planUpdate(req *ToolCallRequest) (execFunc, *Result) {
	eventID, err := requiredString(req.Arguments, "event_id")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	start, err := optionalTimeArg(req.Arguments, "start")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	end, err := optionalTimeArg(req.Arguments, "end")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return nil, validationError(req, "end must be after start")
	}
	summary, err := stringArg(req.Arguments, "summary")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	description, err := stringArg(req.Arguments, "description")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	location, err := stringArg(req.Arguments, "location")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	tz, err := stringArg(req.Arguments, "time_zone")
	if err != nil {
		return nil, validationError(req, err.Error())
	}
	if summary == "" && description == "" && location == "" && start.IsZero() && end.IsZero() {
		return nil, validationError(req, "at least one field to update is required")
	}

	input := calendar.EventInput{
		Summary:     summary,
		Description: description,
		Location:    location,
		TimeZone:    tz,
	}
	if !start.IsZero() {
		input.Start = start.UTC()
	}
	if !end.IsZero() {
		input.End = end.UTC()
	}

	return func(ctx context.Context, token string) *Result {
		event, err := e.backend.UpdateEvent(ctx, token, calendar.DefaultCalendarID, eventID, input)
		if err != nil {
			return backendFailure(req, calendar.ClassifyError(err))
		}
		return success(req, &Payload{
			Operation: OpUpdateEvent,
			Event:     event,
			EventID:   event.ID,
		})
	}, nil
}

func (e *Engine) planDelete(req *ToolCallRequest) (execFunc, *Result) {
	eventID, err := requiredString(req.Arguments, "event_id")
	if err != nil {
		return nil, validationError(req, err.Error())
	}

	return func(ctx context.Context, token string) *Result {
		if err := e.backend.DeleteEvent(ctx, token, calendar.DefaultCalendarID, eventID); err != nil {
			return backendFailure(req, calendar.ClassifyError(err))
		}
		return success(req, &Payload{
			Operation: OpDeleteEvent,
			EventID:   eventID,
			Message:   "event deleted",
		})
	}, nil
}
