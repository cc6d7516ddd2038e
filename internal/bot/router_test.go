package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/calbot-io/calbot/internal/calendar"
	"github.com/calbot-io/calbot/internal/dispatch"
	"github.com/calbot-io/calbot/internal/telegram"
)

type fakeTransport struct {
	sent []struct {
		chatID int64
		text   string
	}
}

func (f *fakeTransport) GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error) {
	return nil, nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, struct {
		chatID int64
		text   string
	}{chatID, text})
	return nil
}

func (f *fakeTransport) lastSent(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return f.sent[len(f.sent)-1].text
}

type fakeClassifier struct {
	req   *dispatch.ToolCallRequest
	reply string
	err   error
}

func (f *fakeClassifier) Classify(ctx context.Context, userID, text string) (*dispatch.ToolCallRequest, string, error) {
	return f.req, f.reply, f.err
}

type fakeAuthorizer struct {
	authURL      string
	beginErr     error
	deauthorized []string
}

func (f *fakeAuthorizer) BeginAuthorization(ctx context.Context, userID string) (string, error) {
	if f.beginErr != nil {
		return "", f.beginErr
	}
	return f.authURL, nil
}

func (f *fakeAuthorizer) Deauthorize(userID string) error {
	f.deauthorized = append(f.deauthorized, userID)
	return nil
}

type fakeDispatcher struct {
	results []*dispatch.Result
	calls   int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req *dispatch.ToolCallRequest) *dispatch.Result {
	f.calls++
	if len(f.results) == 0 {
		return &dispatch.Result{Status: dispatch.StatusSuccess, Payload: &dispatch.Payload{}}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}

func incomingMessage(userID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID},
		Chat:      telegram.Chat{ID: userID},
		Text:      text,
	}
}

func newTestRouter(transport *fakeTransport, cls *fakeClassifier, authz *fakeAuthorizer, disp *fakeDispatcher) *Router {
	return NewRouter(transport, cls, authz, disp, nil)
}

func TestStartAndHelpCommands(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{command: "/start", want: "calendar assistant"},
		{command: "/help", want: "/auth"},
		{command: "/unknown", want: "Unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			transport := &fakeTransport{}
			r := newTestRouter(transport, &fakeClassifier{}, &fakeAuthorizer{}, &fakeDispatcher{})

			r.handleMessage(context.Background(), incomingMessage(42, tt.command))

			if got := transport.lastSent(t); !strings.Contains(got, tt.want) {
				t.Errorf("reply = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestAuthCommandSendsLink(t *testing.T) {
	transport := &fakeTransport{}
	authz := &fakeAuthorizer{authURL: "https://accounts.example.com/auth?state=abc"}
	r := newTestRouter(transport, &fakeClassifier{}, authz, &fakeDispatcher{})

	r.handleMessage(context.Background(), incomingMessage(42, "/auth"))

	got := transport.lastSent(t)
	if !strings.Contains(got, authz.authURL) {
		t.Errorf("reply = %q, want the authorization link", got)
	}
}

func TestLogoutCommand(t *testing.T) {
	transport := &fakeTransport{}
	authz := &fakeAuthorizer{}
	r := newTestRouter(transport, &fakeClassifier{}, authz, &fakeDispatcher{})

	r.handleMessage(context.Background(), incomingMessage(42, "/logout"))

	if len(authz.deauthorized) != 1 || authz.deauthorized[0] != "42" {
		t.Errorf("deauthorized = %v, want [42]", authz.deauthorized)
	}
	if got := transport.lastSent(t); !strings.Contains(got, "disconnected") {
		t.Errorf("reply = %q, want a disconnect confirmation", got)
	}
}

func TestPlainReplyPassedThrough(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{reply: "I only handle calendars."}
	disp := &fakeDispatcher{}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "tell me a joke"))

	if got := transport.lastSent(t); got != "I only handle calendars." {
		t.Errorf("reply = %q, want the classifier reply", got)
	}
	if disp.calls != 0 {
		t.Error("plain replies must not dispatch anything")
	}
}

func TestToolCallDispatchedAndFormatted(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{
		req: dispatch.NewToolCallRequest("42", dispatch.OpCreateEvent, nil),
	}
	disp := &fakeDispatcher{results: []*dispatch.Result{{
		Status: dispatch.StatusSuccess,
		Payload: &dispatch.Payload{
			Operation: dispatch.OpCreateEvent,
			Event: &calendar.Event{
				Summary: "lunch",
				Start:   time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
				End:     time.Date(2026, 8, 24, 13, 0, 0, 0, time.UTC),
			},
		},
	}}}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "schedule lunch tomorrow"))

	got := transport.lastSent(t)
	if !strings.Contains(got, "lunch") {
		t.Errorf("reply = %q, want the event summary", got)
	}
	if disp.calls != 1 {
		t.Errorf("dispatch calls = %d, want 1", disp.calls)
	}
}

func TestAuthRequiredResultPromptsAuth(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{req: dispatch.NewToolCallRequest("42", dispatch.OpListEvents, nil)}
	disp := &fakeDispatcher{results: []*dispatch.Result{{Status: dispatch.StatusAuthRequired}}}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "what's on today?"))

	if got := transport.lastSent(t); !strings.Contains(got, "/auth") {
		t.Errorf("reply = %q, want an /auth prompt", got)
	}
}

func TestRetryableBackendErrorRetriedTwice(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{req: dispatch.NewToolCallRequest("42", dispatch.OpListEvents, nil)}
	retryable := &dispatch.Result{
		Status:    dispatch.StatusBackendError,
		ErrorKind: calendar.KindUnavailable,
		Retryable: true,
	}
	disp := &fakeDispatcher{results: []*dispatch.Result{retryable, retryable, retryable}}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "what's on today?"))

	// One initial attempt plus two retries, then give up.
	if disp.calls != 3 {
		t.Errorf("dispatch calls = %d, want 3", disp.calls)
	}
	if got := transport.lastSent(t); !strings.Contains(got, "try again") {
		t.Errorf("reply = %q, want a transient failure message", got)
	}
}

func TestRetrySucceedsOnSecondAttempt(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{req: dispatch.NewToolCallRequest("42", dispatch.OpDeleteEvent, nil)}
	disp := &fakeDispatcher{results: []*dispatch.Result{
		{Status: dispatch.StatusBackendError, ErrorKind: calendar.KindUnavailable, Retryable: true},
		{Status: dispatch.StatusSuccess, Payload: &dispatch.Payload{Operation: dispatch.OpDeleteEvent}},
	}}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "cancel the meeting"))

	if disp.calls != 2 {
		t.Errorf("dispatch calls = %d, want 2", disp.calls)
	}
	if got := transport.lastSent(t); !strings.Contains(got, "deleted") {
		t.Errorf("reply = %q, want the delete confirmation", got)
	}
}

func TestNonRetryableErrorNotRetried(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{req: dispatch.NewToolCallRequest("42", dispatch.OpUpdateEvent, nil)}
	disp := &fakeDispatcher{results: []*dispatch.Result{{
		Status:    dispatch.StatusBackendError,
		ErrorKind: calendar.KindNotFound,
		Retryable: false,
	}}}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "move the meeting"))

	if disp.calls != 1 {
		t.Errorf("dispatch calls = %d, want 1 for a non-retryable failure", disp.calls)
	}
	if got := transport.lastSent(t); !strings.Contains(got, "couldn't find") {
		t.Errorf("reply = %q, want a not-found message", got)
	}
}

func TestClassifierFailure(t *testing.T) {
	transport := &fakeTransport{}
	cls := &fakeClassifier{err: errors.New("model unavailable")}
	disp := &fakeDispatcher{}
	r := newTestRouter(transport, cls, &fakeAuthorizer{}, disp)

	r.handleMessage(context.Background(), incomingMessage(42, "schedule something"))

	if disp.calls != 0 {
		t.Error("classification failure must not dispatch")
	}
	if got := transport.lastSent(t); !strings.Contains(got, "try again") {
		t.Errorf("reply = %q, want a retry prompt", got)
	}
}

func TestNotifyUsesLastKnownChat(t *testing.T) {
	transport := &fakeTransport{}
	r := newTestRouter(transport, &fakeClassifier{reply: "ok"}, &fakeAuthorizer{}, &fakeDispatcher{})

	// A message from user 42 in chat 42 records the mapping.
	r.handleMessage(context.Background(), incomingMessage(42, "hello"))
	transport.sent = nil

	r.Notify(context.Background(), "42", "Your calendar is connected.")

	if len(transport.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(transport.sent))
	}
	if transport.sent[0].chatID != 42 {
		t.Errorf("chatID = %d, want 42", transport.sent[0].chatID)
	}
}

func TestNotifyUnknownUserDropped(t *testing.T) {
	transport := &fakeTransport{}
	r := newTestRouter(transport, &fakeClassifier{}, &fakeAuthorizer{}, &fakeDispatcher{})

	r.Notify(context.Background(), "999", "hello?")

	if len(transport.sent) != 0 {
		t.Error("notification for an unknown user must be dropped")
	}
}
