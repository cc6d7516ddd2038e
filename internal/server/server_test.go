package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calbot-io/calbot/internal/auth"
	"github.com/calbot-io/calbot/internal/store"
)

type fakeCoordinator struct {
	userID string
	err    error
	calls  int
	state  string
	code   string
}

func (f *fakeCoordinator) HandleCallback(ctx context.Context, state, code string) (string, error) {
	f.calls++
	f.state, f.code = state, code
	if f.err != nil {
		return "", f.err
	}
	return f.userID, nil
}

type fakeSessions struct {
	session *store.AuthSession
}

func (f *fakeSessions) FindSessionByState(state string) (*store.AuthSession, bool) {
	if f.session == nil || f.session.State != state {
		return nil, false
	}
	return f.session, true
}

type fakeNotifier struct {
	notified []struct {
		userID string
		text   string
	}
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, text string) {
	f.notified = append(f.notified, struct {
		userID string
		text   string
	}{userID, text})
}

func newTestServer(coordinator *fakeCoordinator, sessions *fakeSessions, notifier *fakeNotifier) *Server {
	health := NewHealthChecker()
	health.SetReady(true)
	return New(Config{
		Coordinator: coordinator,
		Sessions:    sessions,
		Notifier:    notifier,
		Health:      health,
		Metrics:     NewMetrics(prometheus.NewRegistry()),
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func body(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	data, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(data)
}

func TestCallbackSuccess(t *testing.T) {
	coordinator := &fakeCoordinator{userID: "alice"}
	notifier := &fakeNotifier{}
	s := newTestServer(coordinator, &fakeSessions{}, notifier)

	rec := get(t, s, "/callback?state=abc&code=xyz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if coordinator.state != "abc" || coordinator.code != "xyz" {
		t.Errorf("coordinator got state=%q code=%q", coordinator.state, coordinator.code)
	}
	if !strings.Contains(body(t, rec), "connected") {
		t.Error("success page should confirm the connection")
	}
	if len(notifier.notified) != 1 || notifier.notified[0].userID != "alice" {
		t.Errorf("notified = %v, want one notification for alice", notifier.notified)
	}
}

func TestCallbackDeniedLeavesSessionPending(t *testing.T) {
	coordinator := &fakeCoordinator{}
	sessions := &fakeSessions{session: &store.AuthSession{
		UserID:    "alice",
		State:     "abc",
		ExpiresAt: time.Now().Add(time.Minute),
	}}
	notifier := &fakeNotifier{}
	s := newTestServer(coordinator, sessions, notifier)

	rec := get(t, s, "/callback?state=abc&error=access_denied")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if coordinator.calls != 0 {
		t.Error("denial must not consume the session")
	}
	if !strings.Contains(body(t, rec), "declined") {
		t.Error("denial page should say access was declined")
	}
	if len(notifier.notified) != 1 || notifier.notified[0].userID != "alice" {
		t.Errorf("notified = %v, want a denial notification for alice", notifier.notified)
	}
}

func TestCallbackMissingParams(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "no params", path: "/callback"},
		{name: "missing code", path: "/callback?state=abc"},
		{name: "missing state", path: "/callback?code=xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := &fakeCoordinator{}
			s := newTestServer(coordinator, &fakeSessions{}, &fakeNotifier{})

			rec := get(t, s, tt.path)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if coordinator.calls != 0 {
				t.Error("incomplete requests must not reach the coordinator")
			}
		})
	}
}

func TestCallbackFailuresUseUniformPage(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "invalid state", err: auth.ErrInvalidOrExpiredState},
		{name: "exchange failed", err: auth.ErrExchangeFailed},
	}

	var pages []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeCoordinator{err: tt.err}, &fakeSessions{}, &fakeNotifier{})

			rec := get(t, s, "/callback?state=abc&code=xyz")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			page := body(t, rec)
			if !strings.Contains(page, auth.FlowFailureMessage) {
				t.Error("failure page must carry the uniform flow failure message")
			}
			pages = append(pages, page)
		})
	}

	// The page must not reveal which failure occurred.
	if len(pages) == 2 && pages[0] != pages[1] {
		t.Error("different failure causes must render the same page")
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(&fakeCoordinator{}, &fakeSessions{}, &fakeNotifier{})

	rec := get(t, s, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}

	rec = get(t, s, "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rec.Code)
	}
}

func TestReadinessReflectsState(t *testing.T) {
	health := NewHealthChecker()
	s := New(Config{
		Coordinator: &fakeCoordinator{},
		Health:      health,
		Metrics:     NewMetrics(prometheus.NewRegistry()),
	})

	rec := get(t, s, "/readyz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready status = %d, want 503", rec.Code)
	}

	health.SetReady(true)
	rec = get(t, s, "/readyz")
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz after ready status = %d, want 200", rec.Code)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	s := newTestServer(&fakeCoordinator{userID: "alice"}, &fakeSessions{}, &fakeNotifier{})

	rec := get(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}
}
