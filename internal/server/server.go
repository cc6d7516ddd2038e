package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calbot-io/calbot/internal/auth"
	"github.com/calbot-io/calbot/internal/logging"
	"github.com/calbot-io/calbot/internal/store"
)

const (
	// DefaultAddr is the default bind address for the HTTP surface.
	DefaultAddr = ":8080"

	// CallbackPath is the fixed OAuth redirect path. Exactly one redirect
	// target is registered per deployment.
	CallbackPath = "/callback"

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 30 * time.Second
)

// CallbackHandler completes an authorization flow from redirect parameters.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, state, code string) (string, error)
}

// SessionFinder looks up a pending session without consuming it. Used on
// denial so the user can be notified while the session stays intact.
type SessionFinder interface {
	FindSessionByState(state string) (*store.AuthSession, bool)
}

// Notifier pushes a message into a user's chat after a flow completes.
type Notifier interface {
	Notify(ctx context.Context, userID, text string)
}

// Server is the external HTTP surface.
type Server struct {
	coordinator CallbackHandler
	sessions    SessionFinder
	notifier    Notifier
	health      *HealthChecker
	metrics     *Metrics
	logger      *slog.Logger
	httpServer  *http.Server
}

// Config holds the server wiring.
type Config struct {
	Addr        string
	Coordinator CallbackHandler
	Sessions    SessionFinder
	Notifier    Notifier
	Health      *HealthChecker
	Metrics     *Metrics
	Logger      *slog.Logger
}

// New creates the HTTP server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthChecker()
	}

	s := &Server{
		coordinator: cfg.Coordinator,
		sessions:    cfg.Sessions,
		notifier:    cfg.Notifier,
		health:      cfg.Health,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, s.handleCallback)
	mux.Handle("/healthz", cfg.Health.LivenessHandler())
	mux.Handle("/readyz", cfg.Health.ReadinessHandler())
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	return s
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// handleCallback processes the OAuth redirect. The provider calls it with
// state and either code (granted) or error (denied). Whatever happens here,
// the browser only ever sees one of three neutral pages; diagnostic detail
// stays in the logs.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.CallbackDuration.Observe(time.Since(start).Seconds())
		}
	}()

	q := r.URL.Query()
	state := q.Get("state")

	if errParam := q.Get("error"); errParam != "" {
		// Denial leaves the session pending so the user may still grant
		// access through the same link within the TTL.
		s.logger.Info("authorization denied by user",
			logging.Operation("callback"),
			logging.Err(fmt.Errorf("%w: %s", auth.ErrAuthorizationDenied, errParam)))
		s.countFlow(OutcomeDenied)
		s.notifyByState(r.Context(), state, "Calendar access was not granted. Send /auth if you want to try again.")
		s.writePage(w, http.StatusOK, "Authorization declined",
			"You declined calendar access. You can close this window and return to the chat.")
		return
	}

	code := q.Get("code")
	if state == "" || code == "" {
		s.countFlow(OutcomeBadRequest)
		s.writePage(w, http.StatusBadRequest, "Bad request",
			"This link is incomplete. Please restart the flow from the chat.")
		return
	}

	userID, err := s.coordinator.HandleCallback(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidOrExpiredState):
			s.countFlow(OutcomeInvalidState)
		case errors.Is(err, auth.ErrExchangeFailed):
			s.countFlow(OutcomeExchangeFail)
		default:
			s.countFlow(OutcomeExchangeFail)
		}
		s.logger.Warn("authorization callback failed",
			logging.Operation("callback"),
			logging.Err(err))
		// One uniform failure page; the cause is not distinguishable to
		// the person holding the link.
		s.writePage(w, http.StatusBadRequest, "Authorization failed", auth.FlowFailureMessage)
		return
	}

	s.countFlow(OutcomeSuccess)
	if s.notifier != nil {
		s.notifier.Notify(r.Context(), userID,
			"Your Google Calendar is connected. You can now manage events from this chat.")
	}
	s.writePage(w, http.StatusOK, "Authorization complete",
		"Your calendar is connected. You can close this window and return to the chat.")
}

// notifyByState resolves the pending session for a state token without
// consuming it and pushes a message to its user.
func (s *Server) notifyByState(ctx context.Context, state, text string) {
	if s.notifier == nil || s.sessions == nil || state == "" {
		return
	}
	session, ok := s.sessions.FindSessionByState(state)
	if !ok {
		return
	}
	s.notifier.Notify(ctx, session.UserID, text)
}

func (s *Server) countFlow(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthFlows.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, body)
}
