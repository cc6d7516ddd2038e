package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/calbot-io/calbot/internal/logging"
	"github.com/calbot-io/calbot/internal/store"
)

const (
	// SessionTTL bounds how long an authorization link stays valid.
	SessionTTL = 10 * time.Minute

	stateTokenBytes = 32

	exchangeTimeout = 15 * time.Second
)

// Coordinator drives the three-legged OAuth redirect flow. Per user the flow
// moves Unauthenticated -> PendingAuth -> Authenticated, and from there back
// to PendingAuth (re-auth) or Revoked.
type Coordinator struct {
	oauth  *oauth2.Config
	store  store.Store
	locks  *UserLocks
	ttl    time.Duration
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. The lock registry must be the same
// instance the Refresher uses.
func NewCoordinator(cfg *oauth2.Config, st store.Store, locks *UserLocks, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		oauth:  cfg,
		store:  st,
		locks:  locks,
		ttl:    SessionTTL,
		logger: logger,
	}
}

// BeginAuthorization starts a fresh flow for a user and returns the
// authorization URL to present. Any prior pending session for the user is
// superseded: its state token can no longer complete a callback.
func (c *Coordinator) BeginAuthorization(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id cannot be empty")
	}

	state, err := newStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	now := time.Now()
	session := &store.AuthSession{
		UserID:    userID,
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
	if err := c.store.SavePendingSession(session); err != nil {
		return "", fmt.Errorf("failed to save pending session: %w", err)
	}

	c.logger.Info("authorization flow started",
		logging.Operation("begin_authorization"),
		logging.UserHash(userID))

	// offline access is required to obtain a refresh token; approval is
	// forced so Google re-issues one on re-authorization.
	url := c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	return url, nil
}

// HandleCallback completes a flow from the redirect endpoint. The session is
// consumed before anything else: a given state token can succeed at most
// once, even under duplicate callback delivery. On exchange failure the
// session stays consumed; the user must restart with BeginAuthorization.
func (c *Coordinator) HandleCallback(ctx context.Context, state, code string) (string, error) {
	session, ok := c.store.ConsumeSession(state)
	if !ok {
		return "", ErrInvalidOrExpiredState
	}

	lk := c.locks.Get(session.UserID)
	lk.Lock()
	defer lk.Unlock()

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		c.logger.Warn("authorization code exchange failed",
			logging.Operation("handle_callback"),
			logging.UserHash(session.UserID),
			logging.Err(err))
		return "", fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	cred := &store.Credential{
		UserID:            session.UserID,
		AccessToken:       token.AccessToken,
		RefreshToken:      token.RefreshToken,
		AccessTokenExpiry: token.Expiry,
		Scopes:            append([]string(nil), c.oauth.Scopes...),
	}
	if err := c.store.Put(cred); err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}

	c.logger.Info("authorization flow completed",
		logging.Operation("handle_callback"),
		logging.UserHash(session.UserID))

	return session.UserID, nil
}

// Revoke marks a user's credential unusable without deleting it. The record
// survives so a later re-authorization overwrites it in place.
func (c *Coordinator) Revoke(userID string) error {
	lk := c.locks.Get(userID)
	lk.Lock()
	defer lk.Unlock()

	if err := c.store.MarkRevoked(userID); err != nil {
		return fmt.Errorf("failed to revoke credential: %w", err)
	}

	c.logger.Info("credential revoked",
		logging.Operation("revoke"),
		logging.UserHash(userID))
	return nil
}

// Deauthorize removes a user's credential on explicit request.
func (c *Coordinator) Deauthorize(userID string) error {
	lk := c.locks.Get(userID)
	lk.Lock()
	defer lk.Unlock()

	if err := c.store.Delete(userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	c.logger.Info("credential removed",
		logging.Operation("deauthorize"),
		logging.UserHash(userID))
	return nil
}

// newStateToken returns a cryptographically random, URL-safe token. The
// token is the only thing binding a shared redirect endpoint back to the
// user who started the flow, so it must be unguessable.
func newStateToken() (string, error) {
	buf := make([]byte, stateTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
