package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/calbot-io/calbot/internal/calendar"
	"github.com/calbot-io/calbot/internal/logging"
	"github.com/calbot-io/calbot/internal/store"
)

const (
	// DefaultFreshnessMargin is how much validity an access token must have
	// left to be used without a refresh.
	DefaultFreshnessMargin = 60 * time.Second

	refreshTimeout = 15 * time.Second
)

// RefreshObserver receives one notification per refresh attempt.
type RefreshObserver interface {
	ObserveRefresh(outcome string)
}

// Refresh outcome labels.
const (
	RefreshOutcomeSuccess = "success"
	RefreshOutcomeRevoked = "revoked"
	RefreshOutcomeFailure = "failure"
)

// Refresher guarantees a valid access token before any backend call.
// Concurrent callers for the same user trigger at most one network refresh
// and all observe the single refreshed result.
type Refresher struct {
	oauth    *oauth2.Config
	store    store.Store
	locks    *UserLocks
	group    singleflight.Group
	margin   time.Duration
	logger   *slog.Logger
	observer RefreshObserver
}

// NewRefresher creates a refresher. The lock registry must be the same
// instance the Coordinator uses.
func NewRefresher(cfg *oauth2.Config, st store.Store, locks *UserLocks, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		oauth:  cfg,
		store:  st,
		locks:  locks,
		margin: DefaultFreshnessMargin,
		logger: logger,
	}
}

// SetObserver attaches a refresh outcome observer. Nil disables observation.
func (r *Refresher) SetObserver(o RefreshObserver) {
	r.observer = o
}

func (r *Refresher) observe(outcome string) {
	if r.observer != nil {
		r.observer.ObserveRefresh(outcome)
	}
}

// EnsureValid returns an access token with at least the freshness margin
// remaining, refreshing it first if necessary. It returns ErrAuthRequired if
// the user has no credential, ErrRevoked if the credential is unusable, and
// a retryable *calendar.BackendError on transient refresh failures; callers
// must not conflate the last two.
func (r *Refresher) EnsureValid(ctx context.Context, userID string) (string, error) {
	cred, ok := r.store.Get(userID)
	if !ok {
		return "", ErrAuthRequired
	}
	if cred.Revoked {
		return "", ErrRevoked
	}
	if cred.FreshFor(r.margin) {
		return cred.AccessToken, nil
	}

	v, err, _ := r.group.Do(userID, func() (interface{}, error) {
		return r.refresh(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refresh performs the network refresh under the per-user lock. The state is
// re-read once the lock is held: a concurrent re-authorization or an earlier
// refresh may already have produced a fresh token.
func (r *Refresher) refresh(ctx context.Context, userID string) (string, error) {
	lk := r.locks.Get(userID)
	lk.Lock()
	defer lk.Unlock()

	cred, ok := r.store.Get(userID)
	if !ok {
		return "", ErrAuthRequired
	}
	if cred.Revoked {
		return "", ErrRevoked
	}
	if cred.FreshFor(r.margin) {
		return cred.AccessToken, nil
	}

	rctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	ts := r.oauth.TokenSource(rctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := ts.Token()
	if err != nil {
		return "", r.classifyRefreshFailure(userID, err)
	}

	cred.AccessToken = token.AccessToken
	cred.AccessTokenExpiry = token.Expiry
	if token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken {
		// The provider rotated the refresh token; the old one is dead.
		cred.RefreshToken = token.RefreshToken
	}
	if err := r.store.Put(cred); err != nil {
		return "", fmt.Errorf("failed to store refreshed credential: %w", err)
	}

	r.logger.Info("access token refreshed",
		logging.Operation("refresh"),
		logging.UserHash(userID))
	r.observe(RefreshOutcomeSuccess)

	return token.AccessToken, nil
}

// classifyRefreshFailure separates an authoritative rejection of the refresh
// token (user revoked access) from a transient failure. A failed refresh is
// never retried here; retry policy belongs to the dispatch caller.
func (r *Refresher) classifyRefreshFailure(userID string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
		if markErr := r.store.MarkRevoked(userID); markErr != nil {
			r.logger.Error("failed to mark credential revoked",
				logging.UserHash(userID),
				logging.Err(markErr))
		}
		r.logger.Info("refresh token rejected, credential revoked",
			logging.Operation("refresh"),
			logging.UserHash(userID))
		r.observe(RefreshOutcomeRevoked)
		return ErrRevoked
	}

	r.logger.Warn("token refresh failed",
		logging.Operation("refresh"),
		logging.UserHash(userID),
		logging.Err(err))
	r.observe(RefreshOutcomeFailure)
	return calendar.ClassifyError(err)
}
