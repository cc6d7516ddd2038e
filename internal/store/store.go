package store

import "time"

// Credential is the durable per-user authorization record. At most one
// Credential exists per user; a new authorization overwrites the old one.
type Credential struct {
	UserID            string    `json:"user_id"`
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token"`
	AccessTokenExpiry time.Time `json:"access_token_expiry"`
	Scopes            []string  `json:"scopes"`
	Revoked           bool      `json:"revoked"`
}

// FreshFor reports whether the access token is still valid with at least
// the given safety margin remaining.
func (c *Credential) FreshFor(margin time.Duration) bool {
	return time.Until(c.AccessTokenExpiry) > margin
}

// clone returns a copy so callers can never mutate stored state in place.
func (c *Credential) clone() *Credential {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp
}

// AuthSession is one in-flight authorization attempt. The state token binds
// the external redirect back to the user who initiated the flow; it is
// single-use and expires after a fixed TTL.
type AuthSession struct {
	UserID    string
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its TTL.
func (s *AuthSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store is the credential store contract. Implementations must be safe for
// concurrent use; operations on the same user must be linearizable.
type Store interface {
	// Get returns the credential for a user, or false if none is stored.
	Get(userID string) (*Credential, bool)

	// Put upserts the credential, atomically replacing any existing record.
	Put(cred *Credential) error

	// MarkRevoked flags the credential as unusable. Idempotent; a no-op if
	// the user has no credential.
	MarkRevoked(userID string) error

	// Delete removes the credential entirely. Used only for explicit
	// de-authorization; revocation keeps the record to support re-auth.
	Delete(userID string) error

	// SavePendingSession stores a new pending session, superseding any
	// prior pending session for the same user. The superseded session's
	// state token becomes invalid immediately.
	SavePendingSession(session *AuthSession) error

	// FindSessionByState looks up a pending session. Expired sessions are
	// treated as absent regardless of physical deletion timing.
	FindSessionByState(state string) (*AuthSession, bool)

	// ConsumeSession atomically fetches and deletes the session for a
	// state token. Returns false if the session is absent, expired, or was
	// already consumed; a given state can therefore complete the flow at
	// most once, even under duplicate callback delivery.
	ConsumeSession(state string) (*AuthSession, bool)
}
