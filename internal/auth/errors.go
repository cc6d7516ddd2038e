package auth

import "errors"

var (
	// ErrAuthRequired indicates the user has no stored credential and must
	// run the authorization flow.
	ErrAuthRequired = errors.New("authorization required")

	// ErrRevoked indicates the stored credential is unusable; the user must
	// re-authorize.
	ErrRevoked = errors.New("credential revoked")

	// ErrInvalidOrExpiredState covers expired, replayed, and forged state
	// tokens uniformly. Callers cannot distinguish the three; collapsing
	// them avoids leaking whether a given token ever existed.
	ErrInvalidOrExpiredState = errors.New("authorization state invalid or expired")

	// ErrAuthorizationDenied indicates the user declined consent at the
	// provider.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrExchangeFailed indicates the authorization code exchange failed.
	// The session is already consumed; the user must restart the flow.
	ErrExchangeFailed = errors.New("authorization code exchange failed")
)

// FlowFailureMessage is the single user-facing message for all
// authorization-flow failures.
const FlowFailureMessage = "That authorization link is invalid or has expired. Please send /auth to start over."
