// Package calendar is the boundary to the remote calendar backend. It exposes
// the backend as a capability interface so the dispatch engine never depends
// on the Google Calendar API directly, and it owns the classification of
// backend failures into retryable and non-retryable errors.
package calendar
