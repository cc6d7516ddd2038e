// Package logging provides slog helpers shared across the codebase:
// consistent attribute keys, error attributes that tolerate nil, and
// anonymization helpers so user identifiers and tokens never appear in logs.
package logging
