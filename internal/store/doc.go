// Package store owns the durable per-user OAuth state: credentials and
// pending authorization sessions. All mutation of these records goes through
// this package; the auth package serializes per-user access on top of it.
package store
