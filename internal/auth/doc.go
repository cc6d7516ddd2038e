// Package auth drives the per-user OAuth credential lifecycle: the
// three-legged redirect flow (Coordinator) and refresh-before-use token
// maintenance (Refresher). Both serialize credential mutation through a
// shared per-user lock so a refresh in flight and a concurrent authorization
// completion can never interleave into an inconsistent credential.
package auth
