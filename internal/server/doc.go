// Package server is the external HTTP surface: the OAuth redirect callback,
// Kubernetes-style health probes, and the Prometheus metrics endpoint. The
// callback handler is the only place browser traffic meets the authorization
// coordinator; every failure there maps to one uniform user-facing page.
package server
