// Package dispatch validates and executes structured tool calls against the
// calendar backend. It is the single choke point between classifier output
// and the remote service: every call is schema-checked, bound to a valid
// access token, and its outcome normalized into one result shape.
package dispatch
