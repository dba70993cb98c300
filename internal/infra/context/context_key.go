// Package context holds typed request-scoped values shared across layers.
package context

type contextKey string
