// Package middleware holds the gin middlewares of the HTTP facade. Each
// middleware lives in its own subpackage; this package only defines the keys
// they share.
package middleware

// ContextKey is a typed key for context values to avoid collisions
type ContextKey string

const (
	// RequestIDKey is the gin context key for the request ID
	RequestIDKey ContextKey = "request_id"
)
