package testutil

import (
	"context"
	"time"

	"trustlessid/pkg/requestcontext"
)

// ContextAt returns a context with the request clock pinned to t, the same
// way the request ID middleware pins it for real traffic. Expiry-sensitive
// tests use this instead of sleeping.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// ContextWithRequestID returns a context carrying a request ID, simulating
// what the middleware does for incoming requests.
func ContextWithRequestID(requestID string) context.Context {
	return requestcontext.WithRequestID(context.Background(), requestID)
}
