package audit

import "context"

// Store is an append-only audit sink with per-request retrieval.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRequest(ctx context.Context, requestID string) ([]Event, error)
}
