package verification

import (
	"context"
	"time"
)

// RequestStore persists verification requests and owns every lifecycle
// transition. Implementations report factual failures with
// pkg/platform/sentinel errors:
//
//   - FindByID: sentinel.ErrNotFound for unknown IDs.
//   - MarkDecided/MarkExpired: sentinel.ErrInvalidState when the request is
//     no longer pending.
//   - Consume: sentinel.ErrAlreadyUsed when the request is already consumed,
//     sentinel.ErrInvalidState for any other non-approved state.
//
// Consume must be a conditional update: under concurrent calls for the same
// request exactly one succeeds. Read-then-write is not acceptable here.
type RequestStore interface {
	Create(ctx context.Context, req VerificationRequest) error
	FindByID(ctx context.Context, requestID string) (VerificationRequest, error)
	MarkDecided(ctx context.Context, requestID string, status RequestStatus, decidedAt time.Time) (VerificationRequest, error)
	MarkExpired(ctx context.Context, requestID string) (VerificationRequest, error)
	Consume(ctx context.Context, requestID string, consumedAt time.Time) (VerificationRequest, error)
}

// ReceiptStore persists immutable verification receipts. Append-only: there
// is deliberately no update or delete.
type ReceiptStore interface {
	Save(ctx context.Context, receipt Receipt) error
	FindByID(ctx context.Context, receiptID string) (Receipt, error)
	ListByCredential(ctx context.Context, credentialID string) ([]Receipt, error)
}

// Tx provides the transactional boundary for the consume step so the
// consumed transition and the receipt insert commit together. "Consumed but
// no receipt" must be impossible.
type Tx interface {
	RunInTx(ctx context.Context, fn func(requests RequestStore, receipts ReceiptStore) error) error
}
