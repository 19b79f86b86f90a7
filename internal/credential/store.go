package credential

import "context"

// Store provides read access to credentials plus the single counter
// mutation the verification flow needs. Implementations return
// sentinel.ErrNotFound for unknown IDs.
type Store interface {
	FindByID(ctx context.Context, credentialID string) (Credential, error)
	IncrementVerificationCount(ctx context.Context, credentialID string) error
}
