package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trustlessid/pkg/platform/sentinel"
)

// PostgresStore reads credentials from PostgreSQL.
// This store is pure I/O; scoring and state rules live in the services.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, credentialID string) (Credential, error) {
	query := `
		SELECT id, type, status, issued_at, verification_count
		FROM credentials
		WHERE id = $1
	`
	var cred Credential
	err := s.db.QueryRowContext(ctx, query, credentialID).Scan(
		&cred.ID,
		&cred.Type,
		&cred.Status,
		&cred.IssuedAt,
		&cred.VerificationCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Credential{}, sentinel.ErrNotFound
		}
		return Credential{}, fmt.Errorf("find credential by id: %w", err)
	}
	return cred, nil
}

// IncrementVerificationCount bumps the counter in a single atomic UPDATE so
// concurrent verifications never read-modify-write over each other.
func (s *PostgresStore) IncrementVerificationCount(ctx context.Context, credentialID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET verification_count = verification_count + 1
		WHERE id = $1
	`, credentialID)
	if err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment verification count: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
