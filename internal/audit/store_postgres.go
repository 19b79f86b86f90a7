package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore appends audit events to PostgreSQL. Insert-only by design;
// there is no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			timestamp, action, request_id, credential_id, verifier_name,
			verifier_domain, purpose, decision, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.Timestamp,
		event.Action,
		event.RequestID,
		event.CredentialID,
		event.VerifierName,
		event.VerifierDomain,
		event.Purpose,
		event.Decision,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, action, request_id, credential_id, verifier_name,
		       verifier_domain, purpose, decision, reason
		FROM audit_events
		WHERE request_id = $1
		ORDER BY timestamp
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.Timestamp,
			&e.Action,
			&e.RequestID,
			&e.CredentialID,
			&e.VerifierName,
			&e.VerifierDomain,
			&e.Purpose,
			&e.Decision,
			&e.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
