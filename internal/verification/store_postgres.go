package verification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"trustlessid/pkg/platform/sentinel"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same store code runs
// inside and outside the consume transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRequestStore persists verification requests in PostgreSQL.
// All lifecycle transitions are single conditional UPDATEs; the WHERE clause
// carries the state machine so races resolve inside the database.
type PostgresRequestStore struct {
	db dbtx
}

// NewPostgresRequestStore constructs a PostgreSQL-backed request store.
func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

// NewPostgresRequestStoreTx binds the store to an open transaction.
func NewPostgresRequestStoreTx(tx *sql.Tx) *PostgresRequestStore {
	return &PostgresRequestStore{db: tx}
}

const requestColumns = `
	id, credential_id, verifier_name, verifier_domain, purpose, policy,
	requested_fields, nonce, status, created_at, expires_at, approved_at, consumed_at`

func (s *PostgresRequestStore) Create(ctx context.Context, req VerificationRequest) error {
	policy, err := json.Marshal(req.Policy)
	if err != nil {
		return fmt.Errorf("marshal request policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		req.ID,
		req.CredentialID,
		req.VerifierName,
		req.VerifierDomain,
		req.Purpose,
		policy,
		pq.Array(req.RequestedFields),
		req.Nonce,
		string(req.Status),
		req.CreatedAt,
		req.ExpiresAt,
		req.ApprovedAt,
		req.ConsumedAt,
	)
	if err != nil {
		return fmt.Errorf("create verification request: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) FindByID(ctx context.Context, requestID string) (VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM verification_requests
		WHERE id = $1
	`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationRequest{}, sentinel.ErrNotFound
		}
		return VerificationRequest{}, fmt.Errorf("find verification request: %w", err)
	}
	return req, nil
}

// MarkDecided transitions pending -> approved/rejected in one conditional
// UPDATE. A late concurrent decide loses the race inside the database and
// surfaces as sentinel.ErrInvalidState.
func (s *PostgresRequestStore) MarkDecided(ctx context.Context, requestID string, status RequestStatus, decidedAt time.Time) (VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_requests
		SET status = $2,
		    approved_at = CASE WHEN $2 = 'approved' THEN $3 ELSE approved_at END
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns+`
	`, requestID, string(status), decidedAt)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationRequest{}, s.explainMissedUpdate(ctx, requestID, nil)
		}
		return VerificationRequest{}, fmt.Errorf("mark verification request decided: %w", err)
	}
	return req, nil
}

func (s *PostgresRequestStore) MarkExpired(ctx context.Context, requestID string) (VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_requests
		SET status = 'expired'
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns+`
	`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationRequest{}, s.explainMissedUpdate(ctx, requestID, nil)
		}
		return VerificationRequest{}, fmt.Errorf("mark verification request expired: %w", err)
	}
	return req, nil
}

// Consume performs the approved -> consumed transition as a single
// conditional UPDATE. Under concurrent consume calls exactly one row update
// wins; everyone else gets sentinel.ErrAlreadyUsed from the re-read.
func (s *PostgresRequestStore) Consume(ctx context.Context, requestID string, consumedAt time.Time) (VerificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE verification_requests
		SET status = 'consumed', consumed_at = $2
		WHERE id = $1 AND status = 'approved'
		RETURNING `+requestColumns+`
	`, requestID, consumedAt)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationRequest{}, s.explainMissedUpdate(ctx, requestID, map[RequestStatus]error{
				StatusConsumed: sentinel.ErrAlreadyUsed,
			})
		}
		return VerificationRequest{}, fmt.Errorf("consume verification request: %w", err)
	}
	return req, nil
}

// explainMissedUpdate distinguishes "row missing" from "row in the wrong
// state" after a conditional UPDATE matched nothing.
func (s *PostgresRequestStore) explainMissedUpdate(ctx context.Context, requestID string, special map[RequestStatus]error) error {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM verification_requests WHERE id = $1`, requestID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("inspect verification request state: %w", err)
	}
	if special != nil {
		if mapped, ok := special[RequestStatus(status)]; ok {
			return mapped
		}
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (VerificationRequest, error) {
	var (
		req        VerificationRequest
		policy     []byte
		fields     pq.StringArray
		status     string
		approvedAt sql.NullTime
		consumedAt sql.NullTime
	)
	err := row.Scan(
		&req.ID,
		&req.CredentialID,
		&req.VerifierName,
		&req.VerifierDomain,
		&req.Purpose,
		&policy,
		&fields,
		&req.Nonce,
		&status,
		&req.CreatedAt,
		&req.ExpiresAt,
		&approvedAt,
		&consumedAt,
	)
	if err != nil {
		return VerificationRequest{}, err
	}
	if len(policy) > 0 {
		if err := json.Unmarshal(policy, &req.Policy); err != nil {
			return VerificationRequest{}, fmt.Errorf("unmarshal request policy: %w", err)
		}
	}
	req.RequestedFields = []string(fields)
	req.Status = RequestStatus(status)
	if approvedAt.Valid {
		at := approvedAt.Time
		req.ApprovedAt = &at
	}
	if consumedAt.Valid {
		at := consumedAt.Time
		req.ConsumedAt = &at
	}
	return req, nil
}

// PostgresReceiptStore persists receipts in PostgreSQL. Insert-only.
type PostgresReceiptStore struct {
	db dbtx
}

func NewPostgresReceiptStore(db *sql.DB) *PostgresReceiptStore {
	return &PostgresReceiptStore{db: db}
}

func NewPostgresReceiptStoreTx(tx *sql.Tx) *PostgresReceiptStore {
	return &PostgresReceiptStore{db: tx}
}

const receiptColumns = `
	id, verification_request_id, credential_id, verifier_name, verifier_domain,
	purpose, decision, disclosed_data, trust_score, receipt_hash, created_at`

func (s *PostgresReceiptStore) Save(ctx context.Context, receipt Receipt) error {
	disclosed, err := json.Marshal(receipt.DisclosedData)
	if err != nil {
		return fmt.Errorf("marshal disclosed data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_receipts (`+receiptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		receipt.ID,
		receipt.VerificationRequestID,
		receipt.CredentialID,
		receipt.VerifierName,
		receipt.VerifierDomain,
		receipt.Purpose,
		string(receipt.Decision),
		disclosed,
		receipt.TrustScore,
		receipt.ReceiptHash,
		receipt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save verification receipt: %w", err)
	}
	return nil
}

func (s *PostgresReceiptStore) FindByID(ctx context.Context, receiptID string) (Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+receiptColumns+`
		FROM verification_receipts
		WHERE id = $1
	`, receiptID)
	receipt, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Receipt{}, sentinel.ErrNotFound
		}
		return Receipt{}, fmt.Errorf("find verification receipt: %w", err)
	}
	return receipt, nil
}

func (s *PostgresReceiptStore) ListByCredential(ctx context.Context, credentialID string) ([]Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM verification_receipts
		WHERE credential_id = $1
		ORDER BY created_at
	`, credentialID)
	if err != nil {
		return nil, fmt.Errorf("list verification receipts: %w", err)
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification receipt: %w", err)
		}
		out = append(out, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verification receipts: %w", err)
	}
	return out, nil
}

func scanReceipt(row rowScanner) (Receipt, error) {
	var (
		receipt   Receipt
		decision  string
		disclosed []byte
	)
	err := row.Scan(
		&receipt.ID,
		&receipt.VerificationRequestID,
		&receipt.CredentialID,
		&receipt.VerifierName,
		&receipt.VerifierDomain,
		&receipt.Purpose,
		&decision,
		&disclosed,
		&receipt.TrustScore,
		&receipt.ReceiptHash,
		&receipt.CreatedAt,
	)
	if err != nil {
		return Receipt{}, err
	}
	receipt.Decision = ReceiptDecision(decision)
	if len(disclosed) > 0 {
		if err := json.Unmarshal(disclosed, &receipt.DisclosedData); err != nil {
			return Receipt{}, fmt.Errorf("unmarshal disclosed data: %w", err)
		}
	}
	return receipt, nil
}
