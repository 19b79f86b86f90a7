package main

import (
	"context"
	"database/sql"
	"time"

	"trustlessid/internal/verification"
	dErrors "trustlessid/pkg/domain-errors"
)

const defaultVerificationTxTimeout = 5 * time.Second

// verificationPostgresTx runs the consume transition and the receipt write in
// one database transaction, so a failed receipt insert rolls the consumption
// back and the proof stays redeemable.
type verificationPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newVerificationPostgresTx(db *sql.DB) *verificationPostgresTx {
	return &verificationPostgresTx{db: db}
}

func (t *verificationPostgresTx) RunInTx(ctx context.Context, fn func(requests verification.RequestStore, receipts verification.ReceiptStore) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultVerificationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(verification.NewPostgresRequestStoreTx(tx), verification.NewPostgresReceiptStoreTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
