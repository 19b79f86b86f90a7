//go:build integration

package verification

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustlessid/pkg/platform/sentinel"
	"trustlessid/pkg/testutil/containers"
)

func newPostgresStores(t *testing.T) (*PostgresRequestStore, *PostgresReceiptStore, *sql.DB) {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	pg.ApplySchema(t, "../../migrations/001_init.sql")
	return NewPostgresRequestStore(pg.DB), NewPostgresReceiptStore(pg.DB), pg.DB
}

func seedPostgresCredential(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO credentials (id, type, status, issued_at, verification_count)
		VALUES ($1, 'national_id', 'active', now() - interval '10 days', 3)
	`, id)
	require.NoError(t, err)
}

func newPostgresRequest(credentialID string) VerificationRequest {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return VerificationRequest{
		ID:              "req_pg_" + credentialID,
		CredentialID:    credentialID,
		VerifierName:    "Acme Corp",
		VerifierDomain:  "acme.example.com",
		Purpose:         "age_check",
		Policy:          Policy{"minAge": float64(18)},
		RequestedFields: []string{"credentialType", "isValid"},
		Nonce:           "nonce_pg",
		Status:          StatusPending,
		CreatedAt:       now,
		ExpiresAt:       now.Add(2 * time.Minute),
	}
}

func TestPostgresRequestStoreLifecycle(t *testing.T) {
	requests, _, db := newPostgresStores(t)
	ctx := context.Background()
	seedPostgresCredential(t, db, "cred_pg1")

	req := newPostgresRequest("cred_pg1")
	require.NoError(t, requests.Create(ctx, req))

	found, err := requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)
	assert.Equal(t, StatusPending, found.Status)
	assert.Equal(t, req.Policy, found.Policy)
	assert.Equal(t, req.RequestedFields, found.RequestedFields)
	assert.WithinDuration(t, req.ExpiresAt, found.ExpiresAt, time.Millisecond)

	_, err = requests.FindByID(ctx, "req_missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	decidedAt := time.Now().UTC()
	approved, err := requests.MarkDecided(ctx, req.ID, StatusApproved, decidedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.WithinDuration(t, decidedAt, *approved.ApprovedAt, time.Millisecond)

	// the conditional UPDATE rejects a second decision
	_, err = requests.MarkDecided(ctx, req.ID, StatusRejected, decidedAt)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	consumedAt := time.Now().UTC()
	consumed, err := requests.Consume(ctx, req.ID, consumedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusConsumed, consumed.Status)
	require.NotNil(t, consumed.ConsumedAt)

	// replay is distinguishable from every other wrong state
	_, err = requests.Consume(ctx, req.ID, consumedAt)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)

	_, err = requests.Consume(ctx, "req_missing", consumedAt)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPostgresRequestStoreConsumeIsExclusive(t *testing.T) {
	requests, _, db := newPostgresStores(t)
	ctx := context.Background()
	seedPostgresCredential(t, db, "cred_pg2")

	req := newPostgresRequest("cred_pg2")
	require.NoError(t, requests.Create(ctx, req))
	_, err := requests.MarkDecided(ctx, req.ID, StatusApproved, time.Now().UTC())
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = requests.Consume(ctx, req.ID, time.Now().UTC())
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestPostgresRequestStorePendingNotConsumable(t *testing.T) {
	requests, _, db := newPostgresStores(t)
	ctx := context.Background()
	seedPostgresCredential(t, db, "cred_pg3")

	req := newPostgresRequest("cred_pg3")
	require.NoError(t, requests.Create(ctx, req))

	_, err := requests.Consume(ctx, req.ID, time.Now().UTC())
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	expired, err := requests.MarkExpired(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	_, err = requests.Consume(ctx, req.ID, time.Now().UTC())
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestPostgresReceiptStore(t *testing.T) {
	requests, receipts, db := newPostgresStores(t)
	ctx := context.Background()
	seedPostgresCredential(t, db, "cred_pg4")

	req := newPostgresRequest("cred_pg4")
	require.NoError(t, requests.Create(ctx, req))

	receipt := Receipt{
		ID:                    "rcpt_pg1",
		VerificationRequestID: req.ID,
		CredentialID:          "cred_pg4",
		VerifierName:          "Acme Corp",
		VerifierDomain:        "acme.example.com",
		Purpose:               "age_check",
		Decision:              ReceiptPass,
		DisclosedData: DisclosedData{
			CredentialType: "national_id",
			IssueDate:      time.Now().UTC().AddDate(0, 0, -10).Truncate(time.Microsecond),
			IsValid:        true,
		},
		TrustScore:  83,
		ReceiptHash: "sha256:deadbeef",
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, receipts.Save(ctx, receipt))

	// the unique constraint enforces one receipt per request
	dup := receipt
	dup.ID = "rcpt_pg2"
	assert.Error(t, receipts.Save(ctx, dup))

	found, err := receipts.FindByID(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.ReceiptHash, found.ReceiptHash)
	assert.Equal(t, receipt.DisclosedData, found.DisclosedData)
	assert.Equal(t, ReceiptPass, found.Decision)

	listed, err := receipts.ListByCredential(ctx, "cred_pg4")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}
