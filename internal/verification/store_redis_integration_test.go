//go:build integration

package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustlessid/pkg/platform/sentinel"
	"trustlessid/pkg/testutil/containers"
)

func newRedisStore(t *testing.T) *RedisRequestStore {
	t.Helper()
	rc := containers.NewRedisContainer(t)
	return NewRedisRequestStore(rc.Client)
}

func newRedisRequest(id string) VerificationRequest {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return VerificationRequest{
		ID:             id,
		CredentialID:   "cred_r1",
		VerifierName:   "Acme Corp",
		VerifierDomain: "acme.example.com",
		Purpose:        "age_check",
		Nonce:          "nonce_r1",
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(2 * time.Minute),
	}
}

func TestRedisRequestStoreLifecycle(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	req := newRedisRequest("req_r1")
	require.NoError(t, store.Create(ctx, req))
	assert.ErrorIs(t, store.Create(ctx, req), sentinel.ErrConflict)

	found, err := store.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, found.ID)
	assert.Equal(t, StatusPending, found.Status)
	assert.Equal(t, req.Nonce, found.Nonce)
	assert.True(t, req.ExpiresAt.Equal(found.ExpiresAt))

	_, err = store.FindByID(ctx, "req_missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	decidedAt := time.Now().UTC().Truncate(time.Millisecond)
	approved, err := store.MarkDecided(ctx, req.ID, StatusApproved, decidedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, decidedAt.Equal(*approved.ApprovedAt))

	// the script rejects a second decision server-side
	_, err = store.MarkDecided(ctx, req.ID, StatusRejected, decidedAt)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	consumedAt := time.Now().UTC().Truncate(time.Millisecond)
	consumed, err := store.Consume(ctx, req.ID, consumedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusConsumed, consumed.Status)
	require.NotNil(t, consumed.ConsumedAt)

	_, err = store.Consume(ctx, req.ID, consumedAt)
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestRedisRequestStoreExpiry(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	req := newRedisRequest("req_r2")
	require.NoError(t, store.Create(ctx, req))

	expired, err := store.MarkExpired(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)
	assert.Nil(t, expired.ApprovedAt)

	_, err = store.Consume(ctx, req.ID, time.Now().UTC())
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestRedisRequestStoreConsumeIsExclusive(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	req := newRedisRequest("req_r3")
	require.NoError(t, store.Create(ctx, req))
	_, err := store.MarkDecided(ctx, req.ID, StatusApproved, time.Now().UTC())
	require.NoError(t, err)

	const racers = 8
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = store.Consume(ctx, req.ID, time.Now().UTC())
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
