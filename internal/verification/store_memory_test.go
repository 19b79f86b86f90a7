package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustlessid/pkg/platform/sentinel"
)

func seedRequest(t *testing.T, s *InMemoryRequestStore, status RequestStatus) VerificationRequest {
	t.Helper()
	req := VerificationRequest{
		ID:           "req_1",
		CredentialID: "cred_1",
		Nonce:        "nonce_1",
		Status:       StatusPending,
		CreatedAt:    time.Now(),
		ExpiresAt:    time.Now().Add(2 * time.Minute),
	}
	require.NoError(t, s.Create(context.Background(), req))
	if status != StatusPending {
		req.Status = status
		s.requests[req.ID] = req
	}
	return req
}

func TestRequestStoreCreateConflict(t *testing.T) {
	s := NewInMemoryRequestStore()
	req := seedRequest(t, s, StatusPending)
	assert.ErrorIs(t, s.Create(context.Background(), req), sentinel.ErrConflict)
}

func TestRequestStoreMarkDecided(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("approve sets approvedAt", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		req := seedRequest(t, s, StatusPending)
		updated, err := s.MarkDecided(ctx, req.ID, StatusApproved, now)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, updated.Status)
		require.NotNil(t, updated.ApprovedAt)
		assert.Equal(t, now, *updated.ApprovedAt)
	})

	t.Run("reject leaves approvedAt nil", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		req := seedRequest(t, s, StatusPending)
		updated, err := s.MarkDecided(ctx, req.ID, StatusRejected, now)
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, updated.Status)
		assert.Nil(t, updated.ApprovedAt)
	})

	t.Run("terminal states are frozen", func(t *testing.T) {
		for _, status := range []RequestStatus{StatusRejected, StatusExpired, StatusConsumed, StatusApproved} {
			s := NewInMemoryRequestStore()
			req := seedRequest(t, s, status)
			_, err := s.MarkDecided(ctx, req.ID, StatusApproved, now)
			assert.ErrorIs(t, err, sentinel.ErrInvalidState, string(status))
		}
	})

	t.Run("missing request", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		_, err := s.MarkDecided(ctx, "req_missing", StatusApproved, now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestRequestStoreConsume(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("approved becomes consumed", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		req := seedRequest(t, s, StatusApproved)
		updated, err := s.Consume(ctx, req.ID, now)
		require.NoError(t, err)
		assert.Equal(t, StatusConsumed, updated.Status)
		require.NotNil(t, updated.ConsumedAt)
		assert.Equal(t, now, *updated.ConsumedAt)
	})

	t.Run("consumed again is a replay", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		req := seedRequest(t, s, StatusApproved)
		_, err := s.Consume(ctx, req.ID, now)
		require.NoError(t, err)
		_, err = s.Consume(ctx, req.ID, now)
		assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	})

	t.Run("pending and rejected are not consumable", func(t *testing.T) {
		for _, status := range []RequestStatus{StatusPending, StatusRejected, StatusExpired} {
			s := NewInMemoryRequestStore()
			req := seedRequest(t, s, status)
			_, err := s.Consume(ctx, req.ID, now)
			assert.ErrorIs(t, err, sentinel.ErrInvalidState, string(status))
		}
	})

	t.Run("exactly one racer wins", func(t *testing.T) {
		s := NewInMemoryRequestStore()
		req := seedRequest(t, s, StatusApproved)

		const racers = 32
		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = s.Consume(ctx, req.ID, now)
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
	})
}

func TestReceiptStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryReceiptStore()

	receipt := Receipt{
		ID:                    "rcpt_1",
		VerificationRequestID: "req_1",
		CredentialID:          "cred_1",
		TrustScore:            83,
		ReceiptHash:           "sha256:abc",
		CreatedAt:             time.Now(),
	}
	require.NoError(t, s.Save(ctx, receipt))

	// receipts are immutable: a second save with the same ID is a conflict
	assert.ErrorIs(t, s.Save(ctx, receipt), sentinel.ErrConflict)

	found, err := s.FindByID(ctx, receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt, found)

	_, err = s.FindByID(ctx, "rcpt_missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	byCred, err := s.ListByCredential(ctx, "cred_1")
	require.NoError(t, err)
	assert.Len(t, byCred, 1)

	empty, err := s.ListByCredential(ctx, "cred_other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
