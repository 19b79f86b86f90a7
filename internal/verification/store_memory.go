package verification

import (
	"context"
	"sync"
	"time"

	"trustlessid/pkg/platform/sentinel"
)

// InMemoryRequestStore keeps verification requests in a map. The mutex gives
// the same at-most-once consume guarantee the SQL store gets from its
// conditional UPDATE.
type InMemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]VerificationRequest
}

func NewInMemoryRequestStore() *InMemoryRequestStore {
	return &InMemoryRequestStore{requests: make(map[string]VerificationRequest)}
}

func (s *InMemoryRequestStore) Create(_ context.Context, req VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemoryRequestStore) FindByID(_ context.Context, requestID string) (VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return VerificationRequest{}, sentinel.ErrNotFound
	}
	return req, nil
}

func (s *InMemoryRequestStore) MarkDecided(_ context.Context, requestID string, status RequestStatus, decidedAt time.Time) (VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return VerificationRequest{}, sentinel.ErrNotFound
	}
	if req.Status != StatusPending {
		return VerificationRequest{}, sentinel.ErrInvalidState
	}
	req.Status = status
	if status == StatusApproved {
		approvedAt := decidedAt
		req.ApprovedAt = &approvedAt
	}
	s.requests[requestID] = req
	return req, nil
}

func (s *InMemoryRequestStore) MarkExpired(_ context.Context, requestID string) (VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return VerificationRequest{}, sentinel.ErrNotFound
	}
	if req.Status != StatusPending {
		return VerificationRequest{}, sentinel.ErrInvalidState
	}
	req.Status = StatusExpired
	s.requests[requestID] = req
	return req, nil
}

// Consume performs the compare-and-swap transition approved -> consumed.
// The status check and the write happen under one lock acquisition, so of N
// racing callers exactly one observes approved.
func (s *InMemoryRequestStore) Consume(_ context.Context, requestID string, consumedAt time.Time) (VerificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return VerificationRequest{}, sentinel.ErrNotFound
	}
	switch req.Status {
	case StatusApproved:
		// fall through to the transition
	case StatusConsumed:
		return VerificationRequest{}, sentinel.ErrAlreadyUsed
	default:
		return VerificationRequest{}, sentinel.ErrInvalidState
	}
	req.Status = StatusConsumed
	at := consumedAt
	req.ConsumedAt = &at
	s.requests[requestID] = req
	return req, nil
}

// InMemoryReceiptStore is the append-only in-memory receipt sink.
type InMemoryReceiptStore struct {
	mu       sync.RWMutex
	receipts map[string]Receipt
}

func NewInMemoryReceiptStore() *InMemoryReceiptStore {
	return &InMemoryReceiptStore{receipts: make(map[string]Receipt)}
}

func (s *InMemoryReceiptStore) Save(_ context.Context, receipt Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.receipts[receipt.ID]; exists {
		return sentinel.ErrConflict
	}
	s.receipts[receipt.ID] = receipt
	return nil
}

func (s *InMemoryReceiptStore) FindByID(_ context.Context, receiptID string) (Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[receiptID]
	if !ok {
		return Receipt{}, sentinel.ErrNotFound
	}
	return receipt, nil
}

func (s *InMemoryReceiptStore) ListByCredential(_ context.Context, credentialID string) ([]Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Receipt
	for _, r := range s.receipts {
		if r.CredentialID == credentialID {
			out = append(out, r)
		}
	}
	return out, nil
}

// InMemoryTx satisfies Tx for the in-memory stores. The request store's CAS
// already makes the consumed transition exclusive, and the in-memory receipt
// save cannot fail transiently, so the callback runs directly.
type InMemoryTx struct {
	requests RequestStore
	receipts ReceiptStore
}

func NewInMemoryTx(requests RequestStore, receipts ReceiptStore) *InMemoryTx {
	return &InMemoryTx{requests: requests, receipts: receipts}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(requests RequestStore, receipts ReceiptStore) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t.requests, t.receipts)
}
