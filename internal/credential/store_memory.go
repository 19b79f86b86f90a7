package credential

import (
	"context"
	"sync"
	"time"

	"trustlessid/pkg/platform/sentinel"
)

// InMemoryStore keeps credentials in a map. Used in demo mode and in tests.
type InMemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]Credential
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{credentials: make(map[string]Credential)}
}

func (s *InMemoryStore) FindByID(_ context.Context, credentialID string) (Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[credentialID]
	if !ok {
		return Credential{}, sentinel.ErrNotFound
	}
	return cred, nil
}

func (s *InMemoryStore) IncrementVerificationCount(_ context.Context, credentialID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[credentialID]
	if !ok {
		return sentinel.ErrNotFound
	}
	cred.VerificationCount++
	s.credentials[credentialID] = cred
	return nil
}

// Put inserts or replaces a credential. Used by the seed and by tests.
func (s *InMemoryStore) Put(cred Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.ID] = cred
}

// Seed loads the demo credential set so the flow is exercisable without a
// database.
func (s *InMemoryStore) Seed(now time.Time) {
	demo := []Credential{
		{
			ID:                "cred_demo1active",
			Type:              "national_id",
			Status:            StatusActive,
			IssuedAt:          now.AddDate(0, 0, -10),
			VerificationCount: 3,
		},
		{
			ID:                "cred_demo2fresh",
			Type:              "passport",
			Status:            StatusActive,
			IssuedAt:          now,
			VerificationCount: 0,
		},
		{
			ID:                "cred_demo3expired",
			Type:              "drivers_license",
			Status:            StatusExpired,
			IssuedAt:          now.AddDate(-2, 0, 0),
			VerificationCount: 14,
		},
		{
			ID:                "cred_demo4revoked",
			Type:              "national_id",
			Status:            StatusRevoked,
			IssuedAt:          now.AddDate(0, -6, 0),
			VerificationCount: 7,
		},
	}
	for _, cred := range demo {
		s.Put(cred)
	}
}
