package account

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development. A single
// mutex serializes all writers, which gives it the same effective guarantees
// as the conditional statements in PGStore.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*Account
	byAuthID map[string]uuid.UUID
}

// NewMemoryStore creates an empty in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*Account),
		byAuthID: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) GetByID(_ context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyByID(id)
}

func (s *MemoryStore) GetByAuthID(_ context.Context, authID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byAuthID[authID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyByID(id)
}

func (s *MemoryStore) GetByBillingCustomerID(_ context.Context, customerID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.findByCustomerID(customerID)
	if acc == nil {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) Create(_ context.Context, acc *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byAuthID[acc.AuthID]; dup {
		return ErrAlreadyExists
	}
	if _, dup := s.accounts[acc.ID]; dup {
		return ErrAlreadyExists
	}

	cp := *acc
	s.accounts[cp.ID] = &cp
	s.byAuthID[cp.AuthID] = cp.ID
	return nil
}

func (s *MemoryStore) StartTrial(_ context.Context, id uuid.UUID, startedAt, endsAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acc.TrialStartedAt != nil {
		return ErrTrialAlreadyUsed
	}

	started, ends := startedAt, endsAt
	acc.Tier = TierFlow
	acc.SubscriptionStatus = StatusTrialing
	acc.TrialStartedAt = &started
	acc.TrialEndsAt = &ends
	acc.UpdatedAt = startedAt
	return nil
}

func (s *MemoryStore) ExpireTrial(_ context.Context, id uuid.UUID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acc.SubscriptionStatus != StatusTrialing || acc.TrialEndsAt == nil || !now.After(*acc.TrialEndsAt) {
		return ErrTrialNotExpired
	}

	acc.Tier = TierFree
	acc.SubscriptionStatus = StatusCancelled
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ApplyCheckout(_ context.Context, id uuid.UUID, customerID, subscriptionID string, lifetime bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}

	acc.Tier = TierFlow
	acc.SubscriptionStatus = StatusActive
	acc.Lifetime = acc.Lifetime || lifetime
	acc.BillingCustomerID = customerID
	acc.BillingSubscriptionID = subscriptionID
	acc.AIQueriesThisMonth = 0
	acc.AIQueriesResetAt = now
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) CancelSubscription(_ context.Context, customerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.findByCustomerID(customerID)
	if acc == nil || acc.Lifetime {
		return nil
	}

	acc.Tier = TierFree
	acc.SubscriptionStatus = StatusCancelled
	acc.BillingSubscriptionID = ""
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) SetSubscriptionStatus(_ context.Context, customerID string, status SubscriptionStatus, subscriptionID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.findByCustomerID(customerID)
	if acc == nil {
		return nil
	}

	acc.SubscriptionStatus = status
	if subscriptionID != "" {
		acc.BillingSubscriptionID = subscriptionID
	}
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) MarkPastDue(_ context.Context, customerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.findByCustomerID(customerID)
	if acc == nil || acc.Lifetime {
		return nil
	}

	acc.SubscriptionStatus = StatusPastDue
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) RecordPayment(_ context.Context, customerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.findByCustomerID(customerID)
	if acc == nil {
		return nil
	}

	acc.SubscriptionStatus = StatusActive
	acc.AIQueriesThisMonth = 0
	acc.AIQueriesResetAt = now
	acc.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ResetQuotaIfDue(_ context.Context, id uuid.UUID, monthStart, now time.Time) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if acc.AIQueriesResetAt.Before(monthStart) {
		acc.AIQueriesThisMonth = 0
		acc.AIQueriesResetAt = now
		acc.UpdatedAt = now
	}

	cp := *acc
	return &cp, nil
}

func (s *MemoryStore) ConsumeQuery(_ context.Context, id uuid.UUID, limit int, monthStart, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}

	used := acc.AIQueriesThisMonth
	if acc.AIQueriesResetAt.Before(monthStart) {
		used = 0
	}
	if used >= limit {
		return 0, ErrQuotaExceeded
	}

	if acc.AIQueriesResetAt.Before(monthStart) {
		acc.AIQueriesResetAt = now
	}
	acc.AIQueriesThisMonth = used + 1
	acc.UpdatedAt = now
	return acc.AIQueriesThisMonth, nil
}

// copyByID must be called with the mutex held.
func (s *MemoryStore) copyByID(id uuid.UUID) (*Account, error) {
	acc, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

// findByCustomerID must be called with the mutex held.
func (s *MemoryStore) findByCustomerID(customerID string) *Account {
	if customerID == "" {
		return nil
	}
	for _, acc := range s.accounts {
		if acc.BillingCustomerID == customerID {
			return acc
		}
	}
	return nil
}
