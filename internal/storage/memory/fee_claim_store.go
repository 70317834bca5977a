package memory

import (
	"context"
	"sort"
	"sync"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// FeeClaimStore is an in-memory implementation of storage.FeeClaimStore.
type FeeClaimStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeeClaim // keyed by claim_id
}

// NewFeeClaimStore creates a new in-memory fee claim store.
func NewFeeClaimStore() *FeeClaimStore {
	return &FeeClaimStore{
		data: make(map[string]*domain.FeeClaim),
	}
}

// Compile-time interface check.
var _ storage.FeeClaimStore = (*FeeClaimStore)(nil)

// Insert adds a new claim. Returns ErrDuplicateKey if claim_id exists.
func (s *FeeClaimStore) Insert(_ context.Context, c *domain.FeeClaim) error {
	if c == nil || c.ClaimID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ClaimID]; exists {
		return storage.ErrDuplicateKey
	}

	claimCopy := *c
	s.data[c.ClaimID] = &claimCopy
	return nil
}

// SetResult records the claim outcome.
func (s *FeeClaimStore) SetResult(_ context.Context, claimID string, status domain.FeeClaimStatus, claimTx *string, completedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[claimID]
	if !exists {
		return storage.ErrNotFound
	}
	c.Status = status
	c.ClaimTx = copyStringPtr(claimTx)
	c.CompletedAt = completedAt
	return nil
}

// GetByWallet retrieves all claims by a wallet, ordered by created_at DESC.
func (s *FeeClaimStore) GetByWallet(_ context.Context, wallet string) ([]*domain.FeeClaim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeClaim
	for _, c := range s.data {
		if c.Wallet == wallet {
			claimCopy := *c
			result = append(result, &claimCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result, nil
}
