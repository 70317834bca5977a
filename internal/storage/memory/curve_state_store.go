package memory

import (
	"context"
	"sync"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// CurveStateStore is an in-memory implementation of storage.CurveStateStore.
type CurveStateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CurveState // keyed by campaign_id
}

// NewCurveStateStore creates a new in-memory curve state store.
func NewCurveStateStore() *CurveStateStore {
	return &CurveStateStore{
		data: make(map[string]*domain.CurveState),
	}
}

// Compile-time interface check.
var _ storage.CurveStateStore = (*CurveStateStore)(nil)

// Insert adds the curve state for a launched campaign.
func (s *CurveStateStore) Insert(_ context.Context, st *domain.CurveState) error {
	if st == nil || st.CampaignID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.CampaignID]; exists {
		return storage.ErrDuplicateKey
	}

	stateCopy := *st
	s.data[st.CampaignID] = &stateCopy
	return nil
}

// GetByCampaign retrieves the curve state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) GetByCampaign(_ context.Context, campaignID string) (*domain.CurveState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[campaignID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	stateCopy := *st
	return &stateCopy, nil
}

// Update persists mutated reserves.
func (s *CurveStateStore) Update(_ context.Context, st *domain.CurveState) error {
	if st == nil || st.CampaignID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.CampaignID]; !exists {
		return storage.ErrNotFound
	}

	stateCopy := *st
	s.data[st.CampaignID] = &stateCopy
	return nil
}
