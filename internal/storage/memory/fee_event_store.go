package memory

import (
	"context"
	"sort"
	"sync"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// FeeEventStore is an in-memory implementation of storage.FeeEventStore.
type FeeEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FeeEvent // keyed by tx_signature
}

// NewFeeEventStore creates a new in-memory fee event store.
func NewFeeEventStore() *FeeEventStore {
	return &FeeEventStore{
		data: make(map[string]*domain.FeeEvent),
	}
}

// Compile-time interface check.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)

// Insert adds a fee event. Returns ErrDuplicateKey if the signature was
// already observed.
func (s *FeeEventStore) Insert(_ context.Context, e *domain.FeeEvent) error {
	if e == nil || e.TxSignature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.TxSignature]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.TxSignature] = &eventCopy
	return nil
}

// GetLatest returns the most recently observed event.
func (s *FeeEventStore) GetLatest(_ context.Context) (*domain.FeeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.FeeEvent
	for _, e := range s.data {
		if latest == nil || e.ObservedAt > latest.ObservedAt {
			latest = e
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	eventCopy := *latest
	return &eventCopy, nil
}

// GetByCampaign retrieves all events attributed to a campaign, ordered by
// observed_at ASC.
func (s *FeeEventStore) GetByCampaign(_ context.Context, campaignID string) ([]*domain.FeeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FeeEvent
	for _, e := range s.data {
		if e.CampaignID == campaignID {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ObservedAt < result[j].ObservedAt
	})
	return result, nil
}
