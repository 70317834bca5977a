package memory

import (
	"context"
	"sort"
	"sync"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// CampaignStore is an in-memory implementation of storage.CampaignStore.
type CampaignStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Campaign // keyed by campaign_id
}

// NewCampaignStore creates a new in-memory campaign store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{
		data: make(map[string]*domain.Campaign),
	}
}

// Compile-time interface check.
var _ storage.CampaignStore = (*CampaignStore)(nil)

// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
func (s *CampaignStore) Insert(_ context.Context, c *domain.Campaign) error {
	if c == nil || c.CampaignID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.CampaignID]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	campaignCopy := *c
	s.data[c.CampaignID] = &campaignCopy
	return nil
}

// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
func (s *CampaignStore) GetByID(_ context.Context, campaignID string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[campaignID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	campaignCopy := *c
	return &campaignCopy, nil
}

// GetByMint retrieves a live campaign by mint address.
func (s *CampaignStore) GetByMint(_ context.Context, mint string) (*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.data {
		if c.MintAddress != nil && *c.MintAddress == mint {
			campaignCopy := *c
			return &campaignCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByStatus retrieves all campaigns in a given status, ordered by created_at ASC.
func (s *CampaignStore) GetByStatus(_ context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Campaign
	for _, c := range s.data {
		if c.Status == status {
			campaignCopy := *c
			result = append(result, &campaignCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// GetByCreator retrieves all campaigns by a creator, ordered by created_at ASC.
func (s *CampaignStore) GetByCreator(_ context.Context, creator string) ([]*domain.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Campaign
	for _, c := range s.data {
		if c.Creator == creator {
			campaignCopy := *c
			result = append(result, &campaignCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

// TransitionStatus atomically moves a campaign between statuses.
func (s *CampaignStore) TransitionStatus(_ context.Context, campaignID string, from, to domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != from {
		return storage.ErrConflict
	}
	c.Status = to
	return nil
}

// AddRaised adjusts the verified-contribution total by delta.
func (s *CampaignStore) AddRaised(_ context.Context, campaignID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return storage.ErrNotFound
	}
	if delta < 0 && uint64(-delta) > c.RaisedLamports {
		c.RaisedLamports = 0
		return nil
	}
	c.RaisedLamports = uint64(int64(c.RaisedLamports) + delta)
	return nil
}

// SetLaunchArtifacts records launch outputs on a campaign.
func (s *CampaignStore) SetLaunchArtifacts(_ context.Context, campaignID, mint, tradeURL string, launchedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return storage.ErrNotFound
	}
	c.MintAddress = &mint
	c.TradeURL = &tradeURL
	c.LaunchedAt = launchedAt
	return nil
}

// AddCreatorClaimable accrues creator fee balance.
func (s *CampaignStore) AddCreatorClaimable(_ context.Context, campaignID string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return storage.ErrNotFound
	}
	c.CreatorClaimableLamports += amount
	return nil
}

// SettleCreatorClaim moves the creator's claimable balance to claimed.
func (s *CampaignStore) SettleCreatorClaim(_ context.Context, campaignID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[campaignID]
	if !exists {
		return 0, storage.ErrNotFound
	}
	amount := c.CreatorClaimableLamports
	c.CreatorClaimableLamports = 0
	c.CreatorClaimedLamports += amount
	return amount, nil
}
