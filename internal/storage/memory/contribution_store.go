package memory

import (
	"context"
	"sort"
	"sync"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// ContributionStore is an in-memory implementation of storage.ContributionStore.
type ContributionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Contribution // keyed by contribution_id
}

// NewContributionStore creates a new in-memory contribution store.
func NewContributionStore() *ContributionStore {
	return &ContributionStore{
		data: make(map[string]*domain.Contribution),
	}
}

// Compile-time interface check.
var _ storage.ContributionStore = (*ContributionStore)(nil)

// Insert adds a new contribution. Returns ErrDuplicateKey if the contributor
// already has a non-withdrawn contribution to the campaign.
func (s *ContributionStore) Insert(_ context.Context, c *domain.Contribution) error {
	if c == nil || c.ContributionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[c.ContributionID]; exists {
		return storage.ErrDuplicateKey
	}
	for _, existing := range s.data {
		if existing.CampaignID == c.CampaignID &&
			existing.Contributor == c.Contributor &&
			existing.Status != domain.ContributionWithdrawn {
			return storage.ErrDuplicateKey
		}
	}

	// Store a copy to prevent external mutation
	contribCopy := *c
	s.data[c.ContributionID] = &contribCopy
	return nil
}

// GetByID retrieves a contribution by its ID. Returns ErrNotFound if not exists.
func (s *ContributionStore) GetByID(_ context.Context, contributionID string) (*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.data[contributionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	contribCopy := *c
	return &contribCopy, nil
}

// GetActive retrieves the contributor's non-withdrawn contribution to a campaign.
func (s *ContributionStore) GetActive(_ context.Context, campaignID, contributor string) (*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.data {
		if c.CampaignID == campaignID &&
			c.Contributor == contributor &&
			c.Status != domain.ContributionWithdrawn {
			contribCopy := *c
			return &contribCopy, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByCampaign retrieves all contributions to a campaign, ordered by
// contributed_at ASC.
func (s *ContributionStore) GetByCampaign(_ context.Context, campaignID string) ([]*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Contribution
	for _, c := range s.data {
		if c.CampaignID == campaignID {
			contribCopy := *c
			result = append(result, &contribCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ContributedAt < result[j].ContributedAt
	})
	return result, nil
}

// GetByCampaignAndStatus retrieves contributions in a given status, ordered
// by contributed_at ASC.
func (s *ContributionStore) GetByCampaignAndStatus(_ context.Context, campaignID string, status domain.ContributionStatus) ([]*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Contribution
	for _, c := range s.data {
		if c.CampaignID == campaignID && c.Status == status {
			contribCopy := *c
			result = append(result, &contribCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ContributedAt < result[j].ContributedAt
	})
	return result, nil
}

// GetByContributor retrieves all of a wallet's contributions, ordered by
// created_at DESC.
func (s *ContributionStore) GetByContributor(_ context.Context, contributor string) ([]*domain.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Contribution
	for _, c := range s.data {
		if c.Contributor == contributor {
			contribCopy := *c
			result = append(result, &contribCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt > result[j].CreatedAt
	})
	return result, nil
}

// TransitionStatus atomically moves a contribution between statuses.
func (s *ContributionStore) TransitionStatus(_ context.Context, contributionID string, from, to domain.ContributionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != from {
		return storage.ErrConflict
	}
	c.Status = to
	return nil
}

// SetDepositVerified records the latest verified deposit and the new
// verified total. First deposits confirm a pending contribution; top-up
// deposits land on an already confirmed one.
func (s *ContributionStore) SetDepositVerified(_ context.Context, contributionID, depositTx string, verifiedLamports uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != domain.ContributionPending && c.Status != domain.ContributionConfirmed {
		return storage.ErrConflict
	}
	c.DepositTx = depositTx
	c.VerifiedLamports = verifiedLamports
	c.Status = domain.ContributionConfirmed
	return nil
}

// TopUpAmount raises the pledged amount of an unsettled contribution.
func (s *ContributionStore) TopUpAmount(_ context.Context, contributionID string, delta uint64, qualifies bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	if c.Status != domain.ContributionPending && c.Status != domain.ContributionConfirmed {
		return storage.ErrConflict
	}
	c.AmountLamports += delta
	c.QualifiesForFees = qualifies
	return nil
}

// SetPurchaseOutcome records a launch purchase result.
func (s *ContributionStore) SetPurchaseOutcome(_ context.Context, contributionID string, tokensReceived uint64, purchaseTx *string, status domain.ContributionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	c.TokensReceived = tokensReceived
	c.PurchaseTx = copyStringPtr(purchaseTx)
	c.Status = status
	return nil
}

// SetRefundTx records the refund transaction reference.
func (s *ContributionStore) SetRefundTx(_ context.Context, contributionID, refundTx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	c.RefundTx = &refundTx
	return nil
}

// SetSweepOutcome marks the contribution swept.
func (s *ContributionStore) SetSweepOutcome(_ context.Context, contributionID, mode, sweepTx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	c.Swept = true
	c.SweepMode = &mode
	c.SweepTx = &sweepTx
	return nil
}

// AddClaimableFees accrues fee balance on a contribution.
func (s *ContributionStore) AddClaimableFees(_ context.Context, contributionID string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return storage.ErrNotFound
	}
	c.ClaimableFeeLamports += amount
	return nil
}

// SettleClaim moves the contribution's claimable fee balance to claimed.
func (s *ContributionStore) SettleClaim(_ context.Context, contributionID string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, exists := s.data[contributionID]
	if !exists {
		return 0, storage.ErrNotFound
	}
	amount := c.ClaimableFeeLamports
	c.ClaimableFeeLamports = 0
	c.ClaimedFeeLamports += amount
	return amount, nil
}

func copyStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
