package storage

import (
	"context"

	"prooflaunch/internal/domain"
)

// CampaignStore provides access to campaigns storage.
type CampaignStore interface {
	// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
	Insert(ctx context.Context, c *domain.Campaign) error

	// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, campaignID string) (*domain.Campaign, error)

	// GetByMint retrieves a live campaign by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Campaign, error)

	// GetByStatus retrieves all campaigns in a given status, ordered by created_at ASC.
	GetByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error)

	// GetByCreator retrieves all campaigns by a creator, ordered by created_at ASC.
	GetByCreator(ctx context.Context, creator string) ([]*domain.Campaign, error)

	// TransitionStatus atomically moves a campaign from one status to
	// another. Returns ErrConflict if the campaign is not in the expected
	// status, ErrNotFound if it does not exist. This is the per-campaign
	// serialization point: concurrent goal checks and sweeps race on it
	// and exactly one wins.
	TransitionStatus(ctx context.Context, campaignID string, from, to domain.CampaignStatus) error

	// AddRaised adjusts the verified-contribution total by delta
	// (negative on withdrawal). The result is never allowed below zero.
	AddRaised(ctx context.Context, campaignID string, delta int64) error

	// SetLaunchArtifacts records the mint address, trade URL, and launch
	// time of a live campaign.
	SetLaunchArtifacts(ctx context.Context, campaignID, mint, tradeURL string, launchedAt int64) error

	// AddCreatorClaimable accrues creator fee balance.
	AddCreatorClaimable(ctx context.Context, campaignID string, amount uint64) error

	// SettleCreatorClaim moves the creator's claimable balance to claimed
	// and returns the amount settled.
	SettleCreatorClaim(ctx context.Context, campaignID string) (uint64, error)
}

// ContributionStore provides access to contributions storage.
type ContributionStore interface {
	// Insert adds a new contribution. Returns ErrDuplicateKey if the
	// contributor already has a non-withdrawn contribution to the campaign.
	Insert(ctx context.Context, c *domain.Contribution) error

	// GetByID retrieves a contribution by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, contributionID string) (*domain.Contribution, error)

	// GetActive retrieves the contributor's non-withdrawn contribution to
	// a campaign. Returns ErrNotFound if none exists.
	GetActive(ctx context.Context, campaignID, contributor string) (*domain.Contribution, error)

	// GetByCampaign retrieves all contributions to a campaign, ordered by
	// contributed_at ASC (launch purchase order).
	GetByCampaign(ctx context.Context, campaignID string) ([]*domain.Contribution, error)

	// GetByCampaignAndStatus retrieves contributions in a given status,
	// ordered by contributed_at ASC.
	GetByCampaignAndStatus(ctx context.Context, campaignID string, status domain.ContributionStatus) ([]*domain.Contribution, error)

	// GetByContributor retrieves all of a wallet's contributions, ordered
	// by created_at DESC.
	GetByContributor(ctx context.Context, contributor string) ([]*domain.Contribution, error)

	// TransitionStatus atomically moves a contribution from one status to
	// another. Returns ErrConflict if it is not in the expected status.
	// The refund/withdraw idempotency guard rests on this.
	TransitionStatus(ctx context.Context, contributionID string, from, to domain.ContributionStatus) error

	// SetDepositVerified records the latest verified deposit transaction
	// and the new verified total, and moves the contribution to confirmed.
	// Accepts pending (first deposit) and confirmed (top-up deposit)
	// contributions; returns ErrConflict otherwise.
	SetDepositVerified(ctx context.Context, contributionID, depositTx string, verifiedLamports uint64) error

	// TopUpAmount raises the pledged amount by delta and refreshes the
	// fee-share qualification. Accepts pending and confirmed
	// contributions; returns ErrConflict otherwise.
	TopUpAmount(ctx context.Context, contributionID string, delta uint64, qualifies bool) error

	// SetPurchaseOutcome records a launch purchase result and, on
	// success, the distributed status.
	SetPurchaseOutcome(ctx context.Context, contributionID string, tokensReceived uint64, purchaseTx *string, status domain.ContributionStatus) error

	// SetRefundTx records the refund transaction reference.
	SetRefundTx(ctx context.Context, contributionID, refundTx string) error

	// SetSweepOutcome marks the contribution swept.
	SetSweepOutcome(ctx context.Context, contributionID, mode, sweepTx string) error

	// AddClaimableFees accrues fee balance on a contribution.
	AddClaimableFees(ctx context.Context, contributionID string, amount uint64) error

	// SettleClaim moves the contribution's claimable fee balance to
	// claimed and returns the amount settled.
	SettleClaim(ctx context.Context, contributionID string) (uint64, error)
}

// CurveStateStore provides access to curve_states storage.
type CurveStateStore interface {
	// Insert adds the curve state for a launched campaign. Returns
	// ErrDuplicateKey if one already exists.
	Insert(ctx context.Context, s *domain.CurveState) error

	// GetByCampaign retrieves the curve state. Returns ErrNotFound if not exists.
	GetByCampaign(ctx context.Context, campaignID string) (*domain.CurveState, error)

	// Update persists mutated reserves.
	Update(ctx context.Context, s *domain.CurveState) error
}

// FeeEventStore provides access to observed fee-inflow storage.
type FeeEventStore interface {
	// Insert adds a fee event. Returns ErrDuplicateKey if the signature
	// was already observed; observers rely on this for de-duplication.
	Insert(ctx context.Context, e *domain.FeeEvent) error

	// GetLatest returns the most recently observed event, or ErrNotFound
	// when none exist. Scans resume after its signature.
	GetLatest(ctx context.Context) (*domain.FeeEvent, error)

	// GetByCampaign retrieves all events attributed to a campaign,
	// ordered by observed_at ASC.
	GetByCampaign(ctx context.Context, campaignID string) ([]*domain.FeeEvent, error)
}

// FeeClaimStore provides access to fee-claim storage.
type FeeClaimStore interface {
	// Insert adds a new claim. Returns ErrDuplicateKey if claim_id exists.
	Insert(ctx context.Context, c *domain.FeeClaim) error

	// SetResult records the claim outcome.
	SetResult(ctx context.Context, claimID string, status domain.FeeClaimStatus, claimTx *string, completedAt int64) error

	// GetByWallet retrieves all claims by a wallet, ordered by created_at DESC.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.FeeClaim, error)
}
