package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// ContributionStore implements storage.ContributionStore using PostgreSQL.
// The partial unique index on (campaign_id, contributor) WHERE status !=
// 'withdrawn' enforces the one-active-contribution rule.
type ContributionStore struct {
	pool *Pool
}

// NewContributionStore creates a new ContributionStore.
func NewContributionStore(pool *Pool) *ContributionStore {
	return &ContributionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ContributionStore = (*ContributionStore)(nil)

const contributionColumns = `
	contribution_id, campaign_id, contributor, amount_lamports, verified_lamports,
	credential_public_key, encrypted_secret, deposit_tx,
	qualifies_for_fees, status,
	tokens_received, purchase_tx,
	refund_tx, swept, sweep_mode, sweep_tx,
	claimable_fee_lamports, claimed_fee_lamports,
	contributed_at, created_at
`

// Insert adds a new contribution. Returns ErrDuplicateKey when the ID exists
// or the contributor already has an active contribution to the campaign.
func (s *ContributionStore) Insert(ctx context.Context, c *domain.Contribution) error {
	query := `
		INSERT INTO contributions (` + contributionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ContributionID,
		c.CampaignID,
		c.Contributor,
		c.AmountLamports,
		c.VerifiedLamports,
		c.CredentialPublicKey,
		c.EncryptedSecret,
		c.DepositTx,
		c.QualifiesForFees,
		string(c.Status),
		c.TokensReceived,
		c.PurchaseTx,
		c.RefundTx,
		c.Swept,
		c.SweepMode,
		c.SweepTx,
		c.ClaimableFeeLamports,
		c.ClaimedFeeLamports,
		c.ContributedAt,
		c.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

// GetByID retrieves a contribution by its ID. Returns ErrNotFound if not exists.
func (s *ContributionStore) GetByID(ctx context.Context, contributionID string) (*domain.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE contribution_id = $1
	`

	row := s.pool.QueryRow(ctx, query, contributionID)
	c, err := scanContribution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get contribution by id: %w", err)
	}
	return c, nil
}

// GetActive retrieves the contributor's non-withdrawn contribution to a campaign.
func (s *ContributionStore) GetActive(ctx context.Context, campaignID, contributor string) (*domain.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE campaign_id = $1 AND contributor = $2 AND status != 'withdrawn'
	`

	row := s.pool.QueryRow(ctx, query, campaignID, contributor)
	c, err := scanContribution(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active contribution: %w", err)
	}
	return c, nil
}

// GetByCampaign retrieves all contributions to a campaign, ordered by
// contributed_at ASC.
func (s *ContributionStore) GetByCampaign(ctx context.Context, campaignID string) ([]*domain.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE campaign_id = $1
		ORDER BY contributed_at ASC, contribution_id ASC
	`

	rows, err := s.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get contributions by campaign: %w", err)
	}
	defer rows.Close()

	return scanContributions(rows)
}

// GetByCampaignAndStatus retrieves contributions in a given status, ordered
// by contributed_at ASC.
func (s *ContributionStore) GetByCampaignAndStatus(ctx context.Context, campaignID string, status domain.ContributionStatus) ([]*domain.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE campaign_id = $1 AND status = $2
		ORDER BY contributed_at ASC, contribution_id ASC
	`

	rows, err := s.pool.Query(ctx, query, campaignID, string(status))
	if err != nil {
		return nil, fmt.Errorf("get contributions by campaign and status: %w", err)
	}
	defer rows.Close()

	return scanContributions(rows)
}

// GetByContributor retrieves all of a wallet's contributions, ordered by
// created_at DESC.
func (s *ContributionStore) GetByContributor(ctx context.Context, contributor string) ([]*domain.Contribution, error) {
	query := `
		SELECT ` + contributionColumns + `
		FROM contributions
		WHERE contributor = $1
		ORDER BY created_at DESC, contribution_id ASC
	`

	rows, err := s.pool.Query(ctx, query, contributor)
	if err != nil {
		return nil, fmt.Errorf("get contributions by contributor: %w", err)
	}
	defer rows.Close()

	return scanContributions(rows)
}

// TransitionStatus atomically moves a contribution between statuses.
func (s *ContributionStore) TransitionStatus(ctx context.Context, contributionID string, from, to domain.ContributionStatus) error {
	query := `
		UPDATE contributions
		SET status = $1
		WHERE contribution_id = $2 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, string(to), contributionID, string(from))
	if err != nil {
		return fmt.Errorf("transition contribution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.exists(ctx, contributionID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// SetDepositVerified records the latest verified deposit and the new
// verified total. First deposits confirm a pending contribution; top-up
// deposits land on an already confirmed one.
func (s *ContributionStore) SetDepositVerified(ctx context.Context, contributionID, depositTx string, verifiedLamports uint64) error {
	query := `
		UPDATE contributions
		SET deposit_tx = $1, verified_lamports = $2, status = 'confirmed'
		WHERE contribution_id = $3 AND status IN ('pending', 'confirmed')
	`

	tag, err := s.pool.Exec(ctx, query, depositTx, verifiedLamports, contributionID)
	if err != nil {
		return fmt.Errorf("set deposit verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.exists(ctx, contributionID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// TopUpAmount raises the pledged amount of an unsettled contribution.
func (s *ContributionStore) TopUpAmount(ctx context.Context, contributionID string, delta uint64, qualifies bool) error {
	query := `
		UPDATE contributions
		SET amount_lamports = amount_lamports + $1, qualifies_for_fees = $2
		WHERE contribution_id = $3 AND status IN ('pending', 'confirmed')
	`

	tag, err := s.pool.Exec(ctx, query, delta, qualifies, contributionID)
	if err != nil {
		return fmt.Errorf("top up amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.exists(ctx, contributionID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

// SetPurchaseOutcome records a launch purchase result.
func (s *ContributionStore) SetPurchaseOutcome(ctx context.Context, contributionID string, tokensReceived uint64, purchaseTx *string, status domain.ContributionStatus) error {
	query := `
		UPDATE contributions
		SET tokens_received = $1, purchase_tx = $2, status = $3
		WHERE contribution_id = $4
	`

	tag, err := s.pool.Exec(ctx, query, tokensReceived, purchaseTx, string(status), contributionID)
	if err != nil {
		return fmt.Errorf("set purchase outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetRefundTx records the refund transaction reference.
func (s *ContributionStore) SetRefundTx(ctx context.Context, contributionID, refundTx string) error {
	query := `
		UPDATE contributions
		SET refund_tx = $1
		WHERE contribution_id = $2
	`

	tag, err := s.pool.Exec(ctx, query, refundTx, contributionID)
	if err != nil {
		return fmt.Errorf("set refund tx: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetSweepOutcome marks the contribution swept.
func (s *ContributionStore) SetSweepOutcome(ctx context.Context, contributionID, mode, sweepTx string) error {
	query := `
		UPDATE contributions
		SET swept = TRUE, sweep_mode = $1, sweep_tx = $2
		WHERE contribution_id = $3
	`

	tag, err := s.pool.Exec(ctx, query, mode, sweepTx, contributionID)
	if err != nil {
		return fmt.Errorf("set sweep outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddClaimableFees accrues fee balance on a contribution.
func (s *ContributionStore) AddClaimableFees(ctx context.Context, contributionID string, amount uint64) error {
	query := `
		UPDATE contributions
		SET claimable_fee_lamports = claimable_fee_lamports + $1
		WHERE contribution_id = $2
	`

	tag, err := s.pool.Exec(ctx, query, amount, contributionID)
	if err != nil {
		return fmt.Errorf("add claimable fees: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SettleClaim zeroes the claimable balance and returns the amount moved.
func (s *ContributionStore) SettleClaim(ctx context.Context, contributionID string) (uint64, error) {
	query := `
		UPDATE contributions c
		SET claimable_fee_lamports = 0,
		    claimed_fee_lamports = c.claimed_fee_lamports + c.claimable_fee_lamports
		FROM (
			SELECT contribution_id, claimable_fee_lamports
			FROM contributions
			WHERE contribution_id = $1
			FOR UPDATE
		) old
		WHERE c.contribution_id = old.contribution_id
		RETURNING old.claimable_fee_lamports
	`

	var amount uint64
	err := s.pool.QueryRow(ctx, query, contributionID).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("settle claim: %w", err)
	}
	return amount, nil
}

func (s *ContributionStore) exists(ctx context.Context, contributionID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM contributions WHERE contribution_id = $1`, contributionID).Scan(&one)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check contribution exists: %w", err)
	}
	return true, nil
}

// scanContribution scans a single row into a Contribution.
func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var c domain.Contribution
	var statusStr string

	err := row.Scan(
		&c.ContributionID,
		&c.CampaignID,
		&c.Contributor,
		&c.AmountLamports,
		&c.VerifiedLamports,
		&c.CredentialPublicKey,
		&c.EncryptedSecret,
		&c.DepositTx,
		&c.QualifiesForFees,
		&statusStr,
		&c.TokensReceived,
		&c.PurchaseTx,
		&c.RefundTx,
		&c.Swept,
		&c.SweepMode,
		&c.SweepTx,
		&c.ClaimableFeeLamports,
		&c.ClaimedFeeLamports,
		&c.ContributedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.ContributionStatus(statusStr)
	return &c, nil
}

// scanContributions scans multiple rows into a slice of Contribution.
func scanContributions(rows pgx.Rows) ([]*domain.Contribution, error) {
	var contributions []*domain.Contribution

	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution row: %w", err)
		}
		contributions = append(contributions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contribution rows: %w", err)
	}

	return contributions, nil
}
