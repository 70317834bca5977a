package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// CampaignStore implements storage.CampaignStore using PostgreSQL.
type CampaignStore struct {
	pool *Pool
}

// NewCampaignStore creates a new CampaignStore.
func NewCampaignStore(pool *Pool) *CampaignStore {
	return &CampaignStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CampaignStore = (*CampaignStore)(nil)

const campaignColumns = `
	campaign_id, creator, name, symbol, description, image_url,
	goal_lamports, raised_lamports, creator_fee_pct, deadline_at, auto_refund,
	status, mint_address, trade_url,
	creator_claimable_lamports, creator_claimed_lamports,
	created_at, launched_at
`

// Insert adds a new campaign. Returns ErrDuplicateKey if campaign_id exists.
func (s *CampaignStore) Insert(ctx context.Context, c *domain.Campaign) error {
	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.pool.Exec(ctx, query,
		c.CampaignID,
		c.Creator,
		c.Name,
		c.Symbol,
		c.Description,
		c.ImageURL,
		c.GoalLamports,
		c.RaisedLamports,
		c.CreatorFeePct,
		c.DeadlineAt,
		c.AutoRefund,
		string(c.Status),
		c.MintAddress,
		c.TradeURL,
		c.CreatorClaimableLamports,
		c.CreatorClaimedLamports,
		c.CreatedAt,
		c.LaunchedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// GetByID retrieves a campaign by its ID. Returns ErrNotFound if not exists.
func (s *CampaignStore) GetByID(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE campaign_id = $1
	`

	row := s.pool.QueryRow(ctx, query, campaignID)
	c, err := scanCampaign(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign by id: %w", err)
	}
	return c, nil
}

// GetByMint retrieves a live campaign by mint address.
func (s *CampaignStore) GetByMint(ctx context.Context, mint string) (*domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE mint_address = $1
	`

	row := s.pool.QueryRow(ctx, query, mint)
	c, err := scanCampaign(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign by mint: %w", err)
	}
	return c, nil
}

// GetByStatus retrieves all campaigns in a given status, ordered by created_at ASC.
func (s *CampaignStore) GetByStatus(ctx context.Context, status domain.CampaignStatus) ([]*domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at ASC, campaign_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("get campaigns by status: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// GetByCreator retrieves all campaigns by a creator, ordered by created_at ASC.
func (s *CampaignStore) GetByCreator(ctx context.Context, creator string) ([]*domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE creator = $1
		ORDER BY created_at ASC, campaign_id ASC
	`

	rows, err := s.pool.Query(ctx, query, creator)
	if err != nil {
		return nil, fmt.Errorf("get campaigns by creator: %w", err)
	}
	defer rows.Close()

	return scanCampaigns(rows)
}

// TransitionStatus atomically moves a campaign between statuses. The WHERE
// clause on the expected status makes concurrent transitions race safely:
// exactly one update matches.
func (s *CampaignStore) TransitionStatus(ctx context.Context, campaignID string, from, to domain.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET status = $1
		WHERE campaign_id = $2 AND status = $3
	`

	tag, err := s.pool.Exec(ctx, query, string(to), campaignID, string(from))
	if err != nil {
		return fmt.Errorf("transition campaign status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing row.
		exists, err := s.exists(ctx, campaignID)
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

// AddRaised adjusts the verified-contribution total by delta.
func (s *CampaignStore) AddRaised(ctx context.Context, campaignID string, delta int64) error {
	query := `
		UPDATE campaigns
		SET raised_lamports = GREATEST(raised_lamports + $1, 0)
		WHERE campaign_id = $2
	`

	tag, err := s.pool.Exec(ctx, query, delta, campaignID)
	if err != nil {
		return fmt.Errorf("add raised: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetLaunchArtifacts records launch outputs on a campaign.
func (s *CampaignStore) SetLaunchArtifacts(ctx context.Context, campaignID, mint, tradeURL string, launchedAt int64) error {
	query := `
		UPDATE campaigns
		SET mint_address = $1, trade_url = $2, launched_at = $3
		WHERE campaign_id = $4
	`

	tag, err := s.pool.Exec(ctx, query, mint, tradeURL, launchedAt, campaignID)
	if err != nil {
		return fmt.Errorf("set launch artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddCreatorClaimable accrues creator fee balance.
func (s *CampaignStore) AddCreatorClaimable(ctx context.Context, campaignID string, amount uint64) error {
	query := `
		UPDATE campaigns
		SET creator_claimable_lamports = creator_claimable_lamports + $1
		WHERE campaign_id = $2
	`

	tag, err := s.pool.Exec(ctx, query, amount, campaignID)
	if err != nil {
		return fmt.Errorf("add creator claimable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SettleCreatorClaim zeroes the claimable balance and returns the amount moved.
func (s *CampaignStore) SettleCreatorClaim(ctx context.Context, campaignID string) (uint64, error) {
	// RETURNING sees post-update values, so the pre-update balance is
	// captured through a locked self-join.
	query := `
		UPDATE campaigns c
		SET creator_claimable_lamports = 0,
		    creator_claimed_lamports = c.creator_claimed_lamports + c.creator_claimable_lamports
		FROM (
			SELECT campaign_id, creator_claimable_lamports
			FROM campaigns
			WHERE campaign_id = $1
			FOR UPDATE
		) old
		WHERE c.campaign_id = old.campaign_id
		RETURNING old.creator_claimable_lamports
	`

	var amount uint64
	err := s.pool.QueryRow(ctx, query, campaignID).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("settle creator claim: %w", err)
	}
	return amount, nil
}

func (s *CampaignStore) exists(ctx context.Context, campaignID string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM campaigns WHERE campaign_id = $1`, campaignID).Scan(&one)
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check campaign exists: %w", err)
	}
	return true, nil
}

// scanCampaign scans a single row into a Campaign.
func scanCampaign(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	var statusStr string

	err := row.Scan(
		&c.CampaignID,
		&c.Creator,
		&c.Name,
		&c.Symbol,
		&c.Description,
		&c.ImageURL,
		&c.GoalLamports,
		&c.RaisedLamports,
		&c.CreatorFeePct,
		&c.DeadlineAt,
		&c.AutoRefund,
		&statusStr,
		&c.MintAddress,
		&c.TradeURL,
		&c.CreatorClaimableLamports,
		&c.CreatorClaimedLamports,
		&c.CreatedAt,
		&c.LaunchedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.CampaignStatus(statusStr)
	return &c, nil
}

// scanCampaigns scans multiple rows into a slice of Campaign.
func scanCampaigns(rows pgx.Rows) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaign rows: %w", err)
	}

	return campaigns, nil
}
