package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// FeeClaimStore implements storage.FeeClaimStore using PostgreSQL.
type FeeClaimStore struct {
	pool *Pool
}

// NewFeeClaimStore creates a new FeeClaimStore.
func NewFeeClaimStore(pool *Pool) *FeeClaimStore {
	return &FeeClaimStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeeClaimStore = (*FeeClaimStore)(nil)

const feeClaimColumns = `
	claim_id, campaign_id, wallet, amount_lamports, status, claim_tx, created_at, completed_at
`

// Insert adds a new claim. Returns ErrDuplicateKey if claim_id exists.
func (s *FeeClaimStore) Insert(ctx context.Context, c *domain.FeeClaim) error {
	query := `
		INSERT INTO fee_claims (` + feeClaimColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		c.ClaimID,
		c.CampaignID,
		c.Wallet,
		c.AmountLamports,
		string(c.Status),
		c.ClaimTx,
		c.CreatedAt,
		c.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fee claim: %w", err)
	}
	return nil
}

// SetResult records the claim outcome.
func (s *FeeClaimStore) SetResult(ctx context.Context, claimID string, status domain.FeeClaimStatus, claimTx *string, completedAt int64) error {
	query := `
		UPDATE fee_claims
		SET status = $1, claim_tx = $2, completed_at = $3
		WHERE claim_id = $4
	`

	tag, err := s.pool.Exec(ctx, query, string(status), claimTx, completedAt, claimID)
	if err != nil {
		return fmt.Errorf("set fee claim result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByWallet retrieves all claims by a wallet, ordered by created_at DESC.
func (s *FeeClaimStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.FeeClaim, error) {
	query := `
		SELECT ` + feeClaimColumns + `
		FROM fee_claims
		WHERE wallet = $1
		ORDER BY created_at DESC, claim_id ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get fee claims by wallet: %w", err)
	}
	defer rows.Close()

	var claims []*domain.FeeClaim
	for rows.Next() {
		c, err := scanFeeClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee claim row: %w", err)
		}
		claims = append(claims, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee claim rows: %w", err)
	}

	return claims, nil
}

// scanFeeClaim scans a single row into a FeeClaim.
func scanFeeClaim(row pgx.Row) (*domain.FeeClaim, error) {
	var c domain.FeeClaim
	var statusStr string

	err := row.Scan(
		&c.ClaimID,
		&c.CampaignID,
		&c.Wallet,
		&c.AmountLamports,
		&statusStr,
		&c.ClaimTx,
		&c.CreatedAt,
		&c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = domain.FeeClaimStatus(statusStr)
	return &c, nil
}
