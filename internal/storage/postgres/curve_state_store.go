package postgres

import (
	"context"
	"fmt"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// CurveStateStore implements storage.CurveStateStore using PostgreSQL.
type CurveStateStore struct {
	pool *Pool
}

// NewCurveStateStore creates a new CurveStateStore.
func NewCurveStateStore(pool *Pool) *CurveStateStore {
	return &CurveStateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CurveStateStore = (*CurveStateStore)(nil)

// Insert adds the curve state for a launched campaign.
func (s *CurveStateStore) Insert(ctx context.Context, st *domain.CurveState) error {
	query := `
		INSERT INTO curve_states (
			campaign_id, mint,
			virtual_sol_reserves, virtual_token_reserves,
			real_sol_reserves, real_token_reserves,
			tokens_sold, total_volume,
			completion_threshold, complete, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
		st.CampaignID,
		st.Mint,
		st.VirtualSolReserves,
		st.VirtualTokenReserves,
		st.RealSolReserves,
		st.RealTokenReserves,
		st.TokensSold,
		st.TotalVolume,
		st.CompletionThreshold,
		st.Complete,
		st.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert curve state: %w", err)
	}
	return nil
}

// GetByCampaign retrieves the curve state. Returns ErrNotFound if not exists.
func (s *CurveStateStore) GetByCampaign(ctx context.Context, campaignID string) (*domain.CurveState, error) {
	query := `
		SELECT campaign_id, mint,
			virtual_sol_reserves, virtual_token_reserves,
			real_sol_reserves, real_token_reserves,
			tokens_sold, total_volume,
			completion_threshold, complete, updated_at
		FROM curve_states
		WHERE campaign_id = $1
	`

	var st domain.CurveState
	err := s.pool.QueryRow(ctx, query, campaignID).Scan(
		&st.CampaignID,
		&st.Mint,
		&st.VirtualSolReserves,
		&st.VirtualTokenReserves,
		&st.RealSolReserves,
		&st.RealTokenReserves,
		&st.TokensSold,
		&st.TotalVolume,
		&st.CompletionThreshold,
		&st.Complete,
		&st.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get curve state: %w", err)
	}
	return &st, nil
}

// Update persists mutated reserves.
func (s *CurveStateStore) Update(ctx context.Context, st *domain.CurveState) error {
	query := `
		UPDATE curve_states
		SET virtual_sol_reserves = $1, virtual_token_reserves = $2,
		    real_sol_reserves = $3, real_token_reserves = $4,
		    tokens_sold = $5, total_volume = $6,
		    complete = $7, updated_at = $8
		WHERE campaign_id = $9
	`

	tag, err := s.pool.Exec(ctx, query,
		st.VirtualSolReserves,
		st.VirtualTokenReserves,
		st.RealSolReserves,
		st.RealTokenReserves,
		st.TokensSold,
		st.TotalVolume,
		st.Complete,
		st.UpdatedAt,
		st.CampaignID,
	)
	if err != nil {
		return fmt.Errorf("update curve state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
