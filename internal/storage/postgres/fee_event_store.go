package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

// FeeEventStore implements storage.FeeEventStore using PostgreSQL.
type FeeEventStore struct {
	pool *Pool
}

// NewFeeEventStore creates a new FeeEventStore.
func NewFeeEventStore(pool *Pool) *FeeEventStore {
	return &FeeEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeeEventStore = (*FeeEventStore)(nil)

const feeEventColumns = `
	tx_signature, mint, campaign_id, amount_lamports, slot, block_time, distributed, observed_at
`

// Insert adds a fee event. Returns ErrDuplicateKey if the signature was
// already observed.
func (s *FeeEventStore) Insert(ctx context.Context, e *domain.FeeEvent) error {
	query := `
		INSERT INTO fee_events (` + feeEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		e.TxSignature,
		e.Mint,
		e.CampaignID,
		e.AmountLamports,
		e.Slot,
		e.BlockTime,
		e.Distributed,
		e.ObservedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fee event: %w", err)
	}
	return nil
}

// GetLatest returns the most recently observed event.
func (s *FeeEventStore) GetLatest(ctx context.Context) (*domain.FeeEvent, error) {
	query := `
		SELECT ` + feeEventColumns + `
		FROM fee_events
		ORDER BY observed_at DESC, tx_signature DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query)
	e, err := scanFeeEvent(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest fee event: %w", err)
	}
	return e, nil
}

// GetByCampaign retrieves all events attributed to a campaign, ordered by
// observed_at ASC.
func (s *FeeEventStore) GetByCampaign(ctx context.Context, campaignID string) ([]*domain.FeeEvent, error) {
	query := `
		SELECT ` + feeEventColumns + `
		FROM fee_events
		WHERE campaign_id = $1
		ORDER BY observed_at ASC, tx_signature ASC
	`

	rows, err := s.pool.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get fee events by campaign: %w", err)
	}
	defer rows.Close()

	var events []*domain.FeeEvent
	for rows.Next() {
		e, err := scanFeeEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee event row: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee event rows: %w", err)
	}

	return events, nil
}

// scanFeeEvent scans a single row into a FeeEvent.
func scanFeeEvent(row pgx.Row) (*domain.FeeEvent, error) {
	var e domain.FeeEvent

	err := row.Scan(
		&e.TxSignature,
		&e.Mint,
		&e.CampaignID,
		&e.AmountLamports,
		&e.Slot,
		&e.BlockTime,
		&e.Distributed,
		&e.ObservedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
