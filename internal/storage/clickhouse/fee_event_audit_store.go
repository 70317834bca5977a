package clickhouse

import (
	"context"
	"fmt"

	"prooflaunch/internal/domain"
)

// FeeEventAuditStore mirrors observed fee events into ClickHouse for audit
// queries. Append-only; the PostgreSQL fee_events table remains the source
// of truth for de-duplication.
type FeeEventAuditStore struct {
	conn *Conn
}

// NewFeeEventAuditStore creates a new FeeEventAuditStore.
func NewFeeEventAuditStore(conn *Conn) *FeeEventAuditStore {
	return &FeeEventAuditStore{conn: conn}
}

// InsertBulk appends a batch of fee events.
func (s *FeeEventAuditStore) InsertBulk(ctx context.Context, events []*domain.FeeEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO fee_events_audit (
			tx_signature, mint, campaign_id, amount_lamports,
			slot, block_time, distributed, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		var distributed uint8
		if e.Distributed {
			distributed = 1
		}
		err = batch.Append(
			e.TxSignature, e.Mint, e.CampaignID, e.AmountLamports,
			e.Slot, e.BlockTime, distributed, e.ObservedAt,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCampaign retrieves audit rows for a campaign, ordered by observed_at ASC.
func (s *FeeEventAuditStore) GetByCampaign(ctx context.Context, campaignID string) ([]*domain.FeeEvent, error) {
	query := `
		SELECT tx_signature, mint, campaign_id, amount_lamports,
			slot, block_time, distributed, observed_at
		FROM fee_events_audit
		WHERE campaign_id = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, campaignID)
	if err != nil {
		return nil, fmt.Errorf("query fee events by campaign: %w", err)
	}
	defer rows.Close()

	var events []*domain.FeeEvent
	for rows.Next() {
		var e domain.FeeEvent
		var distributed uint8

		err := rows.Scan(
			&e.TxSignature, &e.Mint, &e.CampaignID, &e.AmountLamports,
			&e.Slot, &e.BlockTime, &distributed, &e.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fee event audit row: %w", err)
		}

		e.Distributed = distributed != 0
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fee event audit rows: %w", err)
	}

	return events, nil
}

// TotalByCampaign sums observed fee inflow for a campaign.
func (s *FeeEventAuditStore) TotalByCampaign(ctx context.Context, campaignID string) (uint64, error) {
	query := `
		SELECT sum(amount_lamports) FROM fee_events_audit
		WHERE campaign_id = ?
	`

	var total uint64
	if err := s.conn.QueryRow(ctx, query, campaignID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum fee events: %w", err)
	}
	return total, nil
}
