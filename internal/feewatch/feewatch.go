// Package feewatch observes trading-fee inflow to the platform escrow and
// turns it into claimable balances. The scanner walks the escrow account's
// transaction history, de-duplicates by signature, attributes inflows to
// live campaigns by mint, and accrues the creator/contributor split.
// Claims settle accrued balances with on-ledger transfers.
package feewatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/feesplit"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/storage"
)

// DefaultScanLimit bounds one scan pass over the escrow's history.
const DefaultScanLimit = 200

// AuditStore mirrors observed events into the append-only audit log.
// Mirror failures are logged, never fatal: PostgreSQL stays the source of
// truth for de-duplication.
type AuditStore interface {
	InsertBulk(ctx context.Context, events []*domain.FeeEvent) error
}

// Watcher scans escrow fee inflow and distributes it.
type Watcher struct {
	ledger            ledger.Client
	campaignStore     storage.CampaignStore
	contributionStore storage.ContributionStore
	feeEventStore     storage.FeeEventStore
	audit             AuditStore // optional

	escrow    string
	scanLimit int
	verbose   bool
}

// WatcherOptions for creating Watcher.
type WatcherOptions struct {
	Ledger            ledger.Client
	CampaignStore     storage.CampaignStore
	ContributionStore storage.ContributionStore
	FeeEventStore     storage.FeeEventStore

	// Audit is the optional ClickHouse mirror.
	Audit AuditStore

	// Escrow is the platform account receiving trading fees.
	Escrow string

	ScanLimit int // 0 means DefaultScanLimit
	Verbose   bool
}

// NewWatcher creates a new Watcher.
func NewWatcher(opts WatcherOptions) *Watcher {
	limit := opts.ScanLimit
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	return &Watcher{
		ledger:            opts.Ledger,
		campaignStore:     opts.CampaignStore,
		contributionStore: opts.ContributionStore,
		feeEventStore:     opts.FeeEventStore,
		audit:             opts.Audit,
		escrow:            opts.Escrow,
		scanLimit:         limit,
		verbose:           opts.Verbose,
	}
}

// ScanResult contains results from one scan pass.
type ScanResult struct {
	Observed      int // new fee events recorded
	Distributed   int // events attributed to a campaign and accrued
	Skipped       int // failed txs, outflows, duplicates
	TotalLamports uint64
	Errors        []string
}

// Scan walks escrow transactions newer than the last observed event,
// records positive inflows, and accrues the fee split for every inflow
// attributable to a live campaign. Each event is inserted before its
// accrual so a rescan can never double-distribute.
func (w *Watcher) Scan(ctx context.Context) (*ScanResult, error) {
	var until string
	latest, err := w.feeEventStore.GetLatest(ctx)
	if err == nil {
		until = latest.TxSignature
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load scan cursor: %w", err)
	}

	sigs, err := w.ledger.GetSignaturesForAddress(ctx, w.escrow, &ledger.SignaturesOpts{
		Until: until,
		Limit: w.scanLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list escrow signatures: %w", err)
	}

	result := &ScanResult{}
	var observed []*domain.FeeEvent

	// Signatures arrive newest-first; process oldest-first so the cursor
	// advances monotonically.
	for i := len(sigs) - 1; i >= 0; i-- {
		info := sigs[i]
		if info.Err != nil {
			result.Skipped++
			continue
		}

		tx, err := w.ledger.GetTransaction(ctx, info.Signature)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("fetch %s: %v", info.Signature, err))
			continue
		}
		if tx == nil || tx.Failed() {
			result.Skipped++
			continue
		}

		delta, ok := tx.BalanceDelta(w.escrow)
		if !ok || delta <= 0 {
			result.Skipped++
			continue
		}

		event := &domain.FeeEvent{
			TxSignature:    info.Signature,
			AmountLamports: uint64(delta),
			Slot:           tx.Slot,
			BlockTime:      tx.BlockTime,
			ObservedAt:     time.Now().UnixMilli(),
		}

		campaign := w.attribute(ctx, tx)
		if campaign != nil {
			event.Mint = *campaign.MintAddress
			event.CampaignID = campaign.CampaignID
			event.Distributed = true
		}

		if err := w.feeEventStore.Insert(ctx, event); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("record %s: %v", info.Signature, err))
			continue
		}

		result.Observed++
		result.TotalLamports += event.AmountLamports
		observed = append(observed, event)

		if campaign != nil {
			if err := w.distribute(ctx, campaign, event.AmountLamports); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("distribute %s: %v", info.Signature, err))
				continue
			}
			result.Distributed++
		}
	}

	if w.audit != nil && len(observed) > 0 {
		if err := w.audit.InsertBulk(ctx, observed); err != nil {
			log.Printf("[feewatch] audit mirror failed: %v", err)
		}
	}

	w.log("scan: %d observed (%s SOL), %d distributed, %d skipped (%d errors)",
		result.Observed, solAmount(result.TotalLamports), result.Distributed,
		result.Skipped, len(result.Errors))
	return result, nil
}

// attribute matches a transaction to a live campaign by looking for a known
// mint among its account keys.
func (w *Watcher) attribute(ctx context.Context, tx *ledger.Transaction) *domain.Campaign {
	if tx.Message == nil {
		return nil
	}
	for _, key := range tx.Message.AccountKeys {
		if key == w.escrow {
			continue
		}
		c, err := w.campaignStore.GetByMint(ctx, key)
		if err != nil {
			continue
		}
		if c.Status == domain.CampaignLive && c.MintAddress != nil {
			return c
		}
	}
	return nil
}

// distribute accrues one fee inflow's split: the creator percentage on the
// campaign, the remainder pro rata across qualifying token holders.
func (w *Watcher) distribute(ctx context.Context, campaign *domain.Campaign, amount uint64) error {
	contributions, err := w.contributionStore.GetByCampaignAndStatus(ctx, campaign.CampaignID, domain.ContributionDistributed)
	if err != nil {
		return fmt.Errorf("load holders: %w", err)
	}

	var shares []feesplit.Share
	for _, c := range contributions {
		if !c.QualifiesForFees {
			continue
		}
		shares = append(shares, feesplit.Share{
			ID:              c.ContributionID,
			PledgedLamports: c.AmountLamports,
		})
	}

	plan, err := feesplit.Distribute(amount, campaign.CreatorFeePct, shares)
	if err != nil {
		return err
	}

	if plan.CreatorLamports > 0 {
		if err := w.campaignStore.AddCreatorClaimable(ctx, campaign.CampaignID, plan.CreatorLamports); err != nil {
			return fmt.Errorf("accrue creator share: %w", err)
		}
	}
	for _, alloc := range plan.Allocations {
		if alloc.AmountLamports == 0 {
			continue
		}
		if err := w.contributionStore.AddClaimableFees(ctx, alloc.ID, alloc.AmountLamports); err != nil {
			return fmt.Errorf("accrue holder share %s: %w", alloc.ID, err)
		}
	}
	return nil
}

// solAmount renders lamports as a SOL decimal string.
func solAmount(lamports uint64) string {
	return decimal.New(int64(lamports), -9).String()
}

func (w *Watcher) log(format string, args ...interface{}) {
	if w.verbose {
		log.Printf("[feewatch] "+format, args...)
	}
}
