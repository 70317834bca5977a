package feewatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/idhash"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/storage"
)

var (
	// ErrBelowMinimum is returned when the claimable balance is not worth
	// a transaction.
	ErrBelowMinimum = errors.New("claimable balance below minimum claim")

	// ErrNothingToClaim is returned when the settled balance is zero,
	// typically because a concurrent claim got there first.
	ErrNothingToClaim = errors.New("nothing to claim")
)

// Claimer settles accrued fee balances with transfers from the platform
// treasury. The settle step zeroes the balance atomically before the
// transfer; a failed transfer restores it.
type Claimer struct {
	ledger            ledger.Client
	campaignStore     storage.CampaignStore
	contributionStore storage.ContributionStore
	feeClaimStore     storage.FeeClaimStore

	treasury solana.PrivateKey
	verbose  bool
}

// ClaimerOptions for creating Claimer.
type ClaimerOptions struct {
	Ledger            ledger.Client
	CampaignStore     storage.CampaignStore
	ContributionStore storage.ContributionStore
	FeeClaimStore     storage.FeeClaimStore

	// TreasuryKey is the base58 private key of the platform treasury that
	// pays out claims.
	TreasuryKey string

	Verbose bool
}

// NewClaimer creates a new Claimer.
func NewClaimer(opts ClaimerOptions) (*Claimer, error) {
	treasury, err := solana.PrivateKeyFromBase58(opts.TreasuryKey)
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}
	return &Claimer{
		ledger:            opts.Ledger,
		campaignStore:     opts.CampaignStore,
		contributionStore: opts.ContributionStore,
		feeClaimStore:     opts.FeeClaimStore,
		treasury:          treasury,
		verbose:           opts.Verbose,
	}, nil
}

// ClaimContributorFees settles a contribution's accrued fee balance to its
// contributor wallet. The transaction fee is deducted from the payout.
func (c *Claimer) ClaimContributorFees(ctx context.Context, contributionID string) (*domain.FeeClaim, error) {
	contribution, err := c.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if contribution.ClaimableFeeLamports < domain.MinClaimLamports {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum,
			contribution.ClaimableFeeLamports, domain.MinClaimLamports)
	}

	settled, err := c.contributionStore.SettleClaim(ctx, contributionID)
	if err != nil {
		return nil, fmt.Errorf("settle claim: %w", err)
	}
	if settled == 0 {
		return nil, ErrNothingToClaim
	}

	restore := func(rctx context.Context) error {
		return c.contributionStore.AddClaimableFees(rctx, contributionID, settled)
	}
	return c.payout(ctx, &contribution.CampaignID, contribution.Contributor, settled, restore)
}

// ClaimCreatorFees settles a campaign's accrued creator balance to the
// creator wallet.
func (c *Claimer) ClaimCreatorFees(ctx context.Context, campaignID string) (*domain.FeeClaim, error) {
	campaign, err := c.campaignStore.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.CreatorClaimableLamports < domain.MinClaimLamports {
		return nil, fmt.Errorf("%w: %d < %d", ErrBelowMinimum,
			campaign.CreatorClaimableLamports, domain.MinClaimLamports)
	}

	settled, err := c.campaignStore.SettleCreatorClaim(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("settle creator claim: %w", err)
	}
	if settled == 0 {
		return nil, ErrNothingToClaim
	}

	restore := func(rctx context.Context) error {
		return c.campaignStore.AddCreatorClaimable(rctx, campaignID, settled)
	}
	return c.payout(ctx, &campaignID, campaign.Creator, settled, restore)
}

// payout records the claim and transfers the settled amount minus the
// transaction fee. A failed transfer marks the claim failed and restores
// the claimable balance.
func (c *Claimer) payout(ctx context.Context, campaignID *string, wallet string, settled uint64, restore func(context.Context) error) (*domain.FeeClaim, error) {
	// A concurrent claim can settle most of the balance between the
	// minimum check and SettleClaim; whatever is left may not cover the
	// transaction fee.
	if settled <= domain.SignatureFeeLamports {
		if rErr := restore(ctx); rErr != nil {
			return nil, fmt.Errorf("settled %d below fee and restore failed: %w", settled, rErr)
		}
		return nil, fmt.Errorf("%w: settled %d does not cover the %d lamport transaction fee",
			ErrBelowMinimum, settled, domain.SignatureFeeLamports)
	}
	net := settled - domain.SignatureFeeLamports

	nowMs := time.Now().UnixMilli()
	claim := &domain.FeeClaim{
		// Nanosecond input keeps immediate retries from colliding.
		ClaimID:        idhash.ComputeClaimID(wallet, campaignID, time.Now().UnixNano()),
		CampaignID:     campaignID,
		Wallet:         wallet,
		AmountLamports: net,
		Status:         domain.FeeClaimProcessing,
		CreatedAt:      nowMs,
	}
	if err := c.feeClaimStore.Insert(ctx, claim); err != nil {
		if rErr := restore(ctx); rErr != nil {
			return nil, fmt.Errorf("record claim failed (%v) and restore failed: %w", err, rErr)
		}
		return nil, fmt.Errorf("record claim: %w", err)
	}

	sig, err := c.transfer(ctx, wallet, net)
	if err != nil {
		completedAt := time.Now().UnixMilli()
		if sErr := c.feeClaimStore.SetResult(ctx, claim.ClaimID, domain.FeeClaimFailed, nil, completedAt); sErr != nil {
			return nil, fmt.Errorf("claim transfer failed (%v) and status update failed: %w", err, sErr)
		}
		if rErr := restore(ctx); rErr != nil {
			return nil, fmt.Errorf("claim transfer failed (%v) and restore failed: %w", err, rErr)
		}
		claim.Status = domain.FeeClaimFailed
		return claim, fmt.Errorf("claim transfer: %w", err)
	}

	completedAt := time.Now().UnixMilli()
	if err := c.feeClaimStore.SetResult(ctx, claim.ClaimID, domain.FeeClaimCompleted, &sig, completedAt); err != nil {
		return nil, fmt.Errorf("record claim result: %w", err)
	}
	claim.Status = domain.FeeClaimCompleted
	claim.ClaimTx = &sig
	claim.CompletedAt = completedAt

	if c.verbose {
		log.Printf("[feewatch] claim %s: %s SOL to %s, tx %s", claim.ClaimID, solAmount(net), wallet, sig)
	}
	return claim, nil
}

func (c *Claimer) transfer(ctx context.Context, destination string, lamports uint64) (string, error) {
	dest, err := solana.PublicKeyFromBase58(destination)
	if err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}

	blockhashStr, err := c.ledger.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}
	blockhash, err := solana.HashFromBase58(blockhashStr)
	if err != nil {
		return "", fmt.Errorf("parse blockhash: %w", err)
	}

	ix := system.NewTransferInstruction(lamports, c.treasury.PublicKey(), dest).Build()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{ix},
		blockhash,
		solana.TransactionPayer(c.treasury.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("build claim transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.treasury.PublicKey()) {
			return &c.treasury
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign claim transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize claim transaction: %w", err)
	}
	return c.ledger.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw))
}
