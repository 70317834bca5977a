// Package engine exposes the settlement operations to the surrounding
// application: campaign and contribution lifecycle, launch requests,
// sweeps, exports, and fee claims. It owns input validation, per-entity
// serialization, and admission control; the mechanics live in the wallet,
// launch, and feewatch packages.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gagliardetto/solana-go"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/feewatch"
	"prooflaunch/internal/idhash"
	"prooflaunch/internal/launch"
	"prooflaunch/internal/observability"
	"prooflaunch/internal/ratelimit"
	"prooflaunch/internal/storage"
	"prooflaunch/internal/wallet"
)

// Limits holds the per-operation admission controls, keyed by actor.
type Limits struct {
	CreateCampaign *ratelimit.Limiter
	Contribute     *ratelimit.Limiter
	Withdraw       *ratelimit.Limiter
	Launch         *ratelimit.Limiter
	Claim          *ratelimit.Limiter
}

// DefaultLimits returns the production admission windows.
func DefaultLimits() *Limits {
	return &Limits{
		CreateCampaign: ratelimit.New(3, time.Hour),
		Contribute:     ratelimit.New(5, time.Minute),
		Withdraw:       ratelimit.New(3, time.Minute),
		Launch:         ratelimit.New(2, time.Minute),
		Claim:          ratelimit.New(3, time.Minute),
	}
}

// Engine coordinates the exposed settlement operations.
type Engine struct {
	campaignStore     storage.CampaignStore
	contributionStore storage.ContributionStore

	custodian    *wallet.Custodian
	orchestrator *launch.Orchestrator
	watcher      *feewatch.Watcher
	claimer      *feewatch.Claimer

	limits *Limits

	campaignLocks     *keyedMutex
	contributionLocks *keyedMutex

	verbose bool
}

// Options for creating Engine.
type Options struct {
	CampaignStore     storage.CampaignStore
	ContributionStore storage.ContributionStore

	Custodian    *wallet.Custodian
	Orchestrator *launch.Orchestrator
	Watcher      *feewatch.Watcher
	Claimer      *feewatch.Claimer

	// Limits defaults to DefaultLimits when nil.
	Limits *Limits

	Verbose bool
}

// New creates a new Engine.
func New(opts Options) *Engine {
	limits := opts.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	return &Engine{
		campaignStore:     opts.CampaignStore,
		contributionStore: opts.ContributionStore,
		custodian:         opts.Custodian,
		orchestrator:      opts.Orchestrator,
		watcher:           opts.Watcher,
		claimer:           opts.Claimer,
		limits:            limits,
		campaignLocks:     newKeyedMutex(),
		contributionLocks: newKeyedMutex(),
		verbose:           opts.Verbose,
	}
}

// CreateCampaignRequest describes a new campaign.
type CreateCampaignRequest struct {
	Creator     string
	Name        string
	Symbol      string
	Description string
	ImageURL    string

	GoalLamports  uint64
	CreatorFeePct uint64
	DeadlineAt    int64 // Unix ms
	AutoRefund    bool
}

// CreateCampaign validates and registers a new campaign in proving status.
func (e *Engine) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (*domain.Campaign, error) {
	if _, err := solana.PublicKeyFromBase58(req.Creator); err != nil {
		return nil, validationErr("creator", "not a valid wallet address")
	}
	if req.Name == "" {
		return nil, validationErr("name", "must not be empty")
	}
	if req.Symbol == "" || len(req.Symbol) > 10 {
		return nil, validationErr("symbol", "must be 1-10 characters")
	}
	if req.GoalLamports < domain.MinGoalLamports || req.GoalLamports > domain.MaxGoalLamports {
		return nil, validationErr("goal", "must be between %d and %d lamports",
			domain.MinGoalLamports, domain.MaxGoalLamports)
	}
	if req.CreatorFeePct > domain.MaxCreatorFeePct {
		return nil, validationErr("creator_fee_pct", "must not exceed %d", domain.MaxCreatorFeePct)
	}

	nowMs := time.Now().UnixMilli()
	duration := req.DeadlineAt - nowMs
	if duration < domain.MinProvingDurationMs || duration > domain.MaxProvingDurationMs {
		return nil, validationErr("deadline", "proving duration must be between 24h and 7d")
	}

	if !e.limits.CreateCampaign.Allow(req.Creator) {
		observability.RecordRateLimited("create_campaign")
		return nil, ErrRateLimited
	}

	c := &domain.Campaign{
		CampaignID:    idhash.ComputeCampaignID(req.Creator, req.Symbol, nowMs),
		Creator:       req.Creator,
		Name:          req.Name,
		Symbol:        req.Symbol,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		GoalLamports:  req.GoalLamports,
		CreatorFeePct: req.CreatorFeePct,
		DeadlineAt:    req.DeadlineAt,
		AutoRefund:    req.AutoRefund,
		Status:        domain.CampaignProving,
		CreatedAt:     nowMs,
	}
	if err := e.campaignStore.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}

	e.log("campaign %s created by %s (goal %d)", c.CampaignID, c.Creator, c.GoalLamports)
	return c, nil
}

// CreateContributionRequest describes a new pledge.
type CreateContributionRequest struct {
	CampaignID     string
	Contributor    string
	AmountLamports uint64
}

// CreateContribution registers a pending contribution with a fresh
// dedicated credential. The contributor funds the credential's public key
// and then confirms with ConfirmDeposit; the pledge only counts toward the
// goal once its deposit verifies. A repeat request from a contributor with
// an active contribution tops up the existing one instead of creating a
// second; the pledge cap applies to the combined amount.
func (e *Engine) CreateContribution(ctx context.Context, req CreateContributionRequest) (*domain.Contribution, error) {
	if _, err := solana.PublicKeyFromBase58(req.Contributor); err != nil {
		return nil, validationErr("contributor", "not a valid wallet address")
	}
	if req.AmountLamports < domain.MinContributionLamports {
		return nil, validationErr("amount", "below minimum %d lamports", domain.MinContributionLamports)
	}

	campaign, err := e.campaignStore.GetByID(ctx, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignProving && campaign.Status != domain.CampaignFunded {
		return nil, validationErr("campaign", "not accepting contributions in status %s", campaign.Status)
	}
	nowMs := time.Now().UnixMilli()
	if campaign.Status == domain.CampaignProving && nowMs >= campaign.DeadlineAt {
		return nil, validationErr("campaign", "proving deadline has passed")
	}

	maxPledge := campaign.GoalLamports * domain.MaxContributionBps / domain.BpsDenominator
	if req.AmountLamports > maxPledge {
		return nil, validationErr("amount", "exceeds %d lamports (10%% of goal)", maxPledge)
	}

	if !e.limits.Contribute.Allow(req.Contributor) {
		observability.RecordRateLimited("contribute")
		return nil, ErrRateLimited
	}

	pairKey := req.CampaignID + "|" + req.Contributor
	e.contributionLocks.Lock(pairKey)
	defer e.contributionLocks.Unlock(pairKey)

	if existing, err := e.contributionStore.GetActive(ctx, req.CampaignID, req.Contributor); err == nil {
		return e.topUp(ctx, existing, req.AmountLamports, maxPledge)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	cred, err := e.custodian.GenerateCredential()
	if err != nil {
		return nil, fmt.Errorf("generate credential: %w", err)
	}

	c := &domain.Contribution{
		ContributionID:      idhash.ComputeContributionID(req.CampaignID, req.Contributor, cred.PublicKey),
		CampaignID:          req.CampaignID,
		Contributor:         req.Contributor,
		AmountLamports:      req.AmountLamports,
		CredentialPublicKey: cred.PublicKey,
		EncryptedSecret:     cred.EncryptedSecret,
		QualifiesForFees:    req.AmountLamports >= domain.MinQualifyingLamports,
		Status:              domain.ContributionPending,
		ContributedAt:       nowMs,
		CreatedAt:           nowMs,
	}
	if err := e.contributionStore.Insert(ctx, c); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Another process registered the pair first; fold into it.
			existing, gErr := e.contributionStore.GetActive(ctx, req.CampaignID, req.Contributor)
			if gErr != nil {
				return nil, fmt.Errorf("insert contribution: %w", err)
			}
			return e.topUp(ctx, existing, req.AmountLamports, maxPledge)
		}
		return nil, fmt.Errorf("insert contribution: %w", err)
	}

	e.log("contribution %s registered: %s pledges %d to %s, deposit to %s",
		c.ContributionID, c.Contributor, c.AmountLamports, c.CampaignID, c.CredentialPublicKey)
	return c, nil
}

// topUp folds a repeat pledge into the contributor's existing
// contribution. Funds can only be added while the pledge is pending or
// confirmed; launched or settled contributions reject further amounts.
func (e *Engine) topUp(ctx context.Context, existing *domain.Contribution, amount, maxPledge uint64) (*domain.Contribution, error) {
	combined := existing.AmountLamports + amount
	if combined > maxPledge {
		return nil, validationErr("amount", "combined pledge %d exceeds %d lamports (10%% of goal)", combined, maxPledge)
	}

	qualifies := combined >= domain.MinQualifyingLamports
	if err := e.contributionStore.TopUpAmount(ctx, existing.ContributionID, amount, qualifies); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, validationErr("contribution", "cannot top up in status %s", existing.Status)
		}
		return nil, fmt.Errorf("top up contribution: %w", err)
	}

	e.log("contribution %s topped up: %s adds %d (pledge now %d), deposit to %s",
		existing.ContributionID, existing.Contributor, amount, combined, existing.CredentialPublicKey)
	return e.contributionStore.GetByID(ctx, existing.ContributionID)
}

// ConfirmDeposit verifies the contributor's deposit transaction and
// confirms the contribution. A top-up confirms the unverified remainder
// of the pledge with a fresh deposit. An unverified deposit leaves the
// contribution as it was; the contributor may retry with the right
// reference.
func (e *Engine) ConfirmDeposit(ctx context.Context, contributionID, depositTx string) (*domain.Contribution, error) {
	if depositTx == "" {
		return nil, validationErr("deposit_tx", "must not be empty")
	}

	e.contributionLocks.Lock(contributionID)
	defer e.contributionLocks.Unlock(contributionID)

	c, err := e.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.ContributionPending && c.Status != domain.ContributionConfirmed {
		return nil, fmt.Errorf("confirm deposit: %w", storage.ErrConflict)
	}
	if c.AmountLamports <= c.VerifiedLamports {
		return nil, fmt.Errorf("confirm deposit: %w", storage.ErrConflict)
	}
	if c.DepositTx != "" && depositTx == c.DepositTx {
		return nil, validationErr("deposit_tx", "already verified")
	}
	delta := c.AmountLamports - c.VerifiedLamports

	campaign, err := e.campaignStore.GetByID(ctx, c.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignProving && campaign.Status != domain.CampaignFunded {
		return nil, validationErr("campaign", "no longer accepting contributions in status %s", campaign.Status)
	}

	err = e.custodian.VerifyDeposit(ctx, depositTx, c.CredentialPublicKey, delta, c.Contributor)
	if err != nil {
		if errors.Is(err, wallet.ErrUnverifiedDeposit) {
			observability.RecordDepositUnverified()
		}
		return nil, err
	}

	if err := e.contributionStore.SetDepositVerified(ctx, contributionID, depositTx, c.AmountLamports); err != nil {
		return nil, fmt.Errorf("record verified deposit: %w", err)
	}
	if err := e.campaignStore.AddRaised(ctx, c.CampaignID, int64(delta)); err != nil {
		return nil, fmt.Errorf("update raised total: %w", err)
	}
	observability.RecordContributionCreated()

	if _, err := e.orchestrator.CheckGoal(ctx, c.CampaignID); err != nil {
		// The periodic sweep re-checks; don't fail the contribution.
		log.Printf("[engine] goal check for %s failed: %v", c.CampaignID, err)
	}

	return e.contributionStore.GetByID(ctx, contributionID)
}

// WithdrawalResult contains the outcome of an early withdrawal.
type WithdrawalResult struct {
	AmountSent uint64 // balance minus withdrawal fee and overhead
	RefundTx   string
}

// WithdrawContribution exits a contribution early during proving. The
// standard withdrawal fee applies; deadline refunds are the fee-free path.
// Idempotent: a settled contribution reports ErrAlreadySettled.
func (e *Engine) WithdrawContribution(ctx context.Context, contributionID string) (*WithdrawalResult, error) {
	e.contributionLocks.Lock(contributionID)
	defer e.contributionLocks.Unlock(contributionID)

	c, err := e.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Status.Settled() {
		return nil, ErrAlreadySettled
	}
	if c.Status != domain.ContributionConfirmed {
		return nil, validationErr("contribution", "cannot withdraw in status %s", c.Status)
	}

	campaign, err := e.campaignStore.GetByID(ctx, c.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignProving {
		return nil, validationErr("campaign", "withdrawals are only accepted while proving")
	}

	if !e.limits.Withdraw.Allow(c.Contributor) {
		observability.RecordRateLimited("withdraw")
		return nil, ErrRateLimited
	}

	// Claim the status before moving funds; roll back if the transfer
	// never made it out.
	if err := e.contributionStore.TransitionStatus(ctx, contributionID,
		domain.ContributionConfirmed, domain.ContributionWithdrawn); err != nil {
		return nil, err
	}

	sent, sig, err := e.custodian.Refund(ctx, c.EncryptedSecret, c.Contributor, domain.WithdrawalFeeBps)
	if err != nil {
		if rbErr := e.contributionStore.TransitionStatus(ctx, contributionID,
			domain.ContributionWithdrawn, domain.ContributionConfirmed); rbErr != nil {
			return nil, fmt.Errorf("withdrawal failed (%v) and rollback failed: %w", err, rbErr)
		}
		return nil, err
	}

	if err := e.contributionStore.SetRefundTx(ctx, contributionID, sig); err != nil {
		return nil, fmt.Errorf("record refund tx: %w", err)
	}
	if err := e.campaignStore.AddRaised(ctx, c.CampaignID, -int64(c.VerifiedLamports)); err != nil {
		return nil, fmt.Errorf("update raised total: %w", err)
	}
	observability.RecordWithdrawal()

	e.log("contribution %s withdrawn: %d sent to %s", contributionID, sent, c.Contributor)
	return &WithdrawalResult{AmountSent: sent, RefundTx: sig}, nil
}

// RequestLaunch starts the launch sequence for a funded campaign. Only the
// campaign creator may request it.
func (e *Engine) RequestLaunch(ctx context.Context, campaignID, requester string) (*launch.Result, error) {
	campaign, err := e.campaignStore.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if requester != campaign.Creator {
		return nil, validationErr("requester", "only the campaign creator can request launch")
	}

	if !e.limits.Launch.Allow(requester + "|" + campaignID) {
		observability.RecordRateLimited("launch")
		return nil, ErrRateLimited
	}

	result, err := e.orchestrator.Launch(ctx, campaignID)
	if err != nil {
		if errors.Is(err, launch.ErrTokenCreation) || errors.Is(err, launch.ErrNoPurchases) {
			observability.RecordLaunchReverted()
		}
		return result, err
	}

	observability.RecordLaunch(result.PurchasesSucceeded, result.PurchasesAttempted-result.PurchasesSucceeded)
	return result, nil
}

// SweepContribution moves a distributed contribution's token balance out of
// custody, either selling it or transferring raw tokens to destination.
func (e *Engine) SweepContribution(ctx context.Context, contributionID, destination string, mode wallet.SweepMode) (*wallet.SweepResult, error) {
	e.contributionLocks.Lock(contributionID)
	defer e.contributionLocks.Unlock(contributionID)

	c, err := e.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if c.Swept {
		return nil, ErrAlreadySwept
	}
	if c.Status != domain.ContributionDistributed {
		return nil, validationErr("contribution", "cannot sweep in status %s", c.Status)
	}

	campaign, err := e.campaignStore.GetByID(ctx, c.CampaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != domain.CampaignLive || campaign.MintAddress == nil {
		return nil, validationErr("campaign", "not live")
	}

	var result wallet.SweepResult
	switch mode {
	case wallet.SweepSell:
		result, err = e.orchestrator.SweepSell(ctx, c, *campaign.MintAddress, destination)
	case wallet.SweepTransfer:
		result, err = e.custodian.SweepTransfer(ctx, c.EncryptedSecret, *campaign.MintAddress, destination)
	default:
		return nil, validationErr("mode", "must be sell or transfer")
	}
	if err != nil {
		return nil, err
	}

	if err := e.contributionStore.SetSweepOutcome(ctx, contributionID, string(result.Mode), result.Signature); err != nil {
		return nil, fmt.Errorf("record sweep outcome: %w", err)
	}

	e.log("contribution %s swept (%s): %d tokens to %s", contributionID, result.Mode, result.Tokens, destination)
	return &result, nil
}

// ExportContributionSecret returns the contribution's credential secret in
// wallet-importable form. The wallet layer enforces the live-only timing
// gate; identity authorization is the caller's concern.
func (e *Engine) ExportContributionSecret(ctx context.Context, contributionID string) (string, error) {
	c, err := e.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return "", err
	}
	campaign, err := e.campaignStore.GetByID(ctx, c.CampaignID)
	if err != nil {
		return "", err
	}
	return e.custodian.ExportSecret(c.EncryptedSecret, campaign.Status)
}

// ProcessDeadlineSweep runs one pass of goal promotion and deadline
// failure over all proving campaigns.
func (e *Engine) ProcessDeadlineSweep(ctx context.Context) (*launch.ProcessResult, error) {
	result, err := e.orchestrator.ProcessCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	m := observability.DefaultMetrics
	m.CampaignsFailed.Add(float64(result.Failed))
	m.RefundsIssued.Add(float64(result.Refunded))
	m.LastSuccessfulSweep.SetToCurrentTime()
	return result, nil
}

// DistributeFees runs one fee-observation pass: scans escrow inflow and
// accrues the creator/contributor split for everything attributable.
func (e *Engine) DistributeFees(ctx context.Context) (*feewatch.ScanResult, error) {
	result, err := e.watcher.Scan(ctx)
	if err != nil {
		return nil, err
	}

	m := observability.DefaultMetrics
	m.FeeEventsObserved.Add(float64(result.Observed))
	m.FeeLamportsObserved.Add(float64(result.TotalLamports))
	m.LastSuccessfulFeeScan.SetToCurrentTime()
	return result, nil
}

// ClaimContributorFees settles a contribution's accrued fee balance.
func (e *Engine) ClaimContributorFees(ctx context.Context, contributionID string) (*domain.FeeClaim, error) {
	e.contributionLocks.Lock(contributionID)
	defer e.contributionLocks.Unlock(contributionID)

	c, err := e.contributionStore.GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}
	if !e.limits.Claim.Allow(c.Contributor) {
		observability.RecordRateLimited("claim")
		return nil, ErrRateLimited
	}

	claim, err := e.claimer.ClaimContributorFees(ctx, contributionID)
	if claim != nil {
		observability.DefaultMetrics.FeeClaimsTotal.WithLabelValues(string(claim.Status)).Inc()
	}
	return claim, err
}

// ClaimCreatorFees settles a campaign's accrued creator fee balance.
func (e *Engine) ClaimCreatorFees(ctx context.Context, campaignID string) (*domain.FeeClaim, error) {
	e.campaignLocks.Lock(campaignID)
	defer e.campaignLocks.Unlock(campaignID)

	campaign, err := e.campaignStore.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !e.limits.Claim.Allow(campaign.Creator) {
		observability.RecordRateLimited("claim")
		return nil, ErrRateLimited
	}

	claim, err := e.claimer.ClaimCreatorFees(ctx, campaignID)
	if claim != nil {
		observability.DefaultMetrics.FeeClaimsTotal.WithLabelValues(string(claim.Status)).Inc()
	}
	return claim, err
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.verbose {
		log.Printf("[engine] "+format, args...)
	}
}
