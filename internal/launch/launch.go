// Package launch turns funded campaigns into live tradeable assets.
// It owns the campaign state machine: goal promotion, the launch sequence
// (token creation, curve seeding, ordered purchases), and the deadline
// sweep with automatic refunds.
package launch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"prooflaunch/internal/curve"
	"prooflaunch/internal/domain"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/storage"
	"prooflaunch/internal/wallet"
)

var (
	// ErrTokenCreation is returned when asset creation fails; the campaign
	// is reverted to funded so launch can be retried.
	ErrTokenCreation = errors.New("token creation failed")

	// ErrNoPurchases is returned when every launch purchase failed; the
	// campaign is reverted and contributions stay confirmed for retry.
	ErrNoPurchases = errors.New("no launch purchase succeeded")
)

// DefaultStaggerDelay spaces purchase submissions to respect ledger rate
// limits. Confirmation order is not awaited between submissions.
const DefaultStaggerDelay = 500 * time.Millisecond

// SignatureWatcher delivers one-shot confirmation results for submitted
// transaction signatures.
type SignatureWatcher interface {
	WatchSignature(ctx context.Context, signature string) (<-chan ledger.SignatureResult, error)
}

// Orchestrator coordinates campaign lifecycle transitions.
// Launch flow: lock → create token → seed curve → ordered purchases → live.
type Orchestrator struct {
	campaignStore     storage.CampaignStore
	contributionStore storage.ContributionStore
	curveStateStore   storage.CurveStateStore

	custodian     *wallet.Custodian
	creator       TokenCreator
	ledger        ledger.Client
	confirmations SignatureWatcher

	escrow       string
	staggerDelay time.Duration
	verbose      bool
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	CampaignStore     storage.CampaignStore
	ContributionStore storage.ContributionStore
	CurveStateStore   storage.CurveStateStore

	// Required collaborators
	Custodian *wallet.Custodian
	Creator   TokenCreator
	Ledger    ledger.Client

	// Confirmations, when set, logs the on-ledger outcome of submitted
	// purchases. Purchase ordering never depends on it.
	Confirmations SignatureWatcher

	// Escrow receives purchase funds.
	Escrow string

	// Options
	StaggerDelay time.Duration // 0 means DefaultStaggerDelay
	Verbose      bool
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	stagger := opts.StaggerDelay
	if stagger <= 0 {
		stagger = DefaultStaggerDelay
	}
	return &Orchestrator{
		campaignStore:     opts.CampaignStore,
		contributionStore: opts.ContributionStore,
		curveStateStore:   opts.CurveStateStore,
		custodian:         opts.Custodian,
		creator:           opts.Creator,
		ledger:            opts.Ledger,
		confirmations:     opts.Confirmations,
		escrow:            opts.Escrow,
		staggerDelay:      stagger,
		verbose:           opts.Verbose,
	}
}

// CheckGoal promotes a proving campaign to funded once verified
// contributions cover the goal. Safe to call concurrently; a lost
// transition race reads as "someone else promoted it".
func (o *Orchestrator) CheckGoal(ctx context.Context, campaignID string) (bool, error) {
	c, err := o.campaignStore.GetByID(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if c.Status != domain.CampaignProving || !c.GoalReached() {
		return false, nil
	}

	err = o.campaignStore.TransitionStatus(ctx, campaignID, domain.CampaignProving, domain.CampaignFunded)
	if errors.Is(err, storage.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	o.log("campaign %s reached goal, promoted to funded", campaignID)
	return true, nil
}

// Result contains the outcome of a launch attempt.
type Result struct {
	Mint     string
	TradeURL string

	PurchasesAttempted int
	PurchasesSucceeded int

	// Errors holds per-contribution purchase failures. A failed purchase
	// leaves its contribution confirmed for retry; it never aborts the batch.
	Errors []string
}

// Launch executes the launch sequence for a funded campaign.
//
// The funded → launching transition is the lock against concurrent
// launches and further contributions. Token creation failure reverts to
// funded with contributions untouched. Purchases are submitted strictly
// in contribution-time order with a stagger delay; the campaign goes live
// if the token exists and at least one purchase succeeded.
func (o *Orchestrator) Launch(ctx context.Context, campaignID string) (*Result, error) {
	if err := o.campaignStore.TransitionStatus(ctx, campaignID, domain.CampaignFunded, domain.CampaignLaunching); err != nil {
		return nil, fmt.Errorf("lock campaign for launch: %w", err)
	}

	c, err := o.campaignStore.GetByID(ctx, campaignID)
	if err != nil {
		o.revert(ctx, campaignID)
		return nil, fmt.Errorf("load campaign: %w", err)
	}

	o.log("launching campaign %s (%s)", c.CampaignID, c.Symbol)

	mint, tradeURL, err := o.creator.CreateToken(ctx, c)
	if err != nil {
		o.revert(ctx, campaignID)
		return nil, fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}
	o.log("  created mint %s", mint)

	nowMs := time.Now().UnixMilli()
	state := curve.NewState(campaignID, mint, nowMs)
	if err := o.seedCurve(ctx, state); err != nil {
		o.revert(ctx, campaignID)
		return nil, fmt.Errorf("seed curve state: %w", err)
	}

	contributions, err := o.contributionStore.GetByCampaignAndStatus(ctx, campaignID, domain.ContributionConfirmed)
	if err != nil {
		o.revert(ctx, campaignID)
		return nil, fmt.Errorf("load contributions: %w", err)
	}

	result := &Result{Mint: mint, TradeURL: tradeURL}
	for i, contribution := range contributions {
		if i > 0 {
			if err := o.stagger(ctx); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("stagger: %v", err))
				break
			}
		}

		result.PurchasesAttempted++
		tokens, err := o.purchase(ctx, state, contribution)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("purchase %s: %v", contribution.ContributionID, err))
			o.log("  purchase %s failed: %v", contribution.ContributionID, err)
			continue
		}
		result.PurchasesSucceeded++
		o.log("  purchase %s: %d tokens", contribution.ContributionID, tokens)
	}

	if result.PurchasesSucceeded == 0 {
		o.revert(ctx, campaignID)
		return result, fmt.Errorf("%w (%d attempted)", ErrNoPurchases, result.PurchasesAttempted)
	}

	if err := o.campaignStore.SetLaunchArtifacts(ctx, campaignID, mint, tradeURL, time.Now().UnixMilli()); err != nil {
		return result, fmt.Errorf("record launch artifacts: %w", err)
	}
	if err := o.campaignStore.TransitionStatus(ctx, campaignID, domain.CampaignLaunching, domain.CampaignLive); err != nil {
		return result, fmt.Errorf("mark campaign live: %w", err)
	}

	o.log("campaign %s live: %d/%d purchases succeeded",
		campaignID, result.PurchasesSucceeded, result.PurchasesAttempted)
	return result, nil
}

// purchase quotes and submits one contribution's launch buy, then records
// the outcome. Quote and reserve application happen in submission order so
// earlier contributors price against the cheaper curve.
func (o *Orchestrator) purchase(ctx context.Context, state *domain.CurveState, contribution *domain.Contribution) (uint64, error) {
	balance, err := o.ledger.GetBalance(ctx, contribution.CredentialPublicKey)
	if err != nil {
		return 0, fmt.Errorf("read credential balance: %w", err)
	}

	spend := wallet.BuyableBalance(balance)
	if spend == 0 {
		return 0, fmt.Errorf("balance %d below purchase reserve", balance)
	}

	quote, err := curve.QuoteBuy(curve.SnapshotOf(state), spend)
	if err != nil {
		return 0, fmt.Errorf("quote: %w", err)
	}
	if quote.TokensOut == 0 {
		return 0, fmt.Errorf("quote for %d lamports yields no tokens", spend)
	}

	sig, err := o.custodian.Purchase(ctx, contribution.EncryptedSecret, o.escrow, spend)
	if err != nil {
		return 0, err
	}
	o.watchConfirmation(sig, contribution.ContributionID)

	curve.ApplyBuy(state, quote)
	state.UpdatedAt = time.Now().UnixMilli()
	if err := o.curveStateStore.Update(ctx, state); err != nil {
		return 0, fmt.Errorf("persist curve state: %w", err)
	}

	if err := o.contributionStore.SetPurchaseOutcome(ctx, contribution.ContributionID,
		quote.TokensOut, &sig, domain.ContributionDistributed); err != nil {
		return 0, fmt.Errorf("record purchase outcome: %w", err)
	}
	return quote.TokensOut, nil
}

// SweepSell sells a distributed contribution's full token balance back
// into the curve: the tokens go to the platform escrow, the quoted
// proceeds go to the destination wallet, and the reserve deltas are
// persisted. Quote and application bracket the submission the same way
// launch purchases do.
func (o *Orchestrator) SweepSell(ctx context.Context, contribution *domain.Contribution, mint, destination string) (wallet.SweepResult, error) {
	state, err := o.curveStateStore.GetByCampaign(ctx, contribution.CampaignID)
	if err != nil {
		return wallet.SweepResult{}, fmt.Errorf("load curve state: %w", err)
	}

	tokens, err := o.custodian.HoldingBalance(ctx, contribution.CredentialPublicKey, mint)
	if err != nil {
		return wallet.SweepResult{}, fmt.Errorf("read token balance: %w", err)
	}
	if tokens == 0 {
		return wallet.SweepResult{}, wallet.ErrNothingToSweep
	}

	quote, err := curve.QuoteSell(curve.SnapshotOf(state), tokens)
	if err != nil {
		return wallet.SweepResult{}, fmt.Errorf("quote sale: %w", err)
	}
	if quote.FundingOut == 0 {
		return wallet.SweepResult{}, fmt.Errorf("sale of %d tokens yields no proceeds", tokens)
	}

	result, err := o.custodian.SweepSell(ctx, contribution.EncryptedSecret, mint, destination, tokens, quote.FundingOut)
	if err != nil {
		return wallet.SweepResult{}, err
	}

	curve.ApplySell(state, tokens, quote)
	state.UpdatedAt = time.Now().UnixMilli()
	if err := o.curveStateStore.Update(ctx, state); err != nil {
		return result, fmt.Errorf("persist curve state: %w", err)
	}

	o.log("sold %d tokens for contribution %s: %d lamports to %s",
		tokens, contribution.ContributionID, quote.FundingOut, destination)
	return result, nil
}

// watchConfirmation logs the eventual on-ledger outcome of a submitted
// purchase. Runs in the background; the launch flow never waits on it.
func (o *Orchestrator) watchConfirmation(sig, contributionID string) {
	if o.confirmations == nil {
		return
	}
	ch, err := o.confirmations.WatchSignature(context.Background(), sig)
	if err != nil {
		log.Printf("[launch] watch purchase %s (%s): %v", sig, contributionID, err)
		return
	}
	go func() {
		res, ok := <-ch
		if ok && res.Err != nil {
			log.Printf("[launch] purchase %s for %s failed on-ledger: %v", sig, contributionID, res.Err)
		}
	}()
}

// seedCurve inserts the fresh curve state, overwriting a leftover from a
// previously reverted launch attempt.
func (o *Orchestrator) seedCurve(ctx context.Context, state *domain.CurveState) error {
	err := o.curveStateStore.Insert(ctx, state)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return o.curveStateStore.Update(ctx, state)
	}
	return err
}

func (o *Orchestrator) revert(ctx context.Context, campaignID string) {
	if err := o.campaignStore.TransitionStatus(ctx, campaignID, domain.CampaignLaunching, domain.CampaignFunded); err != nil {
		log.Printf("[launch] revert campaign %s to funded failed: %v", campaignID, err)
	} else {
		o.log("campaign %s reverted to funded", campaignID)
	}
}

func (o *Orchestrator) stagger(ctx context.Context) error {
	timer := time.NewTimer(o.staggerDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessResult contains results from a campaign sweep.
type ProcessResult struct {
	Promoted int // proving → funded (goal reached)
	Failed   int // proving → failed (deadline passed)
	Refunded int // contributions auto-refunded
	Errors   []string
}

// ProcessCampaigns sweeps all proving campaigns: promotes the ones that
// reached their goal and fails the ones past deadline. A failing campaign
// with auto-refund set has every confirmed contribution refunded in full
// (no withdrawal fee) before it is marked failed; refund failures leave
// the campaign proving so the next sweep retries them.
func (o *Orchestrator) ProcessCampaigns(ctx context.Context) (*ProcessResult, error) {
	campaigns, err := o.campaignStore.GetByStatus(ctx, domain.CampaignProving)
	if err != nil {
		return nil, fmt.Errorf("load proving campaigns: %w", err)
	}

	result := &ProcessResult{}
	nowMs := time.Now().UnixMilli()

	for _, c := range campaigns {
		switch {
		case c.GoalReached():
			promoted, err := o.CheckGoal(ctx, c.CampaignID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("promote %s: %v", c.CampaignID, err))
				continue
			}
			if promoted {
				result.Promoted++
			}

		case nowMs >= c.DeadlineAt:
			refunded, errs := o.failCampaign(ctx, c)
			result.Refunded += refunded
			result.Errors = append(result.Errors, errs...)
			if len(errs) == 0 {
				result.Failed++
			}
		}
	}

	o.log("sweep: %d promoted, %d failed, %d refunded (%d errors)",
		result.Promoted, result.Failed, result.Refunded, len(result.Errors))
	return result, nil
}

// failCampaign refunds confirmed contributions (when auto-refund is set)
// and marks the campaign failed. The campaign stays proving if any refund
// failed, so nothing is stranded behind a terminal status.
func (o *Orchestrator) failCampaign(ctx context.Context, c *domain.Campaign) (int, []string) {
	var refunded int
	var errs []string

	if c.AutoRefund {
		contributions, err := o.contributionStore.GetByCampaignAndStatus(ctx, c.CampaignID, domain.ContributionConfirmed)
		if err != nil {
			return 0, []string{fmt.Sprintf("load contributions %s: %v", c.CampaignID, err)}
		}
		for _, contribution := range contributions {
			if err := o.refund(ctx, contribution); err != nil {
				errs = append(errs, fmt.Sprintf("refund %s: %v", contribution.ContributionID, err))
				continue
			}
			refunded++
		}
	}

	if len(errs) > 0 {
		return refunded, errs
	}

	err := o.campaignStore.TransitionStatus(ctx, c.CampaignID, domain.CampaignProving, domain.CampaignFailed)
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		errs = append(errs, fmt.Sprintf("fail %s: %v", c.CampaignID, err))
	}
	if err == nil {
		o.log("campaign %s failed at deadline (%d refunded)", c.CampaignID, refunded)
	}
	return refunded, errs
}

// refund returns one contribution's full balance to its contributor. The
// status transition claims the contribution before the transfer; a send
// failure rolls the claim back so a later sweep retries.
func (o *Orchestrator) refund(ctx context.Context, contribution *domain.Contribution) error {
	err := o.contributionStore.TransitionStatus(ctx, contribution.ContributionID,
		domain.ContributionConfirmed, domain.ContributionRefunded)
	if errors.Is(err, storage.ErrConflict) {
		// Another sweep got here first.
		return nil
	}
	if err != nil {
		return err
	}

	_, sig, err := o.custodian.Refund(ctx, contribution.EncryptedSecret, contribution.Contributor, 0)
	if err != nil {
		if rbErr := o.contributionStore.TransitionStatus(ctx, contribution.ContributionID,
			domain.ContributionRefunded, domain.ContributionConfirmed); rbErr != nil {
			return fmt.Errorf("refund failed (%v) and rollback failed: %w", err, rbErr)
		}
		return err
	}

	return o.contributionStore.SetRefundTx(ctx, contribution.ContributionID, sig)
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[launch] "+format, args...)
	}
}
