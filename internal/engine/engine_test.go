package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/feewatch"
	"prooflaunch/internal/launch"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/ledger/stub"
	"prooflaunch/internal/ratelimit"
	"prooflaunch/internal/storage/memory"
	"prooflaunch/internal/wallet"
)

type testCreator struct {
	err error
}

func (c *testCreator) CreateToken(_ context.Context, _ *domain.Campaign) (string, string, error) {
	if c.err != nil {
		return "", "", c.err
	}
	mint := solana.NewWallet().PublicKey().String()
	return mint, "https://trade.example/" + mint, nil
}

type fixture struct {
	campaigns     *memory.CampaignStore
	contributions *memory.ContributionStore
	curves        *memory.CurveStateStore
	ledger        *stub.Client
	custodian     *wallet.Custodian
	escrow        solana.PrivateKey
	engine        *Engine
}

// looseLimits keeps admission control out of the way for tests that are
// not about it.
func looseLimits() *Limits {
	return &Limits{
		CreateCampaign: ratelimit.New(1000, time.Hour),
		Contribute:     ratelimit.New(1000, time.Hour),
		Withdraw:       ratelimit.New(1000, time.Hour),
		Launch:         ratelimit.New(1000, time.Hour),
		Claim:          ratelimit.New(1000, time.Hour),
	}
}

func newFixture(t *testing.T, limits *Limits) *fixture {
	t.Helper()

	lc := stub.New()
	vault, err := wallet.NewVault(hex.EncodeToString(make([]byte, 32)))
	if err != nil {
		t.Fatal(err)
	}
	escrowKey := solana.NewWallet().PrivateKey
	custodian, err := wallet.New(wallet.Options{
		Ledger:            lc,
		Vault:             vault,
		PlatformCustodian: solana.NewWallet().PublicKey().String(),
		EscrowKey:         escrowKey.String(),
		DepositRetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	campaigns := memory.NewCampaignStore()
	contributions := memory.NewContributionStore()
	curves := memory.NewCurveStateStore()
	feeEvents := memory.NewFeeEventStore()
	feeClaims := memory.NewFeeClaimStore()

	escrow := escrowKey.PublicKey().String()
	orch := launch.New(launch.Options{
		CampaignStore:     campaigns,
		ContributionStore: contributions,
		CurveStateStore:   curves,
		Custodian:         custodian,
		Creator:           &testCreator{},
		Ledger:            lc,
		Escrow:            escrow,
		StaggerDelay:      time.Millisecond,
	})
	watcher := feewatch.NewWatcher(feewatch.WatcherOptions{
		Ledger:            lc,
		CampaignStore:     campaigns,
		ContributionStore: contributions,
		FeeEventStore:     feeEvents,
		Escrow:            escrow,
	})
	claimer, err := feewatch.NewClaimer(feewatch.ClaimerOptions{
		Ledger:            lc,
		CampaignStore:     campaigns,
		ContributionStore: contributions,
		FeeClaimStore:     feeClaims,
		TreasuryKey:       solana.NewWallet().PrivateKey.String(),
	})
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		campaigns:     campaigns,
		contributions: contributions,
		curves:        curves,
		ledger:        lc,
		custodian:     custodian,
		escrow:        escrowKey,
	}
	f.engine = New(Options{
		CampaignStore:     campaigns,
		ContributionStore: contributions,
		Custodian:         custodian,
		Orchestrator:      orch,
		Watcher:           watcher,
		Claimer:           claimer,
		Limits:            limits,
	})
	return f
}

func validCampaignRequest() CreateCampaignRequest {
	return CreateCampaignRequest{
		Creator:       solana.NewWallet().PublicKey().String(),
		Name:          "Test Asset",
		Symbol:        "TST",
		GoalLamports:  20 * domain.LamportsPerSol,
		CreatorFeePct: 5,
		DeadlineAt:    time.Now().Add(48 * time.Hour).UnixMilli(),
		AutoRefund:    true,
	}
}

// insertCampaign bypasses CreateCampaign to set up arbitrary state.
func (f *fixture) insertCampaign(t *testing.T, id string, status domain.CampaignStatus, raised, goal uint64) *domain.Campaign {
	t.Helper()
	c := &domain.Campaign{
		CampaignID:     id,
		Creator:        solana.NewWallet().PublicKey().String(),
		Name:           "Test Asset",
		Symbol:         "TST",
		GoalLamports:   goal,
		RaisedLamports: raised,
		CreatorFeePct:  5,
		DeadlineAt:     time.Now().Add(48 * time.Hour).UnixMilli(),
		AutoRefund:     true,
		Status:         status,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if err := f.campaigns.Insert(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	return c
}

// registerDeposit makes the contribution's deposit transaction visible on
// the stub ledger.
func (f *fixture) registerDeposit(c *domain.Contribution, txRef string, amount uint64) {
	f.ledger.AddTransaction(&ledger.Transaction{
		Signature: txRef,
		Slot:      100,
		BlockTime: 1_700_000_000,
		Meta: &ledger.TransactionMeta{
			Fee:          5000,
			PreBalances:  []uint64{10 * domain.LamportsPerSol, 0},
			PostBalances: []uint64{10*domain.LamportsPerSol - amount - 5000, amount},
		},
		Message: &ledger.TransactionMessage{
			AccountKeys: []string{c.Contributor, c.CredentialPublicKey},
		},
	})
	f.ledger.SetBalance(c.CredentialPublicKey, amount)
}

// seedTokenAccount registers an SPL token account for owner/mint in the
// stub ledger.
func (f *fixture) seedTokenAccount(t *testing.T, owner, mint string, amount uint64) {
	t.Helper()
	ownerPub := solana.MustPublicKeyFromBase58(owner)
	mintPub := solana.MustPublicKeyFromBase58(mint)
	ata, _, err := solana.FindAssociatedTokenAddress(ownerPub, mintPub)
	if err != nil {
		t.Fatalf("derive token account: %v", err)
	}

	var buf bytes.Buffer
	acc := token.Account{Mint: mintPub, Owner: ownerPub, Amount: amount, State: token.Initialized}
	if err := acc.MarshalWithEncoder(bin.NewBinEncoder(&buf)); err != nil {
		t.Fatalf("marshal token account: %v", err)
	}
	f.ledger.Accounts[ata.String()] = &ledger.AccountInfo{
		Lamports: domain.TokenAccountRentLamports,
		Owner:    token.ProgramID.String(),
		Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
	}
}

func TestCreateCampaign_Validation(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateCampaignRequest)
	}{
		{"bad creator", func(r *CreateCampaignRequest) { r.Creator = "garbage" }},
		{"empty name", func(r *CreateCampaignRequest) { r.Name = "" }},
		{"long symbol", func(r *CreateCampaignRequest) { r.Symbol = "WAYTOOLONGSYM" }},
		{"goal too small", func(r *CreateCampaignRequest) { r.GoalLamports = 19 * domain.LamportsPerSol }},
		{"goal too large", func(r *CreateCampaignRequest) { r.GoalLamports = 501 * domain.LamportsPerSol }},
		{"fee pct too high", func(r *CreateCampaignRequest) { r.CreatorFeePct = 11 }},
		{"deadline too soon", func(r *CreateCampaignRequest) { r.DeadlineAt = time.Now().Add(time.Hour).UnixMilli() }},
		{"deadline too far", func(r *CreateCampaignRequest) { r.DeadlineAt = time.Now().Add(8 * 24 * time.Hour).UnixMilli() }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCampaignRequest()
			tc.mutate(&req)
			_, err := f.engine.CreateCampaign(ctx, req)
			if !IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateCampaign_Success(t *testing.T) {
	f := newFixture(t, looseLimits())

	c, err := f.engine.CreateCampaign(context.Background(), validCampaignRequest())
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	if c.Status != domain.CampaignProving {
		t.Errorf("status = %s, want proving", c.Status)
	}
	if c.CampaignID == "" {
		t.Error("campaign ID not assigned")
	}
}

func TestCreateCampaign_RateLimited(t *testing.T) {
	limits := looseLimits()
	limits.CreateCampaign = DefaultLimits().CreateCampaign
	f := newFixture(t, limits)
	ctx := context.Background()

	req := validCampaignRequest()
	for i := 0; i < 3; i++ {
		r := req
		r.Symbol = r.Symbol + string(rune('A'+i))
		if _, err := f.engine.CreateCampaign(ctx, r); err != nil {
			t.Fatalf("campaign %d: %v", i+1, err)
		}
	}
	if _, err := f.engine.CreateCampaign(ctx, req); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on fourth create, got %v", err)
	}
}

func TestCreateContribution_PledgeCap(t *testing.T) {
	f := newFixture(t, looseLimits())
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	_, err := f.engine.CreateContribution(context.Background(), CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: 2*domain.LamportsPerSol + 1, // just over 10% of goal
	})
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError on over-cap pledge, got %v", err)
	}
}

func TestCreateContribution_RepeatPledgeTopsUp(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	contributor := solana.NewWallet().PublicKey().String()
	req := CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    contributor,
		AmountLamports: domain.MinQualifyingLamports / 2,
	}
	first, err := f.engine.CreateContribution(ctx, req)
	if err != nil {
		t.Fatalf("first contribution: %v", err)
	}
	if first.QualifiesForFees {
		t.Error("quarter-SOL pledge must not qualify for fee share")
	}

	second, err := f.engine.CreateContribution(ctx, req)
	if err != nil {
		t.Fatalf("repeat contribution: %v", err)
	}
	if second.ContributionID != first.ContributionID {
		t.Fatalf("repeat pledge created %s, want top-up of %s", second.ContributionID, first.ContributionID)
	}
	if second.AmountLamports != domain.MinQualifyingLamports {
		t.Errorf("amount = %d, want %d after top-up", second.AmountLamports, domain.MinQualifyingLamports)
	}
	if !second.QualifiesForFees {
		t.Error("combined pledge crossed the qualification threshold")
	}

	// The cap applies to the combined pledge, not each request.
	over := req
	over.AmountLamports = 2 * domain.LamportsPerSol
	if _, err := f.engine.CreateContribution(ctx, over); !IsValidation(err) {
		t.Fatalf("expected ValidationError on over-cap combined pledge, got %v", err)
	}
}

func TestConfirmDeposit_TopUpConfirmsRemainder(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	contributor := solana.NewWallet().PublicKey().String()
	req := CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    contributor,
		AmountLamports: domain.LamportsPerSol,
	}
	c, err := f.engine.CreateContribution(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatalf("first ConfirmDeposit: %v", err)
	}

	req.AmountLamports = domain.LamportsPerSol / 2
	if _, err := f.engine.CreateContribution(ctx, req); err != nil {
		t.Fatalf("top up: %v", err)
	}

	// Only the unverified remainder needs a deposit.
	f.registerDeposit(c, "dep2", domain.LamportsPerSol/2)
	confirmed, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep2")
	if err != nil {
		t.Fatalf("top-up ConfirmDeposit: %v", err)
	}
	if confirmed.Status != domain.ContributionConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}
	if want := domain.LamportsPerSol + domain.LamportsPerSol/2; confirmed.VerifiedLamports != uint64(want) {
		t.Errorf("verified = %d, want %d", confirmed.VerifiedLamports, want)
	}

	campaign, _ := f.campaigns.GetByID(ctx, "camp1")
	if want := domain.LamportsPerSol + domain.LamportsPerSol/2; campaign.RaisedLamports != uint64(want) {
		t.Errorf("raised = %d, want %d", campaign.RaisedLamports, want)
	}

	// Fully verified pledge has nothing left to confirm.
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep2"); err == nil {
		t.Fatal("expected error confirming with no unverified remainder")
	}
}

func TestConfirmDeposit_RejectsReusedDepositTx(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	contributor := solana.NewWallet().PublicKey().String()
	req := CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    contributor,
		AmountLamports: domain.LamportsPerSol,
	}
	c, err := f.engine.CreateContribution(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}

	req.AmountLamports = domain.LamportsPerSol
	if _, err := f.engine.CreateContribution(ctx, req); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); !IsValidation(err) {
		t.Fatalf("expected ValidationError on reused deposit tx, got %v", err)
	}
}

func TestConfirmDeposit_Success(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != domain.ContributionPending {
		t.Fatalf("status = %s, want pending before deposit", c.Status)
	}
	if !c.QualifiesForFees {
		t.Error("1 SOL pledge must qualify for fee share")
	}

	f.registerDeposit(c, "dep1", domain.LamportsPerSol)

	confirmed, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1")
	if err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	if confirmed.Status != domain.ContributionConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}
	if confirmed.DepositTx != "dep1" {
		t.Errorf("deposit tx = %q, want dep1", confirmed.DepositTx)
	}

	campaign, _ := f.campaigns.GetByID(ctx, "camp1")
	if campaign.RaisedLamports != domain.LamportsPerSol {
		t.Errorf("raised = %d, want %d", campaign.RaisedLamports, domain.LamportsPerSol)
	}
}

func TestConfirmDeposit_UnverifiedStaysPending(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	// Deposit for half the pledged amount.
	f.registerDeposit(c, "dep1", domain.LamportsPerSol/2)

	_, err = f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1")
	if !errors.Is(err, wallet.ErrUnverifiedDeposit) {
		t.Fatalf("expected ErrUnverifiedDeposit, got %v", err)
	}

	got, _ := f.contributions.GetByID(ctx, c.ContributionID)
	if got.Status != domain.ContributionPending {
		t.Errorf("status = %s, want still pending", got.Status)
	}
	campaign, _ := f.campaigns.GetByID(ctx, "camp1")
	if campaign.RaisedLamports != 0 {
		t.Errorf("raised = %d after unverified deposit, want 0", campaign.RaisedLamports)
	}
}

func TestConfirmDeposit_PromotesFundedAtGoal(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 19*domain.LamportsPerSol+domain.LamportsPerSol/2, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)

	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}

	campaign, _ := f.campaigns.GetByID(ctx, "camp1")
	if campaign.Status != domain.CampaignFunded {
		t.Errorf("status = %s, want funded after goal crossed", campaign.Status)
	}
}

func TestWithdrawContribution(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}

	result, err := f.engine.WithdrawContribution(ctx, c.ContributionID)
	if err != nil {
		t.Fatalf("WithdrawContribution: %v", err)
	}
	// 1% withdrawal fee plus one signature fee.
	wantSent := uint64(domain.LamportsPerSol - domain.LamportsPerSol/100 - domain.SignatureFeeLamports)
	if result.AmountSent != wantSent {
		t.Errorf("sent = %d, want %d", result.AmountSent, wantSent)
	}

	got, _ := f.contributions.GetByID(ctx, c.ContributionID)
	if got.Status != domain.ContributionWithdrawn {
		t.Errorf("status = %s, want withdrawn", got.Status)
	}
	campaign, _ := f.campaigns.GetByID(ctx, "camp1")
	if campaign.RaisedLamports != 0 {
		t.Errorf("raised = %d after withdrawal, want 0", campaign.RaisedLamports)
	}

	// Idempotency guard.
	if _, err := f.engine.WithdrawContribution(ctx, c.ContributionID); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled on repeat, got %v", err)
	}
}

func TestWithdrawContribution_RollbackOnSendFailure(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}

	f.ledger.SendErr = errors.New("ledger unavailable")
	if _, err := f.engine.WithdrawContribution(ctx, c.ContributionID); err == nil {
		t.Fatal("expected withdrawal failure")
	}

	got, _ := f.contributions.GetByID(ctx, c.ContributionID)
	if got.Status != domain.ContributionConfirmed {
		t.Errorf("status = %s after failed send, want confirmed (rolled back)", got.Status)
	}
}

func TestRequestLaunch_CreatorOnly(t *testing.T) {
	f := newFixture(t, looseLimits())
	f.insertCampaign(t, "camp1", domain.CampaignFunded, 20*domain.LamportsPerSol, 20*domain.LamportsPerSol)

	_, err := f.engine.RequestLaunch(context.Background(), "camp1", solana.NewWallet().PublicKey().String())
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError for non-creator, got %v", err)
	}
}

func TestRequestLaunch_Lifecycle(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	campaign := f.insertCampaign(t, "camp1", domain.CampaignProving, 19*domain.LamportsPerSol+domain.LamportsPerSol/2, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}

	result, err := f.engine.RequestLaunch(ctx, "camp1", campaign.Creator)
	if err != nil {
		t.Fatalf("RequestLaunch: %v", err)
	}
	if result.PurchasesSucceeded != 1 {
		t.Fatalf("purchases succeeded = %d, want 1 (errors: %v)", result.PurchasesSucceeded, result.Errors)
	}

	got, _ := f.campaigns.GetByID(ctx, "camp1")
	if got.Status != domain.CampaignLive {
		t.Errorf("campaign status = %s, want live", got.Status)
	}

	// The timing gate opens once live.
	secret, err := f.engine.ExportContributionSecret(ctx, c.ContributionID)
	if err != nil {
		t.Fatalf("ExportContributionSecret on live campaign: %v", err)
	}
	if secret == "" {
		t.Error("empty exported secret")
	}
}

func TestExportContributionSecret_LockedBeforeLive(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.engine.ExportContributionSecret(ctx, c.ContributionID); !errors.Is(err, wallet.ErrExportLocked) {
		t.Fatalf("expected ErrExportLocked while proving, got %v", err)
	}
}

func TestSweepContribution_Guards(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	dest := solana.NewWallet().PublicKey().String()

	// Not distributed yet.
	if _, err := f.engine.SweepContribution(ctx, c.ContributionID, dest, wallet.SweepTransfer); !IsValidation(err) {
		t.Fatalf("expected ValidationError before distribution, got %v", err)
	}

	// Already swept.
	if err := f.contributions.SetPurchaseOutcome(ctx, c.ContributionID, 100, nil, domain.ContributionDistributed); err != nil {
		t.Fatal(err)
	}
	if err := f.contributions.SetSweepOutcome(ctx, c.ContributionID, "transfer", "sweep1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.SweepContribution(ctx, c.ContributionID, dest, wallet.SweepTransfer); !errors.Is(err, ErrAlreadySwept) {
		t.Fatalf("expected ErrAlreadySwept, got %v", err)
	}
}

// A sell-mode sweep must settle against the curve: tokens leave for the
// escrow and proceeds lamports reach the destination, distinct from a raw
// token transfer.
func TestSweepContribution_SellLifecycle(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	campaign := f.insertCampaign(t, "camp1", domain.CampaignProving, 19*domain.LamportsPerSol+domain.LamportsPerSol/2, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.RequestLaunch(ctx, "camp1", campaign.Creator); err != nil {
		t.Fatalf("RequestLaunch: %v", err)
	}

	distributed, _ := f.contributions.GetByID(ctx, c.ContributionID)
	got, _ := f.campaigns.GetByID(ctx, "camp1")
	f.seedTokenAccount(t, distributed.CredentialPublicKey, *got.MintAddress, distributed.TokensReceived)
	f.seedTokenAccount(t, f.escrow.PublicKey().String(), *got.MintAddress, 0)

	before, _ := f.curves.GetByCampaign(ctx, "camp1")
	beforeSold := before.TokensSold

	dest := solana.NewWallet().PublicKey().String()
	result, err := f.engine.SweepContribution(ctx, c.ContributionID, dest, wallet.SweepSell)
	if err != nil {
		t.Fatalf("SweepContribution(sell): %v", err)
	}
	if result.Mode != wallet.SweepSell || result.Tokens != distributed.TokensReceived {
		t.Errorf("result = %+v, want full balance sold", result)
	}
	if result.ProceedsLamports == 0 {
		t.Error("sell sweep forwarded no proceeds")
	}

	swept, _ := f.contributions.GetByID(ctx, c.ContributionID)
	if !swept.Swept || swept.SweepMode == nil || *swept.SweepMode != "sell" {
		t.Errorf("sweep not recorded: %+v", swept)
	}

	after, _ := f.curves.GetByCampaign(ctx, "camp1")
	if after.TokensSold != beforeSold-distributed.TokensReceived {
		t.Errorf("curve tokens sold = %d, want %d (sale settled)",
			after.TokensSold, beforeSold-distributed.TokensReceived)
	}

	// Swept once; a repeat reports the guard.
	if _, err := f.engine.SweepContribution(ctx, c.ContributionID, dest, wallet.SweepSell); !errors.Is(err, ErrAlreadySwept) {
		t.Fatalf("expected ErrAlreadySwept on repeat, got %v", err)
	}
}

func TestClaimContributorFees_Flow(t *testing.T) {
	f := newFixture(t, looseLimits())
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.contributions.AddClaimableFees(ctx, c.ContributionID, 5_000_000); err != nil {
		t.Fatal(err)
	}

	claim, err := f.engine.ClaimContributorFees(ctx, c.ContributionID)
	if err != nil {
		t.Fatalf("ClaimContributorFees: %v", err)
	}
	if claim.Status != domain.FeeClaimCompleted {
		t.Errorf("claim status = %s, want completed", claim.Status)
	}

	// Drained balance is below minimum now.
	if _, err := f.engine.ClaimContributorFees(ctx, c.ContributionID); !errors.Is(err, feewatch.ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum on repeat, got %v", err)
	}
}

func TestWithdraw_RateLimited(t *testing.T) {
	limits := looseLimits()
	limits.Withdraw = DefaultLimits().Withdraw
	f := newFixture(t, limits)
	ctx := context.Background()
	f.insertCampaign(t, "camp1", domain.CampaignProving, 0, 20*domain.LamportsPerSol)

	c, err := f.engine.CreateContribution(ctx, CreateContributionRequest{
		CampaignID:     "camp1",
		Contributor:    solana.NewWallet().PublicKey().String(),
		AmountLamports: domain.LamportsPerSol,
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registerDeposit(c, "dep1", domain.LamportsPerSol)
	if _, err := f.engine.ConfirmDeposit(ctx, c.ContributionID, "dep1"); err != nil {
		t.Fatal(err)
	}

	// Burn the withdrawal window with failing sends; attempts count even
	// when the transfer fails.
	f.ledger.SendErr = errors.New("down")
	f.engine.WithdrawContribution(ctx, c.ContributionID)
	f.ledger.SendErr = errors.New("down")
	f.engine.WithdrawContribution(ctx, c.ContributionID)
	f.ledger.SendErr = errors.New("down")
	f.engine.WithdrawContribution(ctx, c.ContributionID)

	if _, err := f.engine.WithdrawContribution(ctx, c.ContributionID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on fourth attempt, got %v", err)
	}
}
