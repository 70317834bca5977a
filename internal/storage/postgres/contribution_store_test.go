package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prooflaunch/internal/domain"
	"prooflaunch/internal/storage"
)

func testContribution(id, campaignID, contributor string) *domain.Contribution {
	return &domain.Contribution{
		ContributionID:      id,
		CampaignID:          campaignID,
		Contributor:         contributor,
		AmountLamports:      1_000_000_000,
		CredentialPublicKey: "Cred" + id,
		EncryptedSecret:     "enc-" + id,
		DepositTx:           "Deposit" + id,
		QualifiesForFees:    true,
		Status:              domain.ContributionConfirmed,
		ContributedAt:       1700000000000,
		CreatedAt:           1700000000000,
	}
}

func insertTestCampaign(t *testing.T, pool *Pool, campaignID string) {
	t.Helper()
	require.NoError(t, NewCampaignStore(pool).Insert(context.Background(), testCampaign(campaignID)))
}

func TestContributionStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-001", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	retrieved, err := store.GetByID(ctx, "contrib-001")
	require.NoError(t, err)

	assert.Equal(t, c.ContributionID, retrieved.ContributionID)
	assert.Equal(t, c.CampaignID, retrieved.CampaignID)
	assert.Equal(t, c.Contributor, retrieved.Contributor)
	assert.Equal(t, c.AmountLamports, retrieved.AmountLamports)
	assert.Equal(t, c.CredentialPublicKey, retrieved.CredentialPublicKey)
	assert.Equal(t, c.EncryptedSecret, retrieved.EncryptedSecret)
	assert.True(t, retrieved.QualifiesForFees)
	assert.False(t, retrieved.Swept)
	assert.Nil(t, retrieved.PurchaseTx)
}

func TestContributionStore_OneActivePerContributor(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	first := testContribution("contrib-1", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, first))

	// Second active contribution from the same wallet is rejected
	second := testContribution("contrib-2", "campaign-001", "WalletA")
	err := store.Insert(ctx, second)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// After withdrawal the wallet may contribute again
	err = store.TransitionStatus(ctx, "contrib-1", domain.ContributionConfirmed, domain.ContributionWithdrawn)
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, second))
}

func TestContributionStore_GetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-active", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	retrieved, err := store.GetActive(ctx, "campaign-001", "WalletA")
	require.NoError(t, err)
	assert.Equal(t, "contrib-active", retrieved.ContributionID)

	// Withdrawn contributions are not active
	err = store.TransitionStatus(ctx, "contrib-active", domain.ContributionConfirmed, domain.ContributionWithdrawn)
	require.NoError(t, err)

	_, err = store.GetActive(ctx, "campaign-001", "WalletA")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestContributionStore_TransitionStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-cas", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	err := store.TransitionStatus(ctx, "contrib-cas", domain.ContributionConfirmed, domain.ContributionRefunded)
	require.NoError(t, err)

	// Refund/withdraw idempotency rests on the lost race being visible
	err = store.TransitionStatus(ctx, "contrib-cas", domain.ContributionConfirmed, domain.ContributionWithdrawn)
	assert.ErrorIs(t, err, storage.ErrConflict)

	err = store.TransitionStatus(ctx, "nonexistent", domain.ContributionConfirmed, domain.ContributionWithdrawn)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestContributionStore_SetPurchaseOutcome(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-buy", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	err := store.SetPurchaseOutcome(ctx, "contrib-buy", 42_000_000, ptr("PurchaseTx111"), domain.ContributionDistributed)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "contrib-buy")
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), retrieved.TokensReceived)
	require.NotNil(t, retrieved.PurchaseTx)
	assert.Equal(t, "PurchaseTx111", *retrieved.PurchaseTx)
	assert.Equal(t, domain.ContributionDistributed, retrieved.Status)
}

func TestContributionStore_OrderedByContributedAt(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	late := testContribution("contrib-late", "campaign-001", "WalletB")
	late.ContributedAt = 2000
	early := testContribution("contrib-early", "campaign-001", "WalletA")
	early.ContributedAt = 1000

	require.NoError(t, store.Insert(ctx, late))
	require.NoError(t, store.Insert(ctx, early))

	all, err := store.GetByCampaign(ctx, "campaign-001")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "contrib-early", all[0].ContributionID)
	assert.Equal(t, "contrib-late", all[1].ContributionID)
}

func TestContributionStore_SettleClaim(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-claim", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	require.NoError(t, store.AddClaimableFees(ctx, "contrib-claim", 300))
	require.NoError(t, store.AddClaimableFees(ctx, "contrib-claim", 200))

	amount, err := store.SettleClaim(ctx, "contrib-claim")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), amount)

	retrieved, err := store.GetByID(ctx, "contrib-claim")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), retrieved.ClaimableFeeLamports)
	assert.Equal(t, uint64(500), retrieved.ClaimedFeeLamports)
}

func TestContributionStore_TopUpAndVerify(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-topup", "campaign-001", "WalletA")
	c.Status = domain.ContributionPending
	c.DepositTx = ""
	require.NoError(t, store.Insert(ctx, c))

	require.NoError(t, store.SetDepositVerified(ctx, "contrib-topup", "DepositTx1", c.AmountLamports))

	retrieved, err := store.GetByID(ctx, "contrib-topup")
	require.NoError(t, err)
	assert.Equal(t, domain.ContributionConfirmed, retrieved.Status)
	assert.Equal(t, c.AmountLamports, retrieved.VerifiedLamports)

	// A top-up raises the pledge while the verified total trails it.
	require.NoError(t, store.TopUpAmount(ctx, "contrib-topup", 500_000_000, true))

	retrieved, err = store.GetByID(ctx, "contrib-topup")
	require.NoError(t, err)
	assert.Equal(t, c.AmountLamports+500_000_000, retrieved.AmountLamports)
	assert.Equal(t, c.AmountLamports, retrieved.VerifiedLamports)

	// Confirmed contributions accept further verified deposits.
	require.NoError(t, store.SetDepositVerified(ctx, "contrib-topup", "DepositTx2", retrieved.AmountLamports))

	retrieved, err = store.GetByID(ctx, "contrib-topup")
	require.NoError(t, err)
	assert.Equal(t, "DepositTx2", retrieved.DepositTx)
	assert.Equal(t, retrieved.AmountLamports, retrieved.VerifiedLamports)

	// Settled contributions no longer accept funds.
	require.NoError(t, store.TransitionStatus(ctx, "contrib-topup", domain.ContributionConfirmed, domain.ContributionRefunded))
	assert.ErrorIs(t, store.TopUpAmount(ctx, "contrib-topup", 1, true), storage.ErrConflict)
	assert.ErrorIs(t, store.TopUpAmount(ctx, "nonexistent", 1, true), storage.ErrNotFound)
}

func TestContributionStore_SetSweepOutcome(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewContributionStore(pool)
	ctx := context.Background()
	insertTestCampaign(t, pool, "campaign-001")

	c := testContribution("contrib-sweep", "campaign-001", "WalletA")
	require.NoError(t, store.Insert(ctx, c))

	require.NoError(t, store.SetSweepOutcome(ctx, "contrib-sweep", "sell", "SweepTx111"))

	retrieved, err := store.GetByID(ctx, "contrib-sweep")
	require.NoError(t, err)
	assert.True(t, retrieved.Swept)
	require.NotNil(t, retrieved.SweepMode)
	assert.Equal(t, "sell", *retrieved.SweepMode)
}
