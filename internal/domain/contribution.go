package domain

// ContributionStatus is the lifecycle state of a single pledge.
type ContributionStatus string

const (
	// ContributionPending has been registered but its deposit is not yet verified.
	ContributionPending ContributionStatus = "pending"
	// ContributionConfirmed has a verified deposit held by its dedicated credential.
	ContributionConfirmed ContributionStatus = "confirmed"
	// ContributionWithdrawn exited early during proving (withdrawal fee applied).
	ContributionWithdrawn ContributionStatus = "withdrawn"
	// ContributionDistributed received tokens at launch.
	ContributionDistributed ContributionStatus = "distributed"
	// ContributionRefunded was returned in full after campaign failure.
	ContributionRefunded ContributionStatus = "refunded"
)

// Settled reports whether the contribution's funds have already left
// custody, making further refund or withdrawal attempts invalid.
func (s ContributionStatus) Settled() bool {
	return s == ContributionWithdrawn || s == ContributionRefunded
}

// Contribution represents one contributor's pledge to a campaign and the
// dedicated credential that custodies it. Corresponds to the contributions
// table in PostgreSQL. At most one non-withdrawn contribution exists per
// (campaign, contributor) pair.
type Contribution struct {
	ContributionID string // PRIMARY KEY, deterministic hash
	CampaignID     string
	Contributor    string // contributor wallet address (base58)

	AmountLamports uint64 // pledged amount, including top-ups

	// VerifiedLamports is the portion of the pledge whose deposits have
	// verified. Trails AmountLamports between a top-up and its deposit
	// confirmation.
	VerifiedLamports uint64

	// Dedicated single-use credential. The public key is the custody
	// account; the secret is encrypted under the process key and never
	// stored in clear.
	CredentialPublicKey string
	EncryptedSecret     string

	DepositTx string // deposit transaction reference

	// QualifiesForFees is set when the pledge meets the minimum size for
	// ongoing fee share.
	QualifiesForFees bool

	Status ContributionStatus

	// Launch outcome.
	TokensReceived uint64
	PurchaseTx     *string

	// Exit outcome.
	RefundTx  *string
	Swept     bool
	SweepMode *string // "sell" | "transfer"
	SweepTx   *string

	// Fee ledger balances.
	ClaimableFeeLamports uint64
	ClaimedFeeLamports   uint64

	ContributedAt int64 // Unix ms, orders launch purchases
	CreatedAt     int64 // Unix ms
}
