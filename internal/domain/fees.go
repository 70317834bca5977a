package domain

// FeeEvent is one observed trading-fee inflow to the platform escrow,
// attributed to a live campaign's mint. De-duplicated by transaction
// signature. Append-only; also mirrored to the ClickHouse audit store.
type FeeEvent struct {
	TxSignature    string // PRIMARY KEY
	Mint           string
	CampaignID     string // empty when no live campaign matched the mint
	AmountLamports uint64
	Slot           int64
	BlockTime      int64 // Unix seconds, zero if unknown
	Distributed    bool  // false when no campaign matched
	ObservedAt     int64 // Unix ms
}

// FeeClaimStatus is the lifecycle of a fee withdrawal.
type FeeClaimStatus string

const (
	FeeClaimProcessing FeeClaimStatus = "processing"
	FeeClaimCompleted  FeeClaimStatus = "completed"
	FeeClaimFailed     FeeClaimStatus = "failed"
)

// FeeClaim records one holder withdrawal of accrued fee balance.
type FeeClaim struct {
	ClaimID        string // PRIMARY KEY, deterministic hash
	CampaignID     *string
	Wallet         string
	AmountLamports uint64
	Status         FeeClaimStatus
	ClaimTx        *string
	CreatedAt      int64 // Unix ms
	CompletedAt    int64 // Unix ms, zero until completed
}
