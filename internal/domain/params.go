package domain

// Platform parameters. All amounts are lamports unless noted. These mirror
// the on-chain program's configuration and are asserted by unit tests so
// that external fee-schedule changes surface as test failures instead of
// stuck transactions.
const (
	LamportsPerSol = 1_000_000_000

	// Basis points (1 bp = 0.01%).
	BpsDenominator = 10_000

	// Goal constraints.
	MinGoalLamports = 20 * LamportsPerSol
	MaxGoalLamports = 500 * LamportsPerSol

	// Proving window constraints (ms).
	MinProvingDurationMs = 24 * 60 * 60 * 1000
	MaxProvingDurationMs = 7 * 24 * 60 * 60 * 1000

	// Contribution constraints.
	MinContributionLamports = 10_000_000 // 0.01 SOL
	// MinQualifyingLamports is the pledge size required for ongoing fee share.
	MinQualifyingLamports = 500_000_000 // 0.5 SOL
	// MaxContributionBps caps a single pledge at 10% of the campaign goal.
	MaxContributionBps = 1_000

	// Token supply.
	TokenDecimals    = 6
	TotalSupplyUnits = 1_000_000_000_000_000 // 1 billion tokens, 6 decimals

	// Curve parameters.
	TradingFeeBps             = 100 // 1% on buys and sells
	CurveCompletionLamports   = 85 * LamportsPerSol
	DefaultVirtualSolReserves = 30 * LamportsPerSol
	// DefaultVirtualTokenReserves seeds pricing so the spot price is
	// well-defined before any real liquidity exists.
	DefaultVirtualTokenReserves = 1_073_000_000_000_000

	// Fee split bounds.
	MaxCreatorFeePct = 10

	// Withdrawal fee charged on early exits during proving. Deadline
	// refunds are fee-free.
	WithdrawalFeeBps = 100

	// MinClaimLamports is the smallest fee claim worth a transaction.
	MinClaimLamports = 1_000_000 // 0.001 SOL
)

// Credential overhead reserves. A custodial credential must never be drained
// below what the ledger requires to keep its account alive and to pay for
// the transfers that settle it later.
const (
	// RentExemptMinLamports is the rent-exempt minimum for a zero-data
	// system account.
	RentExemptMinLamports = 890_880
	// SignatureFeeLamports is the fee per transaction signature.
	SignatureFeeLamports = 5_000
	// TokenAccountRentLamports is the rent-exempt cost of creating an SPL
	// token account, paid by the credential during purchase or sweep.
	TokenAccountRentLamports = 2_039_280
	// PurchaseReserveLamports is withheld from a credential's balance
	// before computing the buyable remainder: account rent floor, the
	// token account it will own, and two future transaction fees.
	PurchaseReserveLamports = RentExemptMinLamports + TokenAccountRentLamports + 2*SignatureFeeLamports
)
