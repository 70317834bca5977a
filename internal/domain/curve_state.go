package domain

// CurveState holds the reserve quantities of a launched campaign's bonding
// curve. Owned by the launch orchestrator after launch; the curve package
// computes quotes from immutable snapshots of it.
type CurveState struct {
	CampaignID string
	Mint       string

	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64

	TokensSold  uint64
	TotalVolume uint64

	// CompletionThreshold is the real funding reserve level at which the
	// curve stops accepting buys and becomes eligible for migration.
	CompletionThreshold uint64
	Complete            bool

	UpdatedAt int64 // Unix ms
}
