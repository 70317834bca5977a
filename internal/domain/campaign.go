package domain

// CampaignStatus is the lifecycle state of a campaign.
// Transitions are monotonic except for the launching → funded revert
// when token creation fails.
type CampaignStatus string

const (
	// CampaignProving accepts contributions until goal or deadline.
	CampaignProving CampaignStatus = "proving"
	// CampaignFunded reached its goal; contributions are still accepted
	// until an explicit launch request locks them.
	CampaignFunded CampaignStatus = "funded"
	// CampaignLaunching is executing token creation and launch purchases.
	CampaignLaunching CampaignStatus = "launching"
	// CampaignLive has a tradeable token on the external ledger.
	CampaignLive CampaignStatus = "live"
	// CampaignFailed missed its goal before the deadline.
	CampaignFailed CampaignStatus = "failed"
)

// validTransitions encodes the campaign state machine.
var validTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignProving:   {CampaignFunded, CampaignFailed},
	CampaignFunded:    {CampaignLaunching},
	CampaignLaunching: {CampaignLive, CampaignFunded},
	CampaignLive:      {},
	CampaignFailed:    {},
}

// CanTransition reports whether moving from → to is a legal status change.
func CanTransition(from, to CampaignStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Campaign represents a proposed asset collecting pledges before launch.
// Corresponds to the campaigns table in PostgreSQL.
type Campaign struct {
	CampaignID  string // PRIMARY KEY, deterministic hash
	Creator     string // creator wallet address (base58)
	Name        string
	Symbol      string
	Description string
	ImageURL    string

	GoalLamports   uint64 // funding target
	RaisedLamports uint64 // sum of verified, non-withdrawn contributions

	// CreatorFeePct is the creator's share of observed fee inflow (0-10).
	// Contributors split the remainder pro rata.
	CreatorFeePct uint64

	DeadlineAt int64 // proving deadline, Unix ms
	AutoRefund bool  // refund all contributions automatically on failure

	Status CampaignStatus

	// Launch artifacts, set once live.
	MintAddress *string
	TradeURL    *string

	// CreatorClaimableLamports is the creator's accrued, unclaimed fee
	// balance. Zeroed when a claim executes.
	CreatorClaimableLamports uint64
	CreatorClaimedLamports   uint64

	CreatedAt  int64 // Unix ms
	LaunchedAt int64 // Unix ms, zero until live
}

// GoalReached reports whether verified contributions cover the target.
func (c *Campaign) GoalReached() bool {
	return c.RaisedLamports >= c.GoalLamports
}
