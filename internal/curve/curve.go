// Package curve implements constant-product bonding-curve pricing over a
// funding/token reserve pair. Quotes are pure functions of an immutable
// snapshot; the caller applies the resulting reserve deltas atomically
// together with the external transfer.
//
// All arithmetic is integer-only. Intermediate products use big.Int so a
// full-range uint64 reserve pair cannot overflow.
package curve

import (
	"errors"
	"math/big"

	"prooflaunch/internal/domain"
)

var (
	// ErrComplete is returned when quoting against a completed curve.
	ErrComplete = errors.New("curve complete")
	// ErrEmptyReserves is returned when a snapshot has zero virtual reserves.
	ErrEmptyReserves = errors.New("curve has empty virtual reserves")
)

// Snapshot is an immutable view of curve reserves at quote time.
type Snapshot struct {
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
	RealSolReserves      uint64
	RealTokenReserves    uint64
	CompletionThreshold  uint64
	Complete             bool
}

// SnapshotOf copies the pricing-relevant fields of a curve state.
func SnapshotOf(st *domain.CurveState) Snapshot {
	return Snapshot{
		VirtualSolReserves:   st.VirtualSolReserves,
		VirtualTokenReserves: st.VirtualTokenReserves,
		RealSolReserves:      st.RealSolReserves,
		RealTokenReserves:    st.RealTokenReserves,
		CompletionThreshold:  st.CompletionThreshold,
		Complete:             st.Complete,
	}
}

// BuyQuote is the outcome of pricing a buy.
type BuyQuote struct {
	// TokensOut is the token amount the funding buys, after fee.
	TokensOut uint64
	// Fee is deducted from the funding input before pricing.
	Fee uint64
	// NetIn is the funding amount added to reserves (input minus fee).
	NetIn uint64
	// Capped is set when the formula priced more tokens than the real
	// reserves back, and the output was clamped. Callers should treat a
	// capped quote as a partial fill.
	Capped bool
}

// SellQuote is the outcome of pricing a sell.
type SellQuote struct {
	// FundingOut is the amount returned to the seller, after fee.
	FundingOut uint64
	// Fee is taken from the gross output before it is returned.
	Fee uint64
	// GrossOut is the funding amount removed from reserves.
	GrossOut uint64
	// Capped is set when the output was clamped at real funding reserves.
	Capped bool
}

// QuoteBuy prices fundingIn lamports against the snapshot.
//
//	fee        = fundingIn * TradingFeeBps / BpsDenominator
//	net        = fundingIn - fee
//	tokens_out = floor(net * vTok / (vSol + net)), capped at real token reserves
//
// Zero input yields a zero quote and no error.
func QuoteBuy(s Snapshot, fundingIn uint64) (BuyQuote, error) {
	if fundingIn == 0 {
		return BuyQuote{}, nil
	}
	if s.Complete {
		return BuyQuote{}, ErrComplete
	}
	if s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return BuyQuote{}, ErrEmptyReserves
	}

	fee := mulDivFloor(fundingIn, domain.TradingFeeBps, domain.BpsDenominator)
	net := fundingIn - fee

	tokens := mulDivFloor(net, s.VirtualTokenReserves, s.VirtualSolReserves+net)

	q := BuyQuote{Fee: fee, NetIn: net, TokensOut: tokens}
	if tokens > s.RealTokenReserves {
		q.TokensOut = s.RealTokenReserves
		q.Capped = true
	}
	return q, nil
}

// QuoteSell prices tokensIn against the snapshot.
//
//	gross       = floor(tokens * vSol / (vTok + tokens)), capped at real funding reserves
//	fee         = gross * TradingFeeBps / BpsDenominator
//	funding_out = gross - fee
//
// Zero input yields a zero quote and no error.
func QuoteSell(s Snapshot, tokensIn uint64) (SellQuote, error) {
	if tokensIn == 0 {
		return SellQuote{}, nil
	}
	if s.VirtualSolReserves == 0 || s.VirtualTokenReserves == 0 {
		return SellQuote{}, ErrEmptyReserves
	}

	gross := mulDivFloor(tokensIn, s.VirtualSolReserves, s.VirtualTokenReserves+tokensIn)

	q := SellQuote{}
	if gross > s.RealSolReserves {
		gross = s.RealSolReserves
		q.Capped = true
	}
	q.GrossOut = gross
	q.Fee = mulDivFloor(gross, domain.TradingFeeBps, domain.BpsDenominator)
	q.FundingOut = gross - q.Fee
	return q, nil
}

// SpotPrice returns the current price in lamports per whole token
// (10^TokenDecimals base units).
func SpotPrice(s Snapshot) uint64 {
	if s.VirtualTokenReserves == 0 {
		return 0
	}
	return mulDivFloor(s.VirtualSolReserves, 1_000_000, s.VirtualTokenReserves)
}

// ApplyBuy mutates st with the reserve deltas of an executed buy quote.
// The caller holds ownership of st and persists it atomically with the
// transfer that funded the buy.
func ApplyBuy(st *domain.CurveState, q BuyQuote) {
	st.VirtualSolReserves = satAdd(st.VirtualSolReserves, q.NetIn)
	st.VirtualTokenReserves = satSub(st.VirtualTokenReserves, q.TokensOut)
	st.RealSolReserves = satAdd(st.RealSolReserves, q.NetIn)
	st.RealTokenReserves = satSub(st.RealTokenReserves, q.TokensOut)
	st.TokensSold = satAdd(st.TokensSold, q.TokensOut)
	st.TotalVolume = satAdd(st.TotalVolume, q.NetIn)
	if st.RealSolReserves >= st.CompletionThreshold {
		st.Complete = true
	}
}

// ApplySell mutates st with the reserve deltas of an executed sell quote.
func ApplySell(st *domain.CurveState, tokensIn uint64, q SellQuote) {
	st.VirtualSolReserves = satSub(st.VirtualSolReserves, q.GrossOut)
	st.VirtualTokenReserves = satAdd(st.VirtualTokenReserves, tokensIn)
	st.RealSolReserves = satSub(st.RealSolReserves, q.GrossOut)
	st.RealTokenReserves = satAdd(st.RealTokenReserves, tokensIn)
	st.TokensSold = satSub(st.TokensSold, tokensIn)
	st.TotalVolume = satAdd(st.TotalVolume, q.GrossOut)
}

// NewState seeds a curve for a freshly launched campaign.
func NewState(campaignID, mint string, nowMs int64) *domain.CurveState {
	return &domain.CurveState{
		CampaignID:           campaignID,
		Mint:                 mint,
		VirtualSolReserves:   domain.DefaultVirtualSolReserves,
		VirtualTokenReserves: domain.DefaultVirtualTokenReserves,
		RealSolReserves:      0,
		RealTokenReserves:    domain.TotalSupplyUnits,
		CompletionThreshold:  domain.CurveCompletionLamports,
		UpdatedAt:            nowMs,
	}
}

// mulDivFloor computes floor(a*b/c) without intermediate overflow.
func mulDivFloor(a, b, c uint64) uint64 {
	num := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	num.Quo(num, new(big.Int).SetUint64(c))
	return num.Uint64()
}

func satAdd(a, b uint64) uint64 {
	if a+b < a {
		return ^uint64(0)
	}
	return a + b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
