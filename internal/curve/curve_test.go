package curve

import (
	"errors"
	"testing"

	"prooflaunch/internal/domain"
)

func freshSnapshot() Snapshot {
	return Snapshot{
		VirtualSolReserves:   domain.DefaultVirtualSolReserves,
		VirtualTokenReserves: domain.DefaultVirtualTokenReserves,
		RealSolReserves:      0,
		RealTokenReserves:    domain.TotalSupplyUnits,
		CompletionThreshold:  domain.CurveCompletionLamports,
	}
}

func TestQuoteBuy_ZeroInput(t *testing.T) {
	q, err := QuoteBuy(freshSnapshot(), 0)
	if err != nil {
		t.Fatalf("zero input should not error: %v", err)
	}
	if q.TokensOut != 0 || q.Fee != 0 || q.NetIn != 0 {
		t.Errorf("zero input should yield zero quote, got %+v", q)
	}
}

func TestQuoteBuy_FeeDeducted(t *testing.T) {
	in := uint64(1 * domain.LamportsPerSol)
	q, err := QuoteBuy(freshSnapshot(), in)
	if err != nil {
		t.Fatal(err)
	}

	wantFee := in * domain.TradingFeeBps / domain.BpsDenominator
	if q.Fee != wantFee {
		t.Errorf("fee = %d, want %d", q.Fee, wantFee)
	}
	if q.NetIn != in-wantFee {
		t.Errorf("net = %d, want %d", q.NetIn, in-wantFee)
	}
	if q.TokensOut == 0 {
		t.Error("expected nonzero tokens out for 1 SOL on a fresh curve")
	}
}

func TestQuoteBuy_Monotonic(t *testing.T) {
	s := freshSnapshot()
	var prev uint64
	for _, in := range []uint64{
		0,
		1_000,
		1_000_000,
		domain.LamportsPerSol,
		10 * domain.LamportsPerSol,
		100 * domain.LamportsPerSol,
		1_000 * domain.LamportsPerSol,
	} {
		q, err := QuoteBuy(s, in)
		if err != nil {
			t.Fatalf("quote %d: %v", in, err)
		}
		if q.TokensOut < prev {
			t.Errorf("tokens out decreased: in=%d out=%d prev=%d", in, q.TokensOut, prev)
		}
		if q.TokensOut > s.RealTokenReserves {
			t.Errorf("tokens out %d exceeds real reserves %d", q.TokensOut, s.RealTokenReserves)
		}
		prev = q.TokensOut
	}
}

func TestQuoteBuy_CapsAtRealReserves(t *testing.T) {
	s := freshSnapshot()
	s.RealTokenReserves = 1_000 // nearly drained

	q, err := QuoteBuy(s, 50*domain.LamportsPerSol)
	if err != nil {
		t.Fatal(err)
	}
	if q.TokensOut != 1_000 {
		t.Errorf("expected output capped at 1000, got %d", q.TokensOut)
	}
	if !q.Capped {
		t.Error("capped quote must flag the partial fill")
	}
}

func TestQuoteBuy_CompleteCurve(t *testing.T) {
	s := freshSnapshot()
	s.Complete = true
	_, err := QuoteBuy(s, domain.LamportsPerSol)
	if !errors.Is(err, ErrComplete) {
		t.Errorf("expected ErrComplete, got %v", err)
	}
}

func TestQuoteSell_ZeroInput(t *testing.T) {
	q, err := QuoteSell(freshSnapshot(), 0)
	if err != nil {
		t.Fatalf("zero input should not error: %v", err)
	}
	if q.FundingOut != 0 || q.Fee != 0 {
		t.Errorf("zero input should yield zero quote, got %+v", q)
	}
}

func TestRoundTrip_FeesReduceValue(t *testing.T) {
	// Buy then immediately sell the same tokens on an unchanged curve:
	// fees on both legs mean the seller gets back strictly less.
	st := NewState("camp", "mint", 0)
	s := SnapshotOf(st)

	in := uint64(5 * domain.LamportsPerSol)
	buy, err := QuoteBuy(s, in)
	if err != nil {
		t.Fatal(err)
	}

	// Seller needs real funding reserves to sell into.
	s.RealSolReserves = in

	sell, err := QuoteSell(s, buy.TokensOut)
	if err != nil {
		t.Fatal(err)
	}
	if sell.FundingOut >= in {
		t.Errorf("round trip must lose value: in=%d out=%d", in, sell.FundingOut)
	}
}

func TestApplyBuy_UpdatesReservesAndCompletion(t *testing.T) {
	st := NewState("camp", "mint", 0)
	s := SnapshotOf(st)

	in := uint64(10 * domain.LamportsPerSol)
	q, err := QuoteBuy(s, in)
	if err != nil {
		t.Fatal(err)
	}

	ApplyBuy(st, q)

	if st.RealSolReserves != q.NetIn {
		t.Errorf("real sol = %d, want %d", st.RealSolReserves, q.NetIn)
	}
	if st.RealTokenReserves != domain.TotalSupplyUnits-q.TokensOut {
		t.Errorf("real tokens = %d, want %d", st.RealTokenReserves, domain.TotalSupplyUnits-q.TokensOut)
	}
	if st.TokensSold != q.TokensOut {
		t.Errorf("tokens sold = %d, want %d", st.TokensSold, q.TokensOut)
	}
	if st.Complete {
		t.Error("10 SOL should not complete an 85 SOL curve")
	}
}

func TestApplyBuy_Completion(t *testing.T) {
	st := NewState("camp", "mint", 0)
	st.RealSolReserves = domain.CurveCompletionLamports - 1

	ApplyBuy(st, BuyQuote{NetIn: 1})
	if !st.Complete {
		t.Error("crossing the threshold must mark the curve complete")
	}
}

func TestApplySell_ReversesBuy(t *testing.T) {
	st := NewState("camp", "mint", 0)
	buy, _ := QuoteBuy(SnapshotOf(st), 5*domain.LamportsPerSol)
	ApplyBuy(st, buy)

	sell, err := QuoteSell(SnapshotOf(st), buy.TokensOut)
	if err != nil {
		t.Fatal(err)
	}
	ApplySell(st, buy.TokensOut, sell)

	if st.RealTokenReserves != domain.TotalSupplyUnits {
		t.Errorf("token reserves not restored: %d", st.RealTokenReserves)
	}
	if st.TokensSold != 0 {
		t.Errorf("tokens sold not restored: %d", st.TokensSold)
	}
}

func TestSpotPrice_Defined(t *testing.T) {
	p := SpotPrice(SnapshotOf(NewState("camp", "mint", 0)))
	if p == 0 {
		t.Error("fresh curve must have a well-defined nonzero spot price")
	}
}
