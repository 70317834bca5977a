// Package feesplit computes fee-distribution plans. It splits an observed
// fee inflow between a campaign's creator and its qualifying contributors,
// pro rata by pledged amount. Pure calculation: callers apply the plan.
package feesplit

import (
	"errors"
	"math/big"
)

// ErrCreatorFeeRange is returned when the creator percentage is out of range.
var ErrCreatorFeeRange = errors.New("creator fee percent out of range [0,100]")

// Share is one contributor's stake in the pool.
type Share struct {
	ID              string
	PledgedLamports uint64
}

// Allocation is one contributor's cut of the distributed fee.
type Allocation struct {
	ID             string
	AmountLamports uint64
}

// Plan is the result of a distribution calculation. The invariant
// Creator + sum(Allocations) <= total always holds; integer rounding loss
// stays in the pool and is never over-allocated.
type Plan struct {
	CreatorLamports uint64
	Allocations     []Allocation
	// RemainderLamports is the rounding loss retained by the pool.
	RemainderLamports uint64
}

// Distribute splits totalFee between the creator and contributors.
//
//	creator = totalFee * creatorFeePct / 100
//	pool    = totalFee - creator
//	each    = floor(pool * pledged / totalPledged)
//
// Only contributors that actually received tokens at launch should be
// passed in; that filtering is the caller's responsibility.
func Distribute(totalFee uint64, creatorFeePct uint64, contributors []Share) (Plan, error) {
	if creatorFeePct > 100 {
		return Plan{}, ErrCreatorFeeRange
	}

	creator := mulDivFloor(totalFee, creatorFeePct, 100)
	pool := totalFee - creator

	var totalPledged uint64
	for _, c := range contributors {
		totalPledged += c.PledgedLamports
	}

	plan := Plan{CreatorLamports: creator}
	if totalPledged == 0 || pool == 0 {
		plan.RemainderLamports = pool
		return plan, nil
	}

	var allocated uint64
	plan.Allocations = make([]Allocation, 0, len(contributors))
	for _, c := range contributors {
		amount := mulDivFloor(pool, c.PledgedLamports, totalPledged)
		allocated += amount
		plan.Allocations = append(plan.Allocations, Allocation{
			ID:             c.ID,
			AmountLamports: amount,
		})
	}
	plan.RemainderLamports = pool - allocated
	return plan, nil
}

// mulDivFloor computes floor(a*b/c) without intermediate overflow.
func mulDivFloor(a, b, c uint64) uint64 {
	num := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	num.Quo(num, new(big.Int).SetUint64(c))
	return num.Uint64()
}
