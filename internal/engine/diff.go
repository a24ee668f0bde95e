package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// DiffPositions computes the ordered set of adjustments needed to bring the
// follower's exposure into proportion with the leader's, scaled by ratio.
//
// Both maps must already be keyed by normalized product IDs. The follower
// map is consumed as a working copy; neither input is mutated. Products the
// leader holds are visited first (target = leaderSize * ratio, minus any
// existing follower position); follower positions in products the leader no
// longer holds are fully unwound. Zero adjustments are never emitted, so a
// follower already in exact proportion produces an empty result.
func DiffPositions(
	leader map[model.ProductID]decimal.Decimal,
	follower map[model.ProductID]decimal.Decimal,
	ratio decimal.Decimal,
) []model.OrderAdjustment {
	remaining := make(map[model.ProductID]decimal.Decimal, len(follower))
	for k, v := range follower {
		remaining[k] = v
	}

	var adjustments []model.OrderAdjustment

	for _, product := range sortedProducts(leader) {
		leaderSize := leader[product]
		if leaderSize.IsZero() {
			continue // nothing to mirror
		}

		adjusted := leaderSize.Mul(ratio)
		if followerSize, ok := remaining[product]; ok {
			adjusted = adjusted.Sub(followerSize)
			delete(remaining, product) // accounted for
		}

		if adjusted.IsZero() {
			continue
		}
		adjustments = append(adjustments, model.OrderAdjustment{
			Product: product,
			IsBid:   adjusted.IsPositive(),
			Size:    adjusted.Abs(),
		})
	}

	// Close out follower positions the leader no longer holds.
	for _, product := range sortedProducts(remaining) {
		size := remaining[product]
		if size.IsZero() {
			continue
		}
		adjustments = append(adjustments, model.OrderAdjustment{
			Product: product,
			IsBid:   size.IsNegative(),
			Size:    size.Abs(),
		})
	}

	return adjustments
}

// sortedProducts returns map keys in lexical order so diff output is
// deterministic across passes.
func sortedProducts(m map[model.ProductID]decimal.Decimal) []model.ProductID {
	keys := make([]model.ProductID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
