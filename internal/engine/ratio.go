package engine

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrZeroPortfolioValue is returned when the follower portfolio value is
// zero and no scaling factor can be derived. Callers treat this as "skip the
// pass", never as a fatal failure.
var ErrZeroPortfolioValue = errors.New("follower portfolio value is zero")

// ratioScale fixes the positioning ratio at 3 decimal places.
var ratioScale = decimal.NewFromInt(1000)

// PositioningRatio derives the capital-scaling factor between the leader and
// follower portfolios: floor((leader / follower) * 1000) / 1000.
//
// Truncation, not rounding: the follower is biased toward under-exposure
// relative to the leader, never over-exposure.
func PositioningRatio(leaderValue, followerValue decimal.Decimal) (decimal.Decimal, error) {
	if followerValue.IsZero() {
		return decimal.Zero, ErrZeroPortfolioValue
	}
	ratio := leaderValue.Div(followerValue).Mul(ratioScale).Floor().Div(ratioScale)
	return ratio, nil
}
