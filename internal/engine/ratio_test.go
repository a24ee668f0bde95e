package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositioningRatio_ExactDivision(t *testing.T) {
	ratio, err := PositioningRatio(decimal.NewFromInt(2000), decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.NewFromInt(2)), "got %s", ratio)
}

func TestPositioningRatio_TruncatesToThreeDecimals(t *testing.T) {
	// 1000/3000 = 0.3333... -> 0.333, never 0.334
	ratio, err := PositioningRatio(decimal.NewFromInt(1000), decimal.NewFromInt(3000))
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.RequireFromString("0.333")), "got %s", ratio)

	// 2/3 = 0.6666... -> 0.666 (round half up would give 0.667)
	ratio, err = PositioningRatio(decimal.NewFromInt(2), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.RequireFromString("0.666")), "got %s", ratio)
}

func TestPositioningRatio_SmallLeaderTruncatesToZero(t *testing.T) {
	// 1/2000 = 0.0005 -> floor to 0.000
	ratio, err := PositioningRatio(decimal.NewFromInt(1), decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.True(t, ratio.IsZero(), "got %s", ratio)
}

func TestPositioningRatio_ZeroFollowerValue(t *testing.T) {
	_, err := PositioningRatio(decimal.NewFromInt(2000), decimal.Zero)
	require.ErrorIs(t, err, ErrZeroPortfolioValue)
}

func TestPositioningRatio_ZeroLeaderValue(t *testing.T) {
	ratio, err := PositioningRatio(decimal.Zero, decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.True(t, ratio.IsZero())
}
