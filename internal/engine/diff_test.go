package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

func positions(pairs map[string]string) map[model.ProductID]decimal.Decimal {
	out := make(map[model.ProductID]decimal.Decimal, len(pairs))
	for k, v := range pairs {
		out[model.ProductID(k)] = decimal.RequireFromString(v)
	}
	return out
}

func TestDiffPositions_FollowerFlat(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "5"})
	follower := positions(map[string]string{})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(2))

	require.Len(t, adj, 1)
	assert.Equal(t, model.ProductID("BTC-PERP"), adj[0].Product)
	assert.True(t, adj[0].IsBid)
	assert.True(t, adj[0].Size.Equal(decimal.NewFromInt(10)), "got %s", adj[0].Size)
}

func TestDiffPositions_FollowerOverExposed(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "5"})
	follower := positions(map[string]string{"BTC-PERP": "12"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(2))

	require.Len(t, adj, 1)
	assert.Equal(t, model.ProductID("BTC-PERP"), adj[0].Product)
	assert.False(t, adj[0].IsBid)
	assert.True(t, adj[0].Size.Equal(decimal.NewFromInt(2)), "got %s", adj[0].Size)
}

func TestDiffPositions_UnwindsShortTheLeaderDropped(t *testing.T) {
	leader := positions(map[string]string{})
	follower := positions(map[string]string{"ETH-PERP": "-3"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(1))

	require.Len(t, adj, 1)
	assert.Equal(t, model.ProductID("ETH-PERP"), adj[0].Product)
	assert.True(t, adj[0].IsBid, "closing a short buys back")
	assert.True(t, adj[0].Size.Equal(decimal.NewFromInt(3)))
}

func TestDiffPositions_UnwindsLongTheLeaderDropped(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "1"})
	follower := positions(map[string]string{"SOL-PERP": "4"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(1))

	require.Len(t, adj, 2)
	assert.Equal(t, model.ProductID("BTC-PERP"), adj[0].Product)
	assert.Equal(t, model.ProductID("SOL-PERP"), adj[1].Product)
	assert.False(t, adj[1].IsBid, "closing a long sells")
	assert.True(t, adj[1].Size.Equal(decimal.NewFromInt(4)))
}

func TestDiffPositions_ExactProportionProducesNothing(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "5", "ETH-PERP": "-2"})
	follower := positions(map[string]string{"BTC-PERP": "10", "ETH-PERP": "-4"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(2))
	assert.Empty(t, adj)
}

func TestDiffPositions_SkipsZeroLeaderPositions(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "0"})
	follower := positions(map[string]string{})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(2))
	assert.Empty(t, adj)
}

func TestDiffPositions_EachProductAppearsOnce(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "5", "ETH-PERP": "1"})
	follower := positions(map[string]string{"BTC-PERP": "3", "SOL-PERP": "2"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(1))

	seen := map[model.ProductID]int{}
	for _, a := range adj {
		seen[a.Product]++
	}
	for product, count := range seen {
		assert.Equal(t, 1, count, "product %s emitted %d times", product, count)
	}
	require.Len(t, adj, 3)
}

func TestDiffPositions_NegativeLeaderPosition(t *testing.T) {
	leader := positions(map[string]string{"ETH-PERP": "-4"})
	follower := positions(map[string]string{})

	adj := DiffPositions(leader, follower, decimal.RequireFromString("0.5"))

	require.Len(t, adj, 1)
	assert.False(t, adj[0].IsBid)
	assert.True(t, adj[0].Size.Equal(decimal.NewFromInt(2)))
}

func TestDiffPositions_DeterministicOrdering(t *testing.T) {
	leader := positions(map[string]string{"C": "1", "A": "1", "B": "1"})
	follower := positions(map[string]string{"Z": "1", "X": "1"})

	adj := DiffPositions(leader, follower, decimal.NewFromInt(1))

	require.Len(t, adj, 5)
	var got []model.ProductID
	for _, a := range adj {
		got = append(got, a.Product)
	}
	assert.Equal(t, []model.ProductID{"A", "B", "C", "X", "Z"}, got)
}

func TestDiffPositions_DoesNotMutateInputs(t *testing.T) {
	leader := positions(map[string]string{"BTC-PERP": "5"})
	follower := positions(map[string]string{"BTC-PERP": "3", "ETH-PERP": "1"})

	DiffPositions(leader, follower, decimal.NewFromInt(1))

	assert.Len(t, follower, 2)
	assert.True(t, follower["BTC-PERP"].Equal(decimal.NewFromInt(3)))
}
