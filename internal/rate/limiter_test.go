package rate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_BurstThenDeny(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 10,
		Burst:             5,
		Cooldown:          100 * time.Millisecond,
	})

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed)
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 100,
		Burst:             2,
	})

	for lim.Allow() {
	}

	time.Sleep(50 * time.Millisecond)
	assert.True(t, lim.Allow())
}

func TestLimiter_TokensCappedAtBurst(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 1000,
		Burst:             3,
	})

	time.Sleep(100 * time.Millisecond)

	allowed := 0
	for i := 0; i < 10; i++ {
		if lim.Allow() {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 3)
}

func TestLimiter_WaitUnblocksOnRefill(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 100,
		Burst:             1,
	})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, lim.Wait(ctx))
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	lim := New(Config{
		RequestsPerSecond: 1,
		Burst:             1,
	})
	lim.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, lim.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_ReusesLimiterPerKey(t *testing.T) {
	mgr := NewManager(Config{RequestsPerSecond: 10, Burst: 5})

	a := mgr.GetLimiter("venue:rpc-1")
	b := mgr.GetLimiter("venue:rpc-1")
	c := mgr.GetLimiter("feed:hxro")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}
