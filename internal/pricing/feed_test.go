package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/rate"
)

func testRateManager() *rate.Manager {
	return rate.NewManager(rate.Config{
		RequestsPerSecond: 100,
		Burst:             100,
		Cooldown:          time.Millisecond,
	})
}

func TestFeed_MarkPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mark_prices", r.URL.Path)
		assert.Equal(t, "BTCUSD-PERP", r.URL.Query().Get("product"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mark_prices":[{"mark_price":"101.25"},{"mark_price":"999"}]}`))
	}))
	defer srv.Close()

	feed := NewFeed(zap.NewNop(), testRateManager(), srv.URL, 2*time.Second)

	price, err := feed.MarkPrice(context.Background(), "BTCUSD-PERP")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("101.25")), "got %s", price)
}

func TestFeed_MarkPrice_EmptyArrayIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mark_prices":[]}`))
	}))
	defer srv.Close()

	feed := NewFeed(zap.NewNop(), testRateManager(), srv.URL, 2*time.Second)

	_, err := feed.MarkPrice(context.Background(), "BTCUSD-PERP")
	require.ErrorIs(t, err, ErrPriceUnavailable)
}

func TestFeed_MarkPrice_MalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mark_prices":[{"mark_price":"not-a-number"}]}`))
	}))
	defer srv.Close()

	feed := NewFeed(zap.NewNop(), testRateManager(), srv.URL, 2*time.Second)

	_, err := feed.MarkPrice(context.Background(), "BTCUSD-PERP")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPriceUnavailable)
}

func TestApplySlippage(t *testing.T) {
	ref := decimal.NewFromInt(100)

	bid := ApplySlippage(ref, true)
	ask := ApplySlippage(ref, false)

	assert.True(t, bid.Equal(decimal.NewFromInt(105)), "got %s", bid)
	assert.True(t, ask.Equal(decimal.NewFromInt(95)), "got %s", ask)
}

func TestApplySlippage_Idempotent(t *testing.T) {
	ref := decimal.RequireFromString("101.25")
	assert.True(t, ApplySlippage(ref, true).Equal(ApplySlippage(ref, true)))
}
