package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/httpclient"
	"github.com/Checker-Finance/mirror-adapter/internal/rate"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// ErrPriceUnavailable is returned when the feed has no price entries for a
// product. The affected product is skipped for the pass, never escalated.
var ErrPriceUnavailable = errors.New("no mark price available")

// markPricesResponse mirrors the feed's wire format:
// GET /mark_prices?product=<id> -> {"mark_prices": [{"mark_price": "..."}]}
// An empty array is a valid "unavailable" response, not an error status.
type markPricesResponse struct {
	MarkPrices []markPriceEntry `json:"mark_prices"`
}

type markPriceEntry struct {
	MarkPrice string `json:"mark_price"`
}

// Feed queries the external market data feed for reference (mark) prices.
type Feed struct {
	logger  *zap.Logger
	exec    *httpclient.Executor
	baseURL string
}

// NewFeed constructs a mark price feed client.
func NewFeed(logger *zap.Logger, rateMgr *rate.Manager, baseURL string, timeout time.Duration) *Feed {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, 2, "feed", nil)
	return &Feed{
		logger:  logger,
		exec:    exec,
		baseURL: baseURL,
	}
}

// MarkPrice fetches the current reference price for a product.
func (f *Feed) MarkPrice(ctx context.Context, product model.ProductID) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/mark_prices?product=%s", f.baseURL, url.QueryEscape(string(product)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	var resp markPricesResponse
	if err := f.exec.DoJSON(ctx, req, "feed:"+f.baseURL, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("mark price fetch for %q: %w", product, err)
	}

	if len(resp.MarkPrices) == 0 {
		f.logger.Debug("feed.price_unavailable",
			zap.String("product", string(product)))
		return decimal.Zero, fmt.Errorf("product %q: %w", product, ErrPriceUnavailable)
	}

	price, err := decimal.NewFromString(resp.MarkPrices[0].MarkPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid mark price %q for %q: %w",
			resp.MarkPrices[0].MarkPrice, product, err)
	}
	return price, nil
}
