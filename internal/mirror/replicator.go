package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/engine"
	"github.com/Checker-Finance/mirror-adapter/internal/metrics"
	"github.com/Checker-Finance/mirror-adapter/internal/pricing"
	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// ErrLeaderNotInTrade marks an event that does not involve the subscribed
// leader. This is a normal filtering outcome, not a failure: notification
// feeds deliver every trade on the watched accounts and only those where the
// leader was maker or taker are mirrored.
var ErrLeaderNotInTrade = errors.New("trade does not involve the subscribed leader")

// Replication describes one executed incremental mirror order.
type Replication struct {
	Signature venue.TxSignature
	Product   model.ProductID
	IsBid     bool
	Price     model.Fractional
	Size      model.Fractional
	Ratio     string
}

// ReplicateTrade mirrors a single observed leader trade for the follower,
// proportionally to the ratio captured at the last full reconciliation. No
// snapshot diff is involved. A nil Replication with nil error means the
// event was validly ignored (zero ratio, or size truncated to zero).
func (s *Service) ReplicateTrade(ctx context.Context, follower model.AccountID, event *model.TradeEvent) (*Replication, error) {
	if err := event.Validate(); err != nil {
		metrics.IncTradeEvent("rejected")
		return nil, err
	}

	sub, ok := s.registry.get(follower)
	if !ok {
		metrics.IncTradeEvent("rejected")
		return nil, ErrNoSubscription
	}

	// Same single-writer lock as full reconciliation: the replicator reads
	// the shared ratio and touches the same open-order set.
	sub.runMu.Lock()
	defer sub.runMu.Unlock()

	if sub.cancelled() {
		return nil, context.Canceled
	}

	leader := sub.view().Leader
	if !event.Involves(leader) {
		metrics.IncTradeEvent("filtered")
		return nil, fmt.Errorf("%w: maker=%s taker=%s leader=%s",
			ErrLeaderNotInTrade, event.Maker, event.Taker, leader)
	}

	ratio := sub.currentRatio()
	if ratio.IsZero() {
		s.logger.Info("replicate.zero_ratio",
			zap.String("follower", string(follower)),
			zap.String("product", event.Product))
		metrics.IncTradeEvent("filtered")
		return nil, nil
	}

	// floor(baseSize * ratio * 10) / 10, carried directly as the mantissa.
	size := engine.SizeFractional(event.BaseSize.Mul(ratio))
	if size.Mantissa == 0 {
		s.logger.Info("replicate.size_truncated_to_zero",
			zap.String("product", event.Product),
			zap.String("base_size", event.BaseSize.String()),
			zap.String("ratio", ratio.String()))
		metrics.IncTradeEvent("filtered")
		return nil, nil
	}

	// The follower takes the leader's side of the trade, adjusted for which
	// role the leader played: a leader-maker filled by an ask taker was
	// buying, and so is the follower.
	leaderWasMaker := event.Maker == string(leader)
	takerSoldInto := strings.ToLower(event.TakerSide) == model.TakerSideAsk
	isBid := takerSoldInto == leaderWasMaker

	price := engine.PriceFractional(pricing.ApplySlippage(event.Price, isBid))

	products, err := s.catalog.Products(ctx)
	if err != nil {
		metrics.IncTradeEvent("error")
		return nil, fmt.Errorf("product universe: %w", err)
	}
	product, ok := resolveProduct(products, event.Product)
	if !ok {
		metrics.IncTradeEvent("rejected")
		return nil, fmt.Errorf("unknown product %q", event.Product)
	}

	order := model.OrderRequest{
		ProductIndex: product.Index,
		Product:      product.Name,
		IsBid:        isBid,
		Price:        price,
		Size:         size,
	}

	s.logger.Info("replicate.order",
		zap.String("product", string(product.Name)),
		zap.Int("product_index", product.Index),
		zap.Bool("is_bid", isBid),
		zap.String("price", price.Decimal().String()),
		zap.String("size", size.Decimal().String()),
		zap.String("ratio", ratio.String()))

	sig, err := s.gateway.Execute(ctx, order)
	if err != nil {
		metrics.IncTradeEvent("error")
		return nil, err
	}

	metrics.IncTradeEvent("replicated")
	metrics.IncOrdersSynthesized("replicate", 1)

	s.journalOrders(ctx, follower, leader, []model.OrderRequest{order}, "replicate", sig)

	if s.publisher != nil {
		ev := model.TradeReplicatedEvent{
			Signature: string(sig),
			Product:   string(product.Name),
			Side:      order.Side(),
			Price:     price,
			Size:      size,
			Ratio:     ratio.String(),
		}
		if err := s.publisher.PublishTradeReplicated(ctx, ev, follower, leader); err != nil {
			s.logger.Warn("replicate.publish_failed", zap.Error(err))
		}
	}

	return &Replication{
		Signature: sig,
		Product:   product.Name,
		IsBid:     isBid,
		Price:     price,
		Size:      size,
		Ratio:     ratio.String(),
	}, nil
}
