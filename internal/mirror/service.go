package mirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/engine"
	"github.com/Checker-Finance/mirror-adapter/internal/metrics"
	"github.com/Checker-Finance/mirror-adapter/internal/pricing"
	"github.com/Checker-Finance/mirror-adapter/internal/publisher"
	"github.com/Checker-Finance/mirror-adapter/internal/store"
	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/config"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// markPriceCacheTTL bounds staleness of the Redis mark-price mirror used by
// dashboards; order pricing always uses a fresh feed lookup.
const markPriceCacheTTL = 30 * time.Second

// SnapshotSource supplies per-account position snapshots.
type SnapshotSource interface {
	Positions(ctx context.Context, account model.AccountID) (*model.PositionSnapshot, error)
}

// PriceSource supplies reference (mark) prices per product.
type PriceSource interface {
	MarkPrice(ctx context.Context, product model.ProductID) (decimal.Decimal, error)
}

// ProductCatalog supplies the venue's current product universe.
type ProductCatalog interface {
	Products(ctx context.Context) ([]venue.Product, error)
}

// Executor is the execution gateway surface the service drives.
type Executor interface {
	Reconcile(ctx context.Context, universe []model.ProductID, orders []model.OrderRequest) (venue.TxSignature, error)
	Execute(ctx context.Context, order model.OrderRequest) (venue.TxSignature, error)
}

// SubscriptionRegistrar re-points the external trade-notification webhook at
// a new leader account. Optional collaborator.
type SubscriptionRegistrar interface {
	Register(ctx context.Context, leader model.AccountID) error
}

// Service orchestrates position mirroring for follower accounts: full
// snapshot reconciliation, per-trade replication, and subscription control.
type Service struct {
	ctx       context.Context
	cfg       *config.Config
	logger    *zap.Logger
	registry  *Registry
	snapshots SnapshotSource
	catalog   ProductCatalog
	prices    PriceSource
	gateway   Executor
	publisher *publisher.Publisher
	store     store.Store
	registrar SubscriptionRegistrar
}

// NewService constructs a fully wired mirror service. publisher, store and
// registrar are optional; nil disables the corresponding side effects.
func NewService(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	registry *Registry,
	snapshots SnapshotSource,
	catalog ProductCatalog,
	prices PriceSource,
	gw Executor,
	pub *publisher.Publisher,
	st store.Store,
	registrar SubscriptionRegistrar,
) *Service {
	return &Service{
		ctx:       ctx,
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		snapshots: snapshots,
		catalog:   catalog,
		prices:    prices,
		gateway:   gw,
		publisher: pub,
		store:     st,
		registrar: registrar,
	}
}

// Registry exposes the subscription registry (for handlers and runners).
func (s *Service) Registry() *Registry {
	return s.registry
}

// Subscribe moves the follower into Mirroring against the given leader. The
// external trade-notification webhook is re-pointed at the leader first;
// registration failure is logged but does not block the subscription (the
// periodic reconcile loop still converges without notifications).
func (s *Service) Subscribe(ctx context.Context, follower, leader model.AccountID) (Subscription, error) {
	if leader == "" {
		return Subscription{}, fmt.Errorf("no leader account was passed")
	}

	if s.registrar != nil {
		if err := s.registrar.Register(ctx, leader); err != nil {
			s.logger.Warn("mirror.webhook_registration_failed",
				zap.String("leader", string(leader)),
				zap.Error(err))
		}
	}

	sub := s.registry.Subscribe(s.ctx, follower, leader)
	s.logger.Info("mirror.subscribed",
		zap.String("follower", string(follower)),
		zap.String("leader", string(leader)))

	// Warm the ratio from the cache so per-trade replication can act before
	// the first full pass lands. The pass below recomputes it regardless.
	if s.store != nil {
		if cached, ok, err := s.store.GetCachedRatio(ctx, follower); err == nil && ok {
			if live, found := s.registry.get(follower); found {
				live.setRatio(cached)
			}
		}
	}

	// Align the follower with the leader right away; the pass runs on the
	// service context so it survives the HTTP request.
	go func() {
		if _, err := s.Reconcile(s.ctx, follower); err != nil {
			s.logger.Warn("mirror.initial_reconcile_failed",
				zap.String("follower", string(follower)),
				zap.Error(err))
		}
	}()

	return sub, nil
}

// Unsubscribe moves the follower back to Idle and discards ratio state.
func (s *Service) Unsubscribe(follower model.AccountID) error {
	if err := s.registry.Unsubscribe(follower); err != nil {
		return err
	}
	s.logger.Info("mirror.unsubscribed", zap.String("follower", string(follower)))
	return nil
}

// Reconcile runs one full reconciliation pass for the follower: snapshot
// both accounts, recompute the positioning ratio, diff, price, and submit.
// Returns the transaction signature, or empty when the pass produced no
// orders or was skipped. Skips (zero ratio, zero follower value) are not
// errors: partial mirroring beats total failure.
func (s *Service) Reconcile(ctx context.Context, follower model.AccountID) (venue.TxSignature, error) {
	sub, ok := s.registry.get(follower)
	if !ok {
		return "", ErrNoSubscription
	}

	sub.runMu.Lock()
	defer sub.runMu.Unlock()

	if sub.cancelled() {
		return "", context.Canceled
	}

	leader := sub.view().Leader
	start := time.Now()
	s.logger.Info("mirror.reconcile.start",
		zap.String("follower", string(follower)),
		zap.String("leader", string(leader)))

	followerSnap, err := s.snapshots.Positions(ctx, follower)
	if err != nil {
		metrics.IncReconcilePass("error")
		return "", fmt.Errorf("follower snapshot: %w", err)
	}
	leaderSnap, err := s.snapshots.Positions(ctx, leader)
	if err != nil {
		metrics.IncReconcilePass("error")
		return "", fmt.Errorf("leader snapshot: %w", err)
	}

	ratio, err := engine.PositioningRatio(leaderSnap.PortfolioValue, followerSnap.PortfolioValue)
	if err != nil {
		// No scaling possible; skip the pass rather than fail the subscription.
		s.logger.Warn("mirror.reconcile.skipped",
			zap.String("follower", string(follower)),
			zap.Error(err))
		metrics.IncReconcilePass("skipped")
		return "", nil
	}
	if ratio.IsZero() {
		s.logger.Info("mirror.reconcile.zero_ratio",
			zap.String("follower", string(follower)),
			zap.String("leader_value", leaderSnap.PortfolioValue.String()))
		metrics.IncReconcilePass("skipped")
		return "", nil
	}

	sub.setRatio(ratio)
	metrics.PositioningRatio.Set(ratio.InexactFloat64())
	s.logger.Info("mirror.positioning_ratio",
		zap.String("follower", string(follower)),
		zap.String("ratio", ratio.String()))

	if s.store != nil {
		if err := s.store.UpsertRatioSnapshot(ctx, follower, leader, ratio); err != nil {
			s.logger.Warn("mirror.ratio_persist_failed", zap.Error(err))
		}
	}

	adjustments := engine.DiffPositions(leaderSnap.Positions, followerSnap.Positions, ratio)

	products, err := s.catalog.Products(ctx)
	if err != nil {
		metrics.IncReconcilePass("error")
		return "", fmt.Errorf("product universe: %w", err)
	}
	universe := make([]model.ProductID, 0, len(products))
	byName := make(map[model.ProductID]venue.Product, len(products))
	for _, p := range products {
		universe = append(universe, p.Name)
		byName[p.Name] = p
	}

	orders, skipped := s.priceAdjustments(ctx, adjustments, byName)

	sig, err := s.gateway.Reconcile(ctx, universe, orders)
	if err != nil {
		metrics.IncReconcilePass("error")
		return "", err
	}

	now := time.Now().UTC()
	sub.touchReconciled(now)
	metrics.IncReconcilePass("ok")
	metrics.IncOrdersSynthesized("diff", len(orders))
	metrics.ObserveDuration(metrics.ReconcileDuration, start)
	metrics.SetLastReconcile(now)

	s.journalOrders(ctx, follower, leader, orders, "diff", sig)

	if s.publisher != nil {
		ev := model.ReconciledEvent{
			Signature:  string(sig),
			Orders:     len(orders),
			Skipped:    skipped,
			Ratio:      ratio.String(),
			FinishedAt: now,
		}
		if err := s.publisher.PublishReconciled(ctx, ev, follower, leader); err != nil {
			s.logger.Warn("mirror.publish_failed", zap.Error(err))
		}
	}

	s.logger.Info("mirror.reconcile.complete",
		zap.String("follower", string(follower)),
		zap.String("signature", string(sig)),
		zap.Int("orders", len(orders)),
		zap.Int("skipped", skipped),
		zap.Duration("elapsed", time.Since(start)))

	return sig, nil
}

// priceAdjustments turns adjustments into priced order requests. Products
// missing from the universe or without a feed price are skipped for this
// pass, not retried.
func (s *Service) priceAdjustments(
	ctx context.Context,
	adjustments []model.OrderAdjustment,
	byName map[model.ProductID]venue.Product,
) ([]model.OrderRequest, int) {
	var orders []model.OrderRequest
	skipped := 0

	for _, adj := range adjustments {
		product, ok := byName[adj.Product]
		if !ok {
			s.logger.Warn("mirror.unknown_product",
				zap.String("product", string(adj.Product)))
			skipped++
			continue
		}

		price, err := s.prices.MarkPrice(ctx, adj.Product)
		if err != nil {
			if errors.Is(err, pricing.ErrPriceUnavailable) {
				metrics.IncFeedLookup("unavailable")
			} else {
				metrics.IncFeedLookup("error")
			}
			s.logger.Warn("mirror.price_discovery_failed",
				zap.String("product", string(adj.Product)),
				zap.Error(err))
			skipped++
			continue
		}
		metrics.IncFeedLookup("ok")

		if s.store != nil {
			if err := s.store.CacheMarkPrice(ctx, adj.Product, price, markPriceCacheTTL); err != nil {
				s.logger.Debug("mirror.mark_price_cache_failed", zap.Error(err))
			}
		}

		slipped := pricing.ApplySlippage(price, adj.IsBid)
		order := engine.BuildOrder(adj, slipped, product.Index, product.BaseDecimals, "")

		s.logger.Info("mirror.adjusting_position",
			zap.String("product", string(adj.Product)),
			zap.String("size", adj.Size.StringFixed(1)),
			zap.String("side", order.Side()))

		orders = append(orders, order)
	}

	return orders, skipped
}

func (s *Service) journalOrders(ctx context.Context, follower, leader model.AccountID, orders []model.OrderRequest, path string, sig venue.TxSignature) {
	if s.store == nil {
		return
	}
	for _, order := range orders {
		ev := store.OrderEvent{
			Follower:  follower,
			Leader:    leader,
			Product:   order.Product,
			Side:      order.Side(),
			Price:     order.Price,
			Size:      order.Size,
			Path:      path,
			Signature: sig,
		}
		if err := s.store.RecordOrderEvent(ctx, ev); err != nil {
			s.logger.Warn("mirror.journal_failed",
				zap.String("product", string(order.Product)),
				zap.Error(err))
		}
	}
}

// resolveProduct finds the venue product whose normalized name contains the
// (possibly unpadded) event product fragment.
func resolveProduct(products []venue.Product, raw string) (venue.Product, bool) {
	fragment := string(model.NormalizeProduct(raw))
	for _, p := range products {
		if strings.Contains(string(p.Name), fragment) {
			return p, true
		}
	}
	return venue.Product{}, false
}
