package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/mirror-adapter/internal/metrics"
	"github.com/Checker-Finance/mirror-adapter/internal/venue"
	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// Gateway owns order submission against the venue: stale-order cancellation,
// mark-price refresh bundling, atomic batch submission, and the single
// retry on transient rate limiting.
type Gateway struct {
	logger       *zap.Logger
	client       venue.ExecutionClient
	retryBackoff time.Duration
}

// New constructs an execution gateway. retryBackoff is the fixed delay
// before the one retry granted on venue rate limiting.
func New(logger *zap.Logger, client venue.ExecutionClient, retryBackoff time.Duration) *Gateway {
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}
	return &Gateway{
		logger:       logger,
		client:       client,
		retryBackoff: retryBackoff,
	}
}

// Reconcile submits a full reconciliation batch. Ordering is fixed:
//
//  1. refresh connection state and the address lookup table (the venue
//     rejects instructions built against a stale table),
//  2. cancel all open orders across the product universe, so stale resting
//     orders can't double up with the new ones,
//  3. prepend one mark-price-refresh instruction to the order instructions,
//  4. submit everything as a single atomic transaction.
//
// An empty order list returns an empty signature without submitting —
// an empty batch would only burn transaction fees.
func (g *Gateway) Reconcile(ctx context.Context, universe []model.ProductID, orders []model.OrderRequest) (venue.TxSignature, error) {
	if err := g.refresh(ctx); err != nil {
		return "", err
	}

	if err := g.client.CancelAllOrders(ctx, universe); err != nil {
		return "", fmt.Errorf("cancel open orders: %w", err)
	}

	if len(orders) == 0 {
		g.logger.Info("gateway.reconcile.empty_batch")
		return "", nil
	}

	instructions := make([]venue.Instruction, 0, len(orders)+1)
	instructions = append(instructions, g.client.UpdateMarkPricesInstruction(universe))
	for _, order := range orders {
		instructions = append(instructions, g.client.NewOrderInstruction(order))
	}

	return g.send(ctx, instructions)
}

// Execute submits one incremental mirror order (the replicator path). No
// cancellation happens here; the order rides alongside a mark-price refresh
// for its product, mark prices first.
func (g *Gateway) Execute(ctx context.Context, order model.OrderRequest) (venue.TxSignature, error) {
	if err := g.refresh(ctx); err != nil {
		return "", err
	}

	instructions := []venue.Instruction{
		g.client.UpdateMarkPricesInstruction([]model.ProductID{order.Product}),
		g.client.NewOrderInstruction(order),
	}
	return g.send(ctx, instructions)
}

func (g *Gateway) refresh(ctx context.Context) error {
	if err := g.client.Connect(ctx); err != nil {
		return fmt.Errorf("venue connect: %w", err)
	}
	if err := g.client.RefreshLookupTable(ctx); err != nil {
		return fmt.Errorf("refresh lookup table: %w", err)
	}
	return nil
}

// send submits the batch, retrying exactly once after a fixed backoff when
// the venue rate-limits. Any other failure is surfaced unretried.
func (g *Gateway) send(ctx context.Context, instructions []venue.Instruction) (venue.TxSignature, error) {
	start := time.Now()
	sig, err := g.client.SendBatch(ctx, instructions)
	if err == nil {
		metrics.IncVenueSubmission("ok")
		metrics.ObserveDuration(metrics.VenueSubmitLatency, start)
		return sig, nil
	}

	if !errors.Is(err, venue.ErrRateLimited) {
		metrics.IncVenueSubmission("error")
		return "", fmt.Errorf("batch submission: %w", err)
	}

	g.logger.Warn("gateway.rate_limited",
		zap.Duration("backoff", g.retryBackoff),
		zap.Int("instructions", len(instructions)))
	metrics.IncVenueSubmission("rate_limited")

	select {
	case <-time.After(g.retryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	sig, err = g.client.SendBatch(ctx, instructions)
	if err != nil {
		metrics.IncVenueSubmission("error")
		return "", fmt.Errorf("batch submission after rate-limit retry: %w", err)
	}
	metrics.IncVenueSubmission("ok")
	metrics.ObserveDuration(metrics.VenueSubmitLatency, start)
	return sig, nil
}
