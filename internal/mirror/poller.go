package mirror

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Poller drives scheduled reconciliation for every registered follower.
// Webhook-driven replication is the primary path; the poller is the
// periodic corrector that trues up drift between passes.
type Poller struct {
	logger   *zap.Logger
	service  *Service
	registry *Registry
	interval time.Duration
	stopCh   chan struct{}
}

// NewPoller constructs a reconcile poller.
func NewPoller(logger *zap.Logger, service *Service, registry *Registry, interval time.Duration) *Poller {
	return &Poller{
		logger:   logger,
		service:  service,
		registry: registry,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Stop signals the poller to stop gracefully.
func (p *Poller) Stop() {
	close(p.stopCh)
}

// Run reconciles all followers on each tick until the context is
// cancelled or Stop is called. Blocks; run in its own goroutine.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("mirror.poller_started",
		zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("mirror.poller_stopped",
				zap.String("reason", "context_cancelled"))
			return

		case <-p.stopCh:
			p.logger.Info("mirror.poller_stopped",
				zap.String("reason", "shutdown"))
			return

		case <-ticker.C:
			p.reconcileAll(ctx)
		}
	}
}

func (p *Poller) reconcileAll(ctx context.Context) {
	for _, follower := range p.registry.Followers() {
		if _, err := p.service.Reconcile(ctx, follower); err != nil {
			switch {
			case errors.Is(err, ErrNoSubscription):
				// Unsubscribed between listing and locking.
			case errors.Is(err, context.Canceled):
				// Subscription torn down mid-pass.
			default:
				p.logger.Error("mirror.reconcile_failed",
					zap.String("follower", string(follower)),
					zap.Error(err))
			}
		}
	}
}
