package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/mirror-adapter/pkg/model"
)

// ErrNoSubscription is returned when an operation requires an active leader
// subscription and none exists for the follower.
var ErrNoSubscription = errors.New("no active subscription")

// Subscription is a read-only view of one follower's mirroring state.
type Subscription struct {
	Follower         model.AccountID
	Leader           model.AccountID
	Ratio            decimal.Decimal
	LastReconciledAt time.Time
}

// subscription holds the live state for one follower. runMu is the
// single-writer lock: full reconciliation passes and per-trade replication
// for the same follower serialize on it, so the shared ratio is never read
// mid-update and the venue's open-order set is never touched concurrently.
type subscription struct {
	runMu sync.Mutex

	mu               sync.RWMutex
	follower         model.AccountID
	leader           model.AccountID
	ratio            decimal.Decimal
	lastReconciledAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *subscription) view() Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Subscription{
		Follower:         s.follower,
		Leader:           s.leader,
		Ratio:            s.ratio,
		LastReconciledAt: s.lastReconciledAt,
	}
}

func (s *subscription) setRatio(ratio decimal.Decimal) {
	s.mu.Lock()
	s.ratio = ratio
	s.mu.Unlock()
}

func (s *subscription) currentRatio() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratio
}

func (s *subscription) touchReconciled(t time.Time) {
	s.mu.Lock()
	s.lastReconciledAt = t
	s.mu.Unlock()
}

// cancelled reports whether the subscription has been torn down. Checked at
// the start of each unit of work; in-flight work is allowed to finish on the
// ratio it captured.
func (s *subscription) cancelled() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Registry is the typed subscription registry, keyed by follower account.
type Registry struct {
	mu   sync.RWMutex
	subs map[model.AccountID]*subscription
}

// NewRegistry creates an empty subscription registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[model.AccountID]*subscription)}
}

// Subscribe registers (or replaces) the leader subscription for a follower.
// Replacing cancels the previous subscription first.
func (r *Registry) Subscribe(parent context.Context, follower, leader model.AccountID) Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.subs[follower]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	sub := &subscription{
		follower: follower,
		leader:   leader,
		ratio:    decimal.Zero,
		ctx:      ctx,
		cancel:   cancel,
	}
	r.subs[follower] = sub
	return sub.view()
}

// Unsubscribe tears down the follower's subscription. Safe to call while a
// reconciliation is in flight: the cancel is observed before any new work
// starts, and the in-flight pass completes on its captured ratio.
func (r *Registry) Unsubscribe(follower model.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[follower]
	if !ok {
		return ErrNoSubscription
	}
	sub.cancel()
	delete(r.subs, follower)
	return nil
}

// View returns a read-only snapshot of the follower's subscription.
func (r *Registry) View(follower model.AccountID) (Subscription, bool) {
	sub, ok := r.get(follower)
	if !ok {
		return Subscription{}, false
	}
	return sub.view(), true
}

// Followers lists all accounts with an active subscription.
func (r *Registry) Followers() []model.AccountID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.AccountID, 0, len(r.subs))
	for k := range r.subs {
		out = append(out, k)
	}
	return out
}

func (r *Registry) get(follower model.AccountID) (*subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[follower]
	return sub, ok
}
