// Package throttle enforces a minimum interval between collaborator
// invocations across every worker sharing a lease store.
package throttle

import (
	"context"
	"sync"
	"time"

	"autoninja/pkg/logx"
)

// DefaultScope is the lease scope shared by all collaborators unless
// per-collaborator throttling is configured.
const DefaultScope = "global"

// Lease records the last granted invocation for a scope.
type Lease struct {
	// LastInvocation is the instant the last slot was granted, UTC.
	LastInvocation time.Time
	// Holder identifies who took the slot, for diagnostics only.
	Holder string
}

// LeaseStore persists invocation leases. Implementations must make
// CompareAndSwap atomic: two callers observing the same old lease must not
// both succeed.
type LeaseStore interface {
	// Load returns the current lease for a scope. A zero Lease with nil
	// error means no invocation has been recorded yet.
	Load(ctx context.Context, scope string) (Lease, error)
	// CompareAndSwap replaces the lease only if the stored value still
	// matches old. Returns false with nil error when the lease moved.
	CompareAndSwap(ctx context.Context, scope string, old, updated Lease) (bool, error)
}

// Throttle grants invocation slots no closer than MinInterval apart.
type Throttle struct {
	store    LeaseStore
	interval time.Duration
	caller   string
	logger   *logx.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Throttle.
type Option func(*Throttle)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Throttle) { t.now = now }
}

// WithSleeper overrides the sleep function, for tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Throttle) { t.sleep = sleep }
}

// New creates a throttle over a lease store. caller tags granted leases for
// diagnostics (typically hostname or worker id).
func New(store LeaseStore, interval time.Duration, caller string, opts ...Option) *Throttle {
	t := &Throttle{
		store:    store,
		interval: interval,
		caller:   caller,
		logger:   logx.NewLogger("throttle"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Interval returns the configured minimum spacing.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// CheckAndWait blocks until an invocation slot is available for the scope,
// then claims it. On return with nil error the caller owns the slot and the
// lease timestamp has been advanced.
//
// When the lease store is unreachable the throttle fails toward
// over-throttling: it sleeps the full interval before letting the caller
// proceed, so a store outage can never produce a burst of invocations.
func (t *Throttle) CheckAndWait(ctx context.Context, scope string) error {
	if scope == "" {
		scope = DefaultScope
	}

	for {
		lease, err := t.store.Load(ctx, scope)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("lease store unreachable for scope %s, sleeping full interval: %v", scope, err)
			return t.sleep(ctx, t.interval)
		}

		now := t.now().UTC()
		if !lease.LastInvocation.IsZero() {
			elapsed := now.Sub(lease.LastInvocation)
			if remaining := t.interval - elapsed; remaining > 0 {
				t.logger.Debug("scope %s throttled, waiting %s (held by %s)", scope, remaining, lease.Holder)
				if err := t.sleep(ctx, remaining); err != nil {
					return err
				}
				now = t.now().UTC()
			}
		}

		ok, err := t.store.CompareAndSwap(ctx, scope, lease, Lease{
			LastInvocation: now,
			Holder:         t.caller,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("lease swap failed for scope %s, sleeping full interval: %v", scope, err)
			return t.sleep(ctx, t.interval)
		}
		if ok {
			t.logger.Debug("scope %s slot granted to %s", scope, t.caller)
			return nil
		}
		// Someone else took the slot while we slept. Re-read and wait again.
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryLeaseStore is an in-process LeaseStore, used by tests and the
// single-node dev mode.
type MemoryLeaseStore struct {
	mu     sync.Mutex
	leases map[string]Lease
}

// NewMemoryLeaseStore creates an empty in-memory lease store.
func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{leases: make(map[string]Lease)}
}

// Load implements LeaseStore.
func (m *MemoryLeaseStore) Load(_ context.Context, scope string) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases[scope], nil
}

// CompareAndSwap implements LeaseStore.
func (m *MemoryLeaseStore) CompareAndSwap(_ context.Context, scope string, old, updated Lease) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.leases[scope]
	if !current.LastInvocation.Equal(old.LastInvocation) || current.Holder != old.Holder {
		return false, nil
	}
	m.leases[scope] = updated
	return true, nil
}
