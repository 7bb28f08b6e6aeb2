// Package replay remembers transaction IDs that were already submitted so a
// retried or duplicated transaction is applied at most once.
package replay

import (
	"context"
	"sync"
	"time"

	id "copyright/pkg/domain"
)

const (
	// DefaultTTL bounds how long a transaction ID is remembered.
	DefaultTTL = 24 * time.Hour
	// DefaultSweepInterval is how often Claim drops expired IDs.
	DefaultSweepInterval = time.Minute
)

// InMemoryGuard keeps claimed transaction IDs in process memory.
type InMemoryGuard struct {
	mu         sync.Mutex
	ttl        time.Duration
	sweepEvery time.Duration
	nextSweep  time.Time
	now        func() time.Time
	claims     map[id.TransactionID]time.Time
}

type InMemoryOption func(*InMemoryGuard)

func WithTTL(ttl time.Duration) InMemoryOption {
	return func(g *InMemoryGuard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithSweepInterval sets how often expired claims are purged. Expired claims
// never block a new claim, so the interval only bounds memory.
func WithSweepInterval(d time.Duration) InMemoryOption {
	return func(g *InMemoryGuard) {
		if d > 0 {
			g.sweepEvery = d
		}
	}
}

func WithClock(now func() time.Time) InMemoryOption {
	return func(g *InMemoryGuard) {
		if now != nil {
			g.now = now
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemoryGuard {
	g := &InMemoryGuard{
		ttl:        DefaultTTL,
		sweepEvery: DefaultSweepInterval,
		now:        time.Now,
		claims:     make(map[id.TransactionID]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Claim records txID and reports whether this was the first claim within the
// TTL window.
func (g *InMemoryGuard) Claim(_ context.Context, txID id.TransactionID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expires, ok := g.claims[txID]; ok && now.Before(expires) {
		return false, nil
	}
	g.claims[txID] = now.Add(g.ttl)
	if !now.Before(g.nextSweep) {
		g.sweep(now)
		g.nextSweep = now.Add(g.sweepEvery)
	}
	return true, nil
}

// Release forgets txID so the transaction can be submitted again.
func (g *InMemoryGuard) Release(_ context.Context, txID id.TransactionID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claims, txID)
	return nil
}

// sweep drops expired claims. Called with mu held.
func (g *InMemoryGuard) sweep(now time.Time) {
	for txID, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, txID)
		}
	}
}
