package replay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g := NewInMemory(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	ok, err := g.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok, "first claim wins")

	ok, err = g.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, ok, "replay inside the window")

	require.NoError(t, g.Release(ctx, "tx-1"))
	ok, err = g.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok, "released id can be claimed again")

	now = now.Add(time.Minute)
	ok, err = g.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok, "expired claim is forgotten")
}

func TestInMemoryGuard_SweepsOnInterval(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	g := NewInMemory(
		WithTTL(10*time.Second),
		WithSweepInterval(time.Minute),
		WithClock(func() time.Time { return now }),
	)

	_, err := g.Claim(ctx, "tx-1")
	require.NoError(t, err)

	now = start.Add(20 * time.Second)
	_, err = g.Claim(ctx, "tx-2")
	require.NoError(t, err)
	assert.Len(t, g.claims, 2, "expired tx-1 waits for the next sweep")

	ok, err := g.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, ok, "an unswept expired claim does not block")

	now = start.Add(61 * time.Second)
	_, err = g.Claim(ctx, "tx-3")
	require.NoError(t, err)
	assert.Len(t, g.claims, 1, "sweep drops every expired claim")
}

func TestInMemoryGuard_ConcurrentClaims(t *testing.T) {
	g := NewInMemory()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Claim(context.Background(), "tx-race"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
