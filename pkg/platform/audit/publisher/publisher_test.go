package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "copyright/pkg/platform/audit"
	"copyright/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer func() { _ = pub.Close(context.Background()) }()

	err := pub.Emit(context.Background(), audit.Event{
		Subject: "Dan-Selman",
		Action:  string(audit.EventPersonRegistered),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "Dan-Selman")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventPersonRegistered), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category, "category derived from action")
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			Subject: "Song-Buyer",
			Action:  string(audit.EventSongPurchased),
		})
		require.NoError(t, err)
	}

	require.NoError(t, pub.Close(context.Background()))

	events, err := store.ListBySubject(context.Background(), "Song-Buyer")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")

	err = pub.Emit(context.Background(), audit.Event{Subject: "Song-Buyer"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer func() { _ = pub.Close(context.Background()) }()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{
				Subject: "Song-Buyer",
				Action:  string(audit.EventSongPurchased),
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_CancelledContext(t *testing.T) {
	pub := NewPublisher(memory.NewInMemoryStore(), WithAsyncBuffer(1))
	defer func() { _ = pub.Close(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pub.Emit(ctx, audit.Event{Subject: "Song-Buyer"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublisher_Timestamps(t *testing.T) {
	t.Run("sets timestamp when missing", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore())
		before := time.Now()
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "Dan-Selman"}))
		after := time.Now()

		events, err := pub.List(context.Background(), "Dan-Selman")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.False(t, events[0].Timestamp.Before(before))
		assert.False(t, events[0].Timestamp.After(after))
	})

	t.Run("preserves existing timestamp", func(t *testing.T) {
		pub := NewPublisher(memory.NewInMemoryStore())
		custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "Dan-Selman", Timestamp: custom}))

		events, err := pub.List(context.Background(), "Dan-Selman")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, custom, events[0].Timestamp)
	})
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (s *recordingSink) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

// stalledSink blocks every append until its context ends.
type stalledSink struct {
	mu    sync.Mutex
	calls int
}

func (s *stalledSink) Append(ctx context.Context, _ audit.Event) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *stalledSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestPublisher_CloseIsBoundedByContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	sink := &stalledSink{}
	pub := NewPublisher(store, WithAsyncBuffer(10), WithSink(sink))

	for range 3 {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{
			Subject: "Song-Buyer",
			Action:  string(audit.EventSongPurchased),
		}))
	}
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := pub.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "close returns once its context ends")

	events, err := store.ListBySubject(context.Background(), "Song-Buyer")
	require.NoError(t, err)
	assert.Len(t, events, 1, "event reached the store before the sink stalled")

	assert.NoError(t, pub.Close(context.Background()), "second close is a no-op")
}

func TestPublisher_Sinks(t *testing.T) {
	t.Run("mirrors to sink", func(t *testing.T) {
		sink := &recordingSink{}
		pub := NewPublisher(memory.NewInMemoryStore(), WithSink(sink))
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "Song-Buyer"}))
		assert.Len(t, sink.events, 1)
	})

	t.Run("sink failure does not fail emit", func(t *testing.T) {
		sink := &recordingSink{err: errors.New("broker down")}
		store := memory.NewInMemoryStore()
		pub := NewPublisher(store, WithSink(sink))
		require.NoError(t, pub.Emit(context.Background(), audit.Event{Subject: "Song-Buyer"}))

		events, err := store.ListBySubject(context.Background(), "Song-Buyer")
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}
