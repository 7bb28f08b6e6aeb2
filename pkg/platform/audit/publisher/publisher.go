// Package publisher emits audit events to a store, either synchronously or
// through a buffered background worker, and mirrors them to optional sinks.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "copyright/pkg/platform/audit"
	"copyright/pkg/platform/audit/worker"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

type Publisher struct {
	out    *fanout
	logger *slog.Logger

	bufferSize int
	inbox      chan audit.Event
	done       chan struct{}
	cancel     context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with a buffer of n
// events. Emit never blocks in async mode; a full buffer drops the event.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSink mirrors every persisted event to sink.
func WithSink(sink audit.Sink) Option {
	return func(p *Publisher) {
		if sink != nil {
			p.out.sinks = append(p.out.sinks, sink)
		}
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{out: &fanout{store: store}}
	for _, opt := range opts {
		opt(p)
	}
	p.out.logger = p.logger

	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		w := worker.NewWorker(p.out, p.inbox, p.logger)
		go func() {
			defer close(p.done)
			_ = w.Run(ctx)
		}()
	}
	return p
}

// Emit records event. The category is derived from the action when unset and
// the timestamp defaults to now.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	if p.inbox == nil {
		return p.out.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit buffer full, dropping event",
				"action", event.Action,
				"transaction_id", event.TransactionID,
			)
		}
		return ErrBufferFull
	}
}

// List returns the events recorded for subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.out.store.ListBySubject(ctx, subject)
}

// Recent returns the last limit events.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.out.store.ListRecent(ctx, limit)
}

// Close drains buffered events and stops the background worker. When ctx ends
// first the worker is cancelled, the events still buffered are dropped and
// the context error is returned.
func (p *Publisher) Close(ctx context.Context) error {
	if p.inbox == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.inbox)
	p.mu.Unlock()

	select {
	case <-p.done:
		p.cancel()
		return nil
	case <-ctx.Done():
	}
	p.cancel()
	<-p.done
	dropped := len(p.inbox)
	if p.logger != nil {
		p.logger.WarnContext(ctx, "audit drain interrupted, dropping buffered events",
			"dropped", dropped,
			"error", ctx.Err(),
		)
	}
	return fmt.Errorf("drain audit buffer: %w", ctx.Err())
}

// fanout persists to the store first, then copies to each sink.
type fanout struct {
	store  audit.Store
	sinks  []audit.Sink
	logger *slog.Logger
}

func (f *fanout) Append(ctx context.Context, event audit.Event) error {
	if err := f.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range f.sinks {
		if err := sink.Append(ctx, event); err != nil && f.logger != nil {
			f.logger.WarnContext(ctx, "audit sink rejected event",
				"action", event.Action,
				"transaction_id", event.TransactionID,
				"error", err,
			)
		}
	}
	return nil
}

func (f *fanout) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return f.store.ListBySubject(ctx, subject)
}

func (f *fanout) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return f.store.ListRecent(ctx, limit)
}
