package audit

import "context"

// Store persists audit events and serves them back for inspection.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

// Sink receives a copy of every persisted event, e.g. a message broker.
// Sink failures never fail the emitting operation.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
