package seed

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	"copyright/internal/ledger/ports"
	"copyright/pkg/platform/audit"
	"copyright/pkg/requestcontext"
)

// AuditPublisher receives the fixtures_loaded event.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Loader loads fixtures into one registry and records each load.
type Loader struct {
	registry       ports.RegistryTx
	auditPublisher AuditPublisher
	logger         *slog.Logger
}

type LoaderOption func(*Loader)

func WithAuditPublisher(p AuditPublisher) LoaderOption {
	return func(l *Loader) {
		l.auditPublisher = p
	}
}

func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

func NewLoader(registry ports.RegistryTx, opts ...LoaderOption) *Loader {
	l := &Loader{registry: registry}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seed loads the fixture read from r. source names it in the audit trail.
func (l *Loader) Seed(ctx context.Context, source string, r io.Reader) (Summary, error) {
	summary, err := Load(ctx, l.registry, r)
	if err != nil {
		if l.logger != nil {
			l.logger.WarnContext(ctx, "fixture rejected",
				"source", source,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return Summary{}, err
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "fixture loaded",
			"source", source,
			"records", summary.Total(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if l.auditPublisher != nil {
		event := audit.Event{
			Action:    string(audit.EventFixturesLoaded),
			Subject:   source,
			Decision:  audit.DecisionApplied,
			Reason:    strconv.Itoa(summary.Total()) + " records",
			RequestID: requestcontext.RequestID(ctx),
			ActorID:   requestcontext.ClientIP(ctx),
		}
		if err := l.auditPublisher.Emit(ctx, event); err != nil && l.logger != nil {
			l.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
		}
	}
	return summary, nil
}
