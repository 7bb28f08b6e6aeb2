// Package processor is the host-side entry point for ledger transactions. It
// stamps each transaction with an ID and timestamp, refuses replays, and
// wraps the trust and purchase handlers with tracing, audit and metrics.
package processor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"copyright/internal/ledger/metrics"
	"copyright/internal/ledger/models"
	id "copyright/pkg/domain"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/audit"
	"copyright/pkg/platform/sentinel"
	"copyright/pkg/requestcontext"
)

const tracerName = "copyright/internal/ledger/processor"

// ErrReplayed is returned when a transaction ID was already submitted.
var ErrReplayed = dErrors.New(dErrors.CodeConflict, "transaction already submitted")

type TrustHandler interface {
	OnTrustPerson(ctx context.Context, tx models.TrustPerson) (*models.Person, error)
}

type PurchaseHandler interface {
	OnBuySong(ctx context.Context, tx models.BuySong) (*models.Receipt, error)
}

type ReplayGuard interface {
	Claim(ctx context.Context, txID id.TransactionID) (bool, error)
	Release(ctx context.Context, txID id.TransactionID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Processor struct {
	trust    TrustHandler
	purchase PurchaseHandler

	replay         ReplayGuard
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tracer         trace.Tracer
}

type Option func(*Processor)

func WithReplayGuard(g ReplayGuard) Option {
	return func(p *Processor) {
		p.replay = g
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(p *Processor) {
		p.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Processor) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

func New(trustHandler TrustHandler, purchaseHandler PurchaseHandler, opts ...Option) *Processor {
	p := &Processor{
		trust:    trustHandler,
		purchase: purchaseHandler,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SubmitTrustPerson applies a TrustPerson transaction.
func (p *Processor) SubmitTrustPerson(ctx context.Context, tx models.TrustPerson) (*models.Person, error) {
	tx.TransactionID, tx.Timestamp = p.stamp(ctx, tx.TransactionID, tx.Timestamp)

	env := envelope{
		txID:    tx.TransactionID,
		txType:  models.TransactionTrustPerson,
		at:      tx.Timestamp,
		actor:   string(tx.TrusteeID),
		subject: string(id.PersonIDFor(tx.FirstName, tx.LastName)),
		attrs: []attribute.KeyValue{
			attribute.String("ledger.trustee", string(tx.TrusteeID)),
		},
	}
	var person *models.Person
	err := p.run(ctx, env, func(ctx context.Context) error {
		var err error
		person, err = p.trust.OnTrustPerson(ctx, tx)
		return err
	})
	if err != nil {
		p.emitRejected(ctx, env, audit.EventRegistrationRejected, err)
		return nil, err
	}

	p.emit(ctx, env.event(audit.EventPersonRegistered, audit.DecisionApplied, nil), nil)
	return person, nil
}

// SubmitBuySong applies a BuySong transaction.
func (p *Processor) SubmitBuySong(ctx context.Context, tx models.BuySong) (*models.Receipt, error) {
	tx.TransactionID, tx.Timestamp = p.stamp(ctx, tx.TransactionID, tx.Timestamp)

	env := envelope{
		txID:    tx.TransactionID,
		txType:  models.TransactionBuySong,
		at:      tx.Timestamp,
		subject: string(tx.SoldTo),
		attrs: []attribute.KeyValue{
			attribute.String("ledger.buyer", string(tx.SoldTo)),
			attribute.String("ledger.agreement", string(tx.AgreementID)),
			attribute.String("ledger.price", tx.Price.String()),
		},
	}
	var receipt *models.Receipt
	err := p.run(ctx, env, func(ctx context.Context) error {
		var err error
		receipt, err = p.purchase.OnBuySong(ctx, tx)
		return err
	})
	if err != nil {
		p.emitRejected(ctx, env, audit.EventPurchaseRejected, err)
		return nil, err
	}

	p.metrics.AddRoyalties(receipt.Split.OwnerShare, receipt.Split.SellerShare)
	p.emit(ctx, env.event(audit.EventSongPurchased, audit.DecisionApplied, nil), nil)
	return receipt, nil
}

func (p *Processor) stamp(ctx context.Context, txID id.TransactionID, ts time.Time) (id.TransactionID, time.Time) {
	if txID.IsZero() {
		txID = id.NewTransactionID()
	}
	if ts.IsZero() {
		ts = requestcontext.Now(ctx)
	}
	return txID, ts
}

// envelope carries what the processor knows about a transaction independent
// of its type.
type envelope struct {
	txID    id.TransactionID
	txType  models.TransactionType
	at      time.Time
	subject string
	actor   string
	attrs   []attribute.KeyValue
}

func (e envelope) event(action audit.AuditEvent, decision string, err error) audit.Event {
	event := audit.Event{
		Timestamp:       e.at,
		TransactionID:   string(e.txID),
		TransactionType: string(e.txType),
		Subject:         e.subject,
		Action:          string(action),
		Decision:        decision,
		ActorID:         e.actor,
	}
	if err != nil {
		event.Reason = dErrors.MessageOf(err)
		if action == audit.EventRegistrationRejected && !dErrors.HasCode(err, dErrors.CodeValidation) {
			// Only trust-rule refusals are security relevant.
			event.Category = audit.CategoryOperations
		}
	}
	return event
}

// run claims the transaction ID, executes fn inside a span and records the
// outcome. A rejected transaction releases its claim so it can be resubmitted,
// unless the registry could not tell whether its commit was applied.
func (p *Processor) run(ctx context.Context, env envelope, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "ledger."+string(env.txType),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("ledger.transaction_id", string(env.txID)),
			attribute.String("ledger.transaction_type", string(env.txType)),
		}, env.attrs...)...),
	)
	defer span.End()

	if err := p.claim(ctx, env); err != nil {
		p.fail(ctx, span, env, err)
		return err
	}

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveDuration(string(env.txType), time.Since(start))
	if err != nil {
		if errors.Is(err, sentinel.ErrCommitUnknown) {
			if p.logger != nil {
				p.logger.WarnContext(ctx, "commit outcome unknown, keeping transaction claim",
					"transaction_id", env.txID,
					"error", err,
				)
			}
		} else {
			p.release(ctx, env)
		}
		p.fail(ctx, span, env, err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	p.metrics.IncrementTransaction(string(env.txType), metrics.OutcomeApplied, "")
	return nil
}

func (p *Processor) claim(ctx context.Context, env envelope) error {
	if p.replay == nil {
		return nil
	}
	ok, err := p.replay.Claim(ctx, env.txID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "replay guard unavailable")
	}
	if !ok {
		p.metrics.IncrementReplay()
		p.emit(ctx, env.event(audit.EventTransactionReplayed, audit.DecisionRejected, ErrReplayed), ErrReplayed)
		return ErrReplayed
	}
	return nil
}

// emitRejected records a rejection. Replays were already audited by claim.
func (p *Processor) emitRejected(ctx context.Context, env envelope, action audit.AuditEvent, err error) {
	if errors.Is(err, ErrReplayed) {
		return
	}
	p.emit(ctx, env.event(action, audit.DecisionRejected, err), err)
}

func (p *Processor) release(ctx context.Context, env envelope) {
	if p.replay == nil {
		return
	}
	if err := p.replay.Release(ctx, env.txID); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "failed to release transaction claim",
			"transaction_id", env.txID,
			"error", err,
		)
	}
}

func (p *Processor) fail(ctx context.Context, span trace.Span, env envelope, err error) {
	code := dErrors.CodeOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, dErrors.MessageOf(err))
	span.SetAttributes(attribute.String("ledger.error_code", string(code)))
	p.metrics.IncrementTransaction(string(env.txType), metrics.OutcomeRejected, string(code))
}

// emit publishes an audit event and mirrors it to the log. Audit failures
// never change the transaction outcome.
func (p *Processor) emit(ctx context.Context, event audit.Event, cause error) {
	event.RequestID = requestcontext.RequestID(ctx)
	if p.logger != nil {
		attrs := []any{
			"log_type", "audit",
			"event", event.Action,
			"transaction_id", event.TransactionID,
			"transaction_type", event.TransactionType,
			"subject", event.Subject,
			"decision", event.Decision,
			"request_id", event.RequestID,
		}
		if cause != nil {
			attrs = append(attrs, "reason", event.Reason, "code", dErrors.CodeOf(cause))
		}
		p.logger.InfoContext(ctx, event.Action, attrs...)
	}
	if p.auditPublisher == nil {
		return
	}
	if err := p.auditPublisher.Emit(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "failed to emit audit event",
			"event", event.Action,
			"transaction_id", event.TransactionID,
			"error", err,
		)
	}
}
