package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Outcome labels.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
)

// Metrics provides observability for the transaction processor.
type Metrics struct {
	// Transactions by type, outcome and error code ("" when applied)
	Transactions *prometheus.CounterVec

	// Handler latency by transaction type, including the unit of work
	TransactionDuration *prometheus.HistogramVec

	// Royalty amounts credited, by recipient ("owner", "seller")
	RoyaltiesCredited *prometheus.CounterVec

	// Submissions refused because the transaction ID was already applied
	ReplaysRejected prometheus.Counter
}

// New registers the ledger metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the ledger metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Total transactions processed by type, outcome and error code",
		}, []string{"type", "outcome", "code"}),

		TransactionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_transaction_duration_seconds",
			Help:    "Duration of transaction handling including the registry unit of work",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"type"}),

		RoyaltiesCredited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_royalties_credited_total",
			Help: "Sum of royalty amounts credited by recipient",
		}, []string{"recipient"}),

		ReplaysRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_replays_rejected_total",
			Help: "Transactions refused because their ID was already submitted",
		}),
	}
}

// IncrementTransaction records one processed transaction.
func (m *Metrics) IncrementTransaction(txType, outcome, code string) {
	if m != nil {
		m.Transactions.WithLabelValues(txType, outcome, code).Inc()
	}
}

// ObserveDuration records the handling time of one transaction.
func (m *Metrics) ObserveDuration(txType string, d time.Duration) {
	if m != nil {
		m.TransactionDuration.WithLabelValues(txType).Observe(d.Seconds())
	}
}

// AddRoyalties records the owner and seller shares of a purchase.
func (m *Metrics) AddRoyalties(ownerShare, sellerShare decimal.Decimal) {
	if m == nil {
		return
	}
	if ownerShare.IsPositive() {
		m.RoyaltiesCredited.WithLabelValues("owner").Add(ownerShare.InexactFloat64())
	}
	if sellerShare.IsPositive() {
		m.RoyaltiesCredited.WithLabelValues("seller").Add(sellerShare.InexactFloat64())
	}
}

// IncrementReplay records a refused replay.
func (m *Metrics) IncrementReplay() {
	if m != nil {
		m.ReplaysRejected.Inc()
	}
}
