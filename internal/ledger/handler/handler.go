// Package handler exposes the transaction processor and registry reads over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"copyright/internal/ledger/models"
	"copyright/internal/ledger/ports"
	"copyright/internal/ledger/seed"
	"copyright/internal/platform/metrics"
	"copyright/internal/platform/middleware"
	dErrors "copyright/pkg/domain-errors"
	"copyright/pkg/platform/audit"
	"copyright/pkg/platform/httputil"
	"copyright/pkg/platform/middleware/admin"
	"copyright/pkg/platform/middleware/metadata"
	"copyright/pkg/platform/middleware/requesttime"
)

const (
	maxTransactionBody = 64 << 10
	maxFixtureBody     = 4 << 20
	defaultAuditLimit  = 50
	maxAuditLimit      = 500
)

// Processor submits transactions to the network.
type Processor interface {
	SubmitTrustPerson(ctx context.Context, tx models.TrustPerson) (*models.Person, error)
	SubmitBuySong(ctx context.Context, tx models.BuySong) (*models.Receipt, error)
}

// Seeder loads a fixture document.
type Seeder interface {
	Seed(ctx context.Context, source string, r io.Reader) (seed.Summary, error)
}

// AuditReader reads back recorded audit events.
type AuditReader interface {
	List(ctx context.Context, subject string) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Handler serves the ledger API.
type Handler struct {
	processor Processor
	registry  ports.Registry
	logger    *slog.Logger
	metrics   *metrics.Metrics

	seeder         Seeder
	auditReader    AuditReader
	adminToken     string
	requestTimeout time.Duration
	now            func() time.Time
	checks         map[string]HealthCheck
}

type Option func(*Handler)

// WithAdmin enables the /admin routes behind token.
func WithAdmin(token string, seeder Seeder, reader AuditReader) Option {
	return func(h *Handler) {
		h.adminToken = token
		h.seeder = seeder
		h.auditReader = reader
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.requestTimeout = d
		}
	}
}

// WithClock overrides the clock stamped on each request.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithHealthCheck adds a dependency to /readyz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) {
		h.checks[name] = check
	}
}

// New creates a ledger Handler. registry serves the read endpoints.
func New(processor Processor, registry ports.Registry, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		processor:      processor,
		registry:       registry,
		logger:         logger,
		requestTimeout: 30 * time.Second,
		now:            time.Now,
		checks:         map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	ledgerRouter := chi.NewRouter()
	ledgerRouter.Use(middleware.Recovery(h.logger))
	ledgerRouter.Use(middleware.RequestID)
	ledgerRouter.Use(metadata.ClientMetadata)
	ledgerRouter.Use(requesttime.MiddlewareWithClock(h.now))
	ledgerRouter.Use(middleware.Logger(h.logger))
	ledgerRouter.Use(middleware.Timeout(h.requestTimeout))
	ledgerRouter.Use(middleware.LatencyMiddleware(h.metrics))

	ledgerRouter.Get("/healthz", h.handleHealth)
	ledgerRouter.Get("/readyz", h.handleReady)

	ledgerRouter.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/transactions/trust-person", h.handleTrustPerson)
		r.Post("/transactions/buy-song", h.handleBuySong)
	})

	ledgerRouter.Get("/participants/persons/{id}", h.handleGetPerson)
	ledgerRouter.Get("/participants/organizations/{id}", h.handleGetOrganization)
	ledgerRouter.Get("/assets/songs/{id}", h.handleGetSong)
	ledgerRouter.Get("/assets/song-selling-agreements/{id}", h.handleGetAgreement)
	ledgerRouter.Get("/assets/licensed-songs/{id}", h.handleGetLicensedSong)

	if h.seeder != nil || h.auditReader != nil {
		ledgerRouter.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
			if h.seeder != nil {
				r.Post("/admin/seed", h.handleSeed)
			}
			if h.auditReader != nil {
				r.Get("/admin/audit", h.handleListAudit)
			}
		})
	}

	r.Mount("/", ledgerRouter)
}

func (h *Handler) handleTrustPerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req TrustPersonRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.Transaction()
	if err != nil {
		h.reject(ctx, w, "invalid trust person request", err)
		return
	}

	person, err := h.processor.SubmitTrustPerson(ctx, tx)
	if err != nil {
		h.reject(ctx, w, "trust person rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, person)
}

func (h *Handler) handleBuySong(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BuySongRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.Transaction()
	if err != nil {
		h.reject(ctx, w, "invalid buy song request", err)
		return
	}

	receipt, err := h.processor.SubmitBuySong(ctx, tx)
	if err != nil {
		h.reject(ctx, w, "buy song rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleSeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, maxFixtureBody)
	summary, err := h.seeder.Seed(ctx, "admin:"+middleware.GetRequestID(ctx), body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = dErrors.New(dErrors.CodeBadRequest, "fixture document too large")
		}
		h.reject(ctx, w, "fixture rejected", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, summary)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		events []audit.Event
		err    error
	)
	if subject := r.URL.Query().Get("subject"); subject != "" {
		events, err = h.auditReader.List(ctx, subject)
	} else {
		limit := defaultAuditLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit <= 0 || limit > maxAuditLimit {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 500"))
				return
			}
		}
		events, err = h.auditReader.Recent(ctx, limit)
	}
	if err != nil {
		h.reject(ctx, w, "audit read failed", dErrors.Wrap(err, dErrors.CodeUnavailable, "audit store unavailable"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	httputil.WriteJSON(w, status, results)
}

// decode reads a bounded JSON body. Unknown fields are rejected.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTransactionBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

// reject logs err at a level matching its code and renders it.
func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := httputil.StatusFor(dErrors.CodeOf(err))
	attrs := []any{
		"request_id", middleware.GetRequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
