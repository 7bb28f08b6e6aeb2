package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"copyright/internal/ledger/handler"
	ledgermetrics "copyright/internal/ledger/metrics"
	"copyright/internal/ledger/ports"
	"copyright/internal/ledger/processor"
	"copyright/internal/ledger/purchase"
	"copyright/internal/ledger/seed"
	"copyright/internal/ledger/store"
	"copyright/internal/ledger/store/replay"
	"copyright/internal/ledger/trust"
	"copyright/internal/platform/config"
	"copyright/internal/platform/httpserver"
	"copyright/internal/platform/kafka"
	"copyright/internal/platform/logger"
	"copyright/internal/platform/metrics"
	"copyright/internal/platform/redis"
	"copyright/internal/platform/tracing"
	"copyright/pkg/platform/audit"
	kafkasink "copyright/pkg/platform/audit/publishers/kafka"
	"copyright/pkg/platform/audit/publisher"
	auditmemory "copyright/pkg/platform/audit/store/memory"
	auditpostgres "copyright/pkg/platform/audit/store/postgres"
)

// main wires the ledger dependencies, serves the API and metrics listeners
// and shuts both down on SIGINT or SIGTERM.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ledger stopped", "error", err)
		os.Exit(1)
	}
}

type infra struct {
	registry ports.RegistryTx
	reads    ports.Registry
	db       *sql.DB
	events   *publisher.Publisher
	checks   map[string]handler.HealthCheck
	closers  []func()
}

func (i *infra) close() {
	for n := len(i.closers) - 1; n >= 0; n-- {
		i.closers[n]()
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	deps := &infra{checks: map[string]handler.HealthCheck{}}
	defer deps.close()

	if err := openRegistry(ctx, cfg, log, deps); err != nil {
		return err
	}
	guard, err := openReplayGuard(ctx, cfg, log, deps)
	if err != nil {
		return err
	}
	if err := openAudit(ctx, cfg, log, deps); err != nil {
		return err
	}

	ledgerMetrics := ledgermetrics.New()
	httpMetrics := metrics.New()

	trustSvc := trust.New(deps.registry, trust.WithLogger(log))
	purchaseSvc := purchase.New(deps.registry,
		purchase.WithLogger(log),
		purchase.WithPolicy(purchase.Policy{DebitBuyer: !cfg.Ledger.LegacyPayments}),
	)
	proc := processor.New(trustSvc, purchaseSvc,
		processor.WithReplayGuard(guard),
		processor.WithAuditPublisher(deps.events),
		processor.WithMetrics(ledgerMetrics),
		processor.WithLogger(log),
	)
	loader := seed.NewLoader(deps.registry, seed.WithAuditPublisher(deps.events), seed.WithLogger(log))

	if cfg.Ledger.SeedFile != "" {
		if err := seedFromFile(ctx, loader, cfg.Ledger.SeedFile); err != nil {
			return err
		}
	}

	opts := []handler.Option{
		handler.WithMetrics(httpMetrics),
		handler.WithRequestTimeout(cfg.Server.RequestTimeout),
	}
	if cfg.Server.AdminToken != "" {
		opts = append(opts, handler.WithAdmin(cfg.Server.AdminToken, loader, deps.events))
	}
	for name, check := range deps.checks {
		opts = append(opts, handler.WithHealthCheck(name, check))
	}
	h := handler.New(proc, deps.reads, log, opts...)

	router := chi.NewRouter()
	h.Register(router)

	return serve(ctx, cfg.Server, log, router)
}

func openRegistry(ctx context.Context, cfg config.Config, log *slog.Logger, deps *infra) error {
	if cfg.Ledger.Registry != config.RegistryPostgres {
		mem := store.NewInMemory(store.WithTxTimeout(cfg.Ledger.TxTimeout))
		deps.registry, deps.reads = mem, mem.Registry()
		log.Info("using in-memory registry")
		return nil
	}

	db, err := sql.Open("postgres", cfg.Ledger.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	deps.closers = append(deps.closers, func() { _ = db.Close() })
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	pg := store.NewPostgres(db, store.WithPostgresTxTimeout(cfg.Ledger.TxTimeout))
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate registry: %w", err)
	}
	deps.db = db
	deps.registry, deps.reads = pg, pg.Registry()
	deps.checks["postgres"] = db.PingContext
	log.Info("using postgres registry")
	return nil
}

func openReplayGuard(ctx context.Context, cfg config.Config, log *slog.Logger, deps *infra) (processor.ReplayGuard, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		log.Info("using in-memory replay guard")
		return replay.NewInMemory(replay.WithTTL(cfg.Ledger.ReplayTTL)), nil
	}
	deps.closers = append(deps.closers, func() { _ = client.Close() })
	deps.checks["redis"] = client.Health
	log.Info("using redis replay guard")
	return replay.NewRedis(client.Client, replay.WithRedisTTL(cfg.Ledger.ReplayTTL)), nil
}

func openAudit(ctx context.Context, cfg config.Config, log *slog.Logger, deps *infra) error {
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if deps.db != nil {
		pgStore := auditpostgres.New(deps.db)
		if err := pgStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate audit store: %w", err)
		}
		auditStore = pgStore
	}

	opts := []publisher.Option{
		publisher.WithAsyncBuffer(cfg.Ledger.AuditBuffer),
		publisher.WithLogger(log),
	}
	client, err := kafka.New(ctx, cfg.Kafka, log)
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if client != nil {
		deps.closers = append(deps.closers, client.Close)
		opts = append(opts, publisher.WithSink(kafkasink.New(client, cfg.Kafka.AuditTopic,
			kafkasink.WithLogger(log),
			kafkasink.WithProduceTimeout(cfg.Kafka.DeliveryTimeout),
		)))
		deps.checks["kafka"] = client.Ping
	}

	deps.events = publisher.NewPublisher(auditStore, opts...)
	// Registered after the stores so buffered events drain before they close.
	deps.closers = append(deps.closers, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.events.Close(drainCtx); err != nil {
			log.Warn("audit publisher did not drain", "error", err)
		}
	})
	return nil
}

func seedFromFile(ctx context.Context, loader *seed.Loader, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	if _, err := loader.Seed(ctx, "file:"+path, f); err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	return nil
}

func serve(ctx context.Context, cfg config.Server, log *slog.Logger, router http.Handler) error {
	api := httpserver.New(cfg.Addr, router)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httpserver.New(cfg.MetricsAddr, metricsMux)

	g, gctx := errgroup.WithContext(ctx)
	listen := func(name string, srv *http.Server) {
		g.Go(func() error {
			log.Info("listening", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	listen("api", api)
	if cfg.MetricsAddr != "" {
		listen("metrics", metricsSrv)
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(api.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})

	return g.Wait()
}
