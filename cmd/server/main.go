// Command server exposes the calibration engine over HTTP.
//
// Wiring order: config, logger, artifact load, audit pipeline, engine,
// router, server. Artifacts are loaded exactly once; a load failure is
// fatal before the listener ever opens. Business logic lives in the
// internal packages; this file only assembles them.
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

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"calibra/internal/calibration"
	"calibra/internal/calibration/adapters"
	"calibra/internal/calibration/artifacts"
	"calibra/internal/calibration/handler"
	"calibra/internal/calibration/metrics"
	httpapi "calibra/internal/http"
	"calibra/internal/platform/config"
	"calibra/internal/platform/httpserver"
	"calibra/internal/platform/logger"
	platformredis "calibra/internal/platform/redis"
	"calibra/pkg/attrs"
	"calibra/pkg/platform/audit"
	"calibra/pkg/platform/audit/kafka"
	"calibra/pkg/platform/audit/publisher"
	memstore "calibra/pkg/platform/audit/store/memory"
	pgstore "calibra/pkg/platform/audit/store/postgres"
	redisstore "calibra/pkg/platform/audit/store/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogJSON)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var loadOpts []artifacts.Option
	if cfg.GovernanceKey != "" {
		loadOpts = append(loadOpts, artifacts.WithGovernanceKey([]byte(cfg.GovernanceKey)))
	}
	store, err := artifacts.Load(cfg.ArtifactsDir, loadOpts...)
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	log.Info("artifacts loaded",
		"dir", cfg.ArtifactsDir,
		"methods", store.MethodCount(),
		"formula_version", store.Weights().Version,
		"governance_verified", cfg.GovernanceKey != "",
	)

	auditStore, closeStore, err := buildAuditStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	log.Info("audit store ready", "backend", cfg.AuditBackend)

	auditMetrics := audit.NewMetrics()
	pub, err := buildPublisher(cfg, log, auditStore, auditMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Error("audit publisher close", "error", err)
		}
	}()

	service, err := calibration.New(store,
		calibration.WithLogger(log),
		calibration.WithMetrics(metrics.New()),
		calibration.WithAuditRecorder(adapters.NewAuditAdapter(pub)),
	)
	if err != nil {
		return fmt.Errorf("build calibration service: %w", err)
	}

	if err := pub.Emit(ctx, audit.Event{
		Category: audit.CategoryOperations,
		Action:   string(audit.EventArtifactsLoaded),
		Reason:   "configuration artifacts loaded",
		Detail: attrs.ToDetail([]any{
			"dir", cfg.ArtifactsDir,
			"methods", store.MethodCount(),
			"formula_version", store.Weights().Version,
		}),
	}); err != nil {
		log.Warn("startup audit event not recorded", "error", err)
	}

	routerOpts := []httpapi.Option{}
	if checker, ok := auditStore.(audit.HealthChecker); ok {
		routerOpts = append(routerOpts, httpapi.WithHealthCheck("audit_store", checker.Health))
	}

	api := handler.New(service, auditStore, log)
	router := httpapi.NewRouter(api, log, routerOpts...)
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("calibra listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildAuditStore selects the audit backend from config. The returned
// close function releases the backend's connections; for the in-memory
// store it is a no-op.
func buildAuditStore(cfg config.Server) (audit.Store, func(), error) {
	switch cfg.AuditBackend {
	case "", "memory":
		return memstore.NewInMemoryStore(), func() {}, nil

	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		if client == nil {
			return nil, nil, errors.New(`audit backend "redis" requires REDIS_URL`)
		}
		return redisstore.New(client.Client), func() { _ = client.Close() }, nil

	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, nil, errors.New(`audit backend "postgres" requires DATABASE_URL`)
		}
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		return pgstore.New(db), func() { _ = db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown audit backend %q", cfg.AuditBackend)
	}
}

// buildPublisher assembles the emit path: optional sampling, optional
// async buffering, optional Kafka fan-out.
func buildPublisher(cfg config.Server, log *slog.Logger, store audit.Store, m *audit.Metrics) (*publisher.Publisher, error) {
	opts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(m),
	}
	if cfg.AuditAsync {
		opts = append(opts, publisher.WithAsyncBuffer(cfg.AuditBuffer))
	}
	if cfg.AuditSampleRate < 1 {
		opts = append(opts, publisher.WithSampler(audit.NewSampler(cfg.AuditSampleRate)))
	}
	if len(cfg.AuditBrokers) > 0 {
		sink, err := kafka.New(cfg.AuditBrokers,
			kafka.WithLogger(log),
			kafka.WithMetrics(m),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka audit sink: %w", err)
		}
		opts = append(opts, publisher.WithSink(sink))
		log.Info("audit broker sink enabled", "brokers", cfg.AuditBrokers)
	}
	return publisher.NewPublisher(store, opts...), nil
}
