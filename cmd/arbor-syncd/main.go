package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arborhq/arbor/pkg/audit"
	"github.com/arborhq/arbor/pkg/config"
	"github.com/arborhq/arbor/pkg/grants"
	"github.com/arborhq/arbor/pkg/hierarchy"
	"github.com/arborhq/arbor/pkg/httputil"
	"github.com/arborhq/arbor/pkg/observability"
	"github.com/arborhq/arbor/pkg/storage/postgres"
	arborsync "github.com/arborhq/arbor/pkg/sync"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting arbor-syncd")

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("failed to initialize tracing")
		os.Exit(1)
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to database")
		os.Exit(1)
	}

	if err := hierarchy.ApplyMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to apply resource tree migrations")
		os.Exit(1)
	}
	if err := grants.ApplyMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("failed to apply permission ledger migrations")
		os.Exit(1)
	}

	// Redis is optional; without it runs are simply unlocked.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, sync locks disabled")
			redisClient = nil
		}
	}

	trail, err := buildTrail(cfg, db)
	if err != nil {
		logger.WithError(err).Error("failed to initialize audit trail")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	dbStatsStop := make(chan struct{})
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		metrics.StartDBStatsLoop(db, 15*time.Second, dbStatsStop)
	}

	grantStore := grants.NewStore(db)
	catalog := grants.NewCatalog(db)
	query := grants.NewQueryService(grantStore, logger, metrics)
	ledger := grants.NewLedger(grantStore, catalog, trail, logger, query)

	engineCfg := arborsync.EngineConfig{
		Resources:   hierarchy.NewStore(db),
		Ledger:      ledger,
		Catalog:     catalog,
		Provider:    arborsync.NewHTTPProvider(cfg.Sync.UpstreamURL, nil),
		Trail:       trail,
		Logger:      logger,
		Metrics:     metrics,
		IDPrefix:    cfg.Sync.IDPrefix,
		MaxParallel: cfg.Sync.MaxParallel,
	}
	if redisClient != nil {
		engineCfg.Lock = postgres.NewSyncLock(redisClient, cfg.Redis.LockTTL)
	}

	engine, err := arborsync.NewEngine(engineCfg)
	if err != nil {
		logger.WithError(err).Error("failed to build sync engine")
		os.Exit(1)
	}

	var scheduler *cron.Cron
	if cfg.Sync.Schedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Sync.Schedule, func() {
			resyncProjects(engine, cfg.Sync, logger)
		})
		if err != nil {
			logger.WithError(err).Errorf("invalid sync schedule %q", cfg.Sync.Schedule)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Infof("scheduled re-sync of %d project(s) on %q", len(cfg.Sync.Projects), cfg.Sync.Schedule)
	}

	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, observability.NewHealthChecker(db, redisClient))
	if cfg.Observability.MetricsEnabled {
		router.Handle("/metrics", observability.Handler(registry))
	}

	handler := httputil.Chain(
		httputil.RecoveryMiddleware(logger),
		httputil.LoggingMiddleware(logger),
	)(router)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sm := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(context.Context) error {
		if scheduler != nil {
			scheduler.Stop()
		}
		close(dbStatsStop)
		return nil
	})
	sm.RegisterShutdownFunc(func(context.Context) error { return trail.Close() })
	if redisClient != nil {
		sm.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}
	sm.RegisterShutdownFunc(func(context.Context) error { return db.Close() })
	if tp != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownTracing(ctx, tp, logger)
		})
	}

	go func() {
		logger.Infof("ops server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("ops server failed")
			os.Exit(1)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		os.Exit(1)
	}
}

// resyncProjects runs one scheduled pass over the configured projects. A
// project that is already being synchronized elsewhere is skipped; other
// failures are logged and do not stop the remaining projects.
func resyncProjects(engine *arborsync.Engine, cfg config.SyncConfig, logger *observability.Logger) {
	g := new(errgroup.Group)
	g.SetLimit(2)

	for _, project := range cfg.Projects {
		project := project
		g.Go(func() error {
			result, err := engine.SyncProject(context.Background(), cfg.ActorID, project)
			switch {
			case err == arborsync.ErrSyncInProgress:
				logger.WithField("project", project).Info("sync already in progress, skipping")
			case err != nil:
				logger.WithError(err).WithField("project", project).Error("scheduled sync failed")
			default:
				logger.WithFields(map[string]interface{}{
					"project":         project,
					"created":         result.Created,
					"granted":         result.Granted,
					"failed_subtrees": result.FailedSubtrees,
				}).Info("scheduled sync finished")
			}
			return nil
		})
	}

	g.Wait()
}

// buildTrail assembles the configured audit sink
func buildTrail(cfg *config.Config, db *sql.DB) (audit.Trail, error) {
	switch cfg.Audit.Sink {
	case "none":
		return audit.NopTrail{}, nil
	case "file":
		return audit.NewFileTrail(cfg.Audit.FilePath)
	case "both":
		dbTrail, err := audit.NewDBTrail(db)
		if err != nil {
			return nil, err
		}
		fileTrail, err := audit.NewFileTrail(cfg.Audit.FilePath)
		if err != nil {
			return nil, err
		}
		return audit.NewMultiTrail(dbTrail, fileTrail), nil
	default:
		return audit.NewDBTrail(db)
	}
}
