package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/rafteles16/CRMPSICO/internal/auth"
	"github.com/rafteles16/CRMPSICO/internal/config"
	"github.com/rafteles16/CRMPSICO/internal/directory"
	apierrors "github.com/rafteles16/CRMPSICO/internal/errors"
	"github.com/rafteles16/CRMPSICO/internal/handler"
	"github.com/rafteles16/CRMPSICO/internal/health"
	"github.com/rafteles16/CRMPSICO/internal/metrics"
	"github.com/rafteles16/CRMPSICO/internal/server"
	"github.com/rafteles16/CRMPSICO/internal/service"
	"github.com/rafteles16/CRMPSICO/internal/session"
	"github.com/rafteles16/CRMPSICO/internal/store"
	syncpkg "github.com/rafteles16/CRMPSICO/internal/sync"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting CRMPSICO sync daemon")

	// Load configuration. A missing or invalid configuration is the one
	// fatal error class: nothing can run without a backend.
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild the logger at the configured level
	if level, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(level)
		if rebuilt, err := zapCfg.Build(); err == nil {
			logger = rebuilt
			defer logger.Sync()
		}
	}

	logger.Info("Configuration loaded",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Int("port", cfg.Server.Port))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Initialize document store
	documentStore, err := newDocumentStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize document store", zap.Error(err))
	}
	logger.Info("Document store initialized", zap.String("backend", cfg.Storage.Backend))

	// Load the tenant directory
	dir, err := directory.Load(cfg.Directory.File, logger)
	if err != nil {
		logger.Fatal("Failed to load tenant directory", zap.Error(err))
	}

	// Sign in and establish the session context. Sign-in failure degrades
	// to a fallback principal; it never halts the daemon.
	sess := session.New(logger)
	authenticator := auth.NewTokenAuthenticator(cfg.Auth.Token, logger)
	sess.SetPrincipal(authenticator.SignIn(context.Background()))

	// Initialize the sync core
	reconciler := syncpkg.NewReconciler(logger, m)
	manager := syncpkg.NewManager(documentStore, sess, reconciler, logger, m)
	conversions := service.NewConversionService(documentStore, sess, cfg.Conversion.SessionFee, cfg.Conversion.OriginTag, logger, m)

	// Initialize handlers and servers
	errorHandler := apierrors.NewHandler(logger)
	handlers := handler.NewHandlers(dir, sess, reconciler, conversions, errorHandler, logger)
	healthChecker := health.NewHealthChecker(documentStore, logger)

	srv := server.NewServer(cfg, handlers, healthChecker, errorHandler, logger)
	srv.SetupRoutes()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(rootCtx)

	// Subscription lifecycle: rebuilds on every tenant change
	group.Go(func() error {
		manager.Run(ctx)
		return nil
	})

	// Intent API server
	group.Go(func() error {
		return srv.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Metrics server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		group.Go(func() error {
			logger.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			return metricsServer.Close()
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("Server error", zap.Error(err))
	}

	// Graceful teardown: stop snapshot delivery before closing the store.
	manager.Close()
	if err := documentStore.Close(); err != nil {
		logger.Warn("Failed to close document store", zap.Error(err))
	}

	logger.Info("Sync daemon stopped")
}

// newDocumentStore builds the configured store backend.
func newDocumentStore(cfg *config.Config, logger *zap.Logger) (store.DocumentStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryDocumentStore(logger), nil
	case "redis":
		return store.NewRedisDocumentStore(
			cfg.Storage.Redis.Host,
			cfg.Storage.Redis.Port,
			cfg.Storage.Redis.Password,
			cfg.Storage.Redis.DB,
			logger,
		)
	case "postgres":
		return store.NewPostgresDocumentStore(
			cfg.Storage.Database.Host,
			cfg.Storage.Database.Port,
			cfg.Storage.Database.Database,
			cfg.Storage.Database.User,
			cfg.Storage.Database.Password,
			cfg.Storage.Database.MaxConnections,
			cfg.Storage.Database.MinConnections,
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
