package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/activities/remediation"
	"github.com/testforge/a11yforge/internal/api"
	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/pipeline"
	rediscache "github.com/testforge/a11yforge/internal/repository/redis"
	"github.com/testforge/a11yforge/internal/storage"
	"github.com/testforge/a11yforge/internal/temporal"
)

func main() {
	godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(string(cfg.Env), cfg.GetLogLevel())
	defer logger.Sync()

	logger.Info("Starting a11yforge worker",
		zap.String("version", cfg.App.Version),
		zap.String("environment", string(cfg.Env)),
		zap.String("temporal_address", cfg.Temporal.Address()),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	metrics := observability.NewMetrics(cfg.Metrics.Job)
	opts := pipeline.OptionsFromConfig(cfg.Pipeline, metrics, logger)
	checks := map[string]api.HealthChecker{}

	// Connect to Redis (optional)
	var cache *rediscache.Cache
	if cfg.Redis.Enabled {
		cache, err = rediscache.New(cfg.Redis)
		if err != nil {
			logger.Warn("Failed to connect to Redis, report store and response cache disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
			opts.Reports = cache
			checks["redis"] = cache
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	// Object storage mirror (optional)
	var mirror pipeline.Mirror
	if cfg.Storage.Enabled {
		m, err := storage.NewMinIOMirror(storage.MinIOConfigFrom(cfg.Storage), logger)
		if err == nil {
			err = m.EnsureBucket(context.Background())
		}
		if err != nil {
			logger.Warn("Object storage unavailable, mirroring disabled", zap.Error(err))
		} else {
			mirror = m
			logger.Info("Mirroring runs to object storage",
				zap.String("endpoint", cfg.Storage.Endpoint),
				zap.String("bucket", cfg.Storage.Bucket),
			)
		}
	}

	backend, err := llm.NewBackend(cfg, clientOf(cache), metrics, logger)
	if err != nil {
		logger.Fatal("Failed to create model backend", zap.Error(err))
	}
	defer backend.Close()

	components, err := pipeline.NewComponents(cfg, backend, metrics, logger)
	if err != nil {
		logger.Fatal("Failed to build pipeline components", zap.Error(err))
	}
	orchestrator := pipeline.New(components, opts)

	// Create Temporal client
	tc, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer tc.Close()
	tc.WithMetrics(metrics)
	checks["temporal"] = temporalHealth{tc}

	logger.Info("Connected to Temporal server")

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.WorkerCount,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.WorkerCount,
	})

	activity := remediation.NewActivity(orchestrator, storage.LayoutFromConfig(cfg.Pipeline), mirror, metrics, logger)
	remediation.RegisterActivities(w, activity)

	// Ops API
	routerCfg := api.RouterConfig{
		Submitter:      tc,
		Metrics:        metrics,
		Checks:         checks,
		APIToken:       cfg.Server.APIToken,
		RateLimit:      cfg.Server.RateLimit,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		WorkRoot:       cfg.Server.WorkRoot,
		Logger:         logger,
	}
	if cache != nil {
		routerCfg.Reports = cache
		routerCfg.Limiter = cache
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start worker and server in goroutines
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- w.Run(worker.InterruptCh())
	}()

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Ops API listening", zap.String("addr", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("Worker started successfully",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)

	// Wait for shutdown signal or a component error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Error("Worker error", zap.Error(err))
		}

	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", zap.Error(err))
		}
		w.Stop()

	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		w.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
		server.Close()
	}

	if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}
	logger.Info("Worker stopped gracefully")
}

func clientOf(cache *rediscache.Cache) *goredis.Client {
	if cache == nil {
		return nil
	}
	return cache.Client()
}

// temporalHealth probes the frontend service
type temporalHealth struct {
	client *temporal.Client
}

func (h temporalHealth) Health(ctx context.Context) error {
	_, err := h.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return err
}
