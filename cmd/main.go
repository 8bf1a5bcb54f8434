package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/adroute/internal/adapters/http/api"
	"github.com/okian/adroute/internal/adapters/http/swagger"
	"github.com/okian/adroute/internal/adapters/repository"
	app "github.com/okian/adroute/internal/app"
	"github.com/okian/adroute/internal/config"
	"github.com/okian/adroute/internal/domain/registry"
	"github.com/okian/adroute/pkg/logger"
	"github.com/okian/adroute/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Custom system gauges replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "adroute exited", logger.Error(err))
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context) error {
	log := logger.Get()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(cfg, newStore(cfg))
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	if err := svc.Ping(ctx); err != nil {
		log.Warn(ctx, "store not reachable at startup", logger.String("store", svc.StoreKind()), logger.Error(err))
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newStore builds the configured backing store.
func newStore(cfg *config.Config) repository.Store {
	if cfg.Store == config.StoreMemory {
		return repository.NewMemoryStore(repository.WithTimeout(cfg.StoreTimeout()))
	}
	return repository.NewRedisStore(repository.RedisConfig{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	}, repository.WithTimeout(cfg.StoreTimeout()))
}

// newService translates configuration into service options.
func newService(cfg *config.Config, store repository.Store) (*app.Service, error) {
	codec, err := registry.ParseCodec(cfg.RecordCodec)
	if err != nil {
		return nil, err
	}
	return app.New(
		app.WithLogger(logger.Get()),
		app.WithStore(store),
		app.WithTimeZone(cfg.Location()),
		app.WithCodec(codec),
		app.WithFetchTimeout(cfg.FetchTimeout()),
		app.WithIngestMaxRetries(cfg.IngestMaxRetries),
		app.WithRepairQueueSize(cfg.RepairQueueSize),
		app.WithRepairWorkerCount(cfg.RepairWorkerCount),
		app.WithRepairDedupeSize(cfg.RepairDedupeSize),
	), nil
}

// newHandler registers the business API and the docs on one router.
func newHandler(cfg *config.Config, svc *app.Service) http.Handler {
	router := httprouter.New()
	swagger.Register(router)
	apiServer := api.NewServer(svc, svc, api.WithMaxBodyBytes(cfg.MaxBodyBytes))
	apiServer.Register(router)
	return api.RequestIDMiddleware(router)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the repair gauges from a stats snapshot.
func updateServiceMetrics(ctx context.Context, svc *app.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateRepairQueueSize(stats.RepairQueueSize)
	metrics.UpdateRepairQueueCapacity(stats.RepairQueueCapacity)
	if stats.RepairQueueCapacity > 0 {
		metrics.UpdateRepairQueueUtilization(float64(stats.RepairQueueSize) / float64(stats.RepairQueueCapacity))
	}
}
