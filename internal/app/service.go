// Package service wires the store, criteria index, buyer registry and index
// repair workers into the operations exposed by the HTTP API.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/okian/adroute/internal/adapters/mq/queue"
	"github.com/okian/adroute/internal/adapters/mq/worker"
	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/dedupe"
	"github.com/okian/adroute/internal/domain/index"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/registry"
	"github.com/okian/adroute/internal/domain/types"
	"github.com/okian/adroute/pkg/logger"
)

// Default service configuration constants.
const (
	defaultIngestMaxRetries  = 3
	defaultRepairQueueSize   = 10_000
	defaultRepairWorkerCount = 2
	defaultRepairDedupeSize  = 50_000
	defaultFetchTimeout      = 100 * time.Millisecond
	stopTimeout              = 10 * time.Second
)

var errNotStarted = model.NewError("service", model.ErrStore, model.MsgStore, nil)

// Service implements the API dependencies for the offer router.
type Service struct {
	mu sync.RWMutex

	// Core components
	store       repository.Store
	index       *index.Index
	registry    *registry.Registry
	deduper     dedupe.Deduper
	repairQueue *queue.InMemoryQueue
	repairPool  *worker.Pool

	// Configuration
	location          *time.Location
	codec             registry.Codec
	fetchTimeout      time.Duration
	ingestMaxRetries  int
	repairQueueSize   int
	repairWorkerCount int
	repairDedupeSize  int

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the backing store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeZone sets the zone hour and day are derived in.
func WithTimeZone(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithCodec sets the encoding of written buyer records.
func WithCodec(c registry.Codec) Option {
	return func(s *Service) {
		if c != "" {
			s.codec = c
		}
	}
}

// WithFetchTimeout bounds the candidate buyer fetch during resolution.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithIngestMaxRetries caps retries of a registration that lost a write race.
func WithIngestMaxRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.ingestMaxRetries = n
		}
	}
}

// WithRepairQueueSize sets the capacity of the repair queue.
func WithRepairQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.repairQueueSize = size
		}
	}
}

// WithRepairWorkerCount sets the number of repair workers.
func WithRepairWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.repairWorkerCount = count
		}
	}
}

// WithRepairDedupeSize sets the size of the in-flight repair set.
func WithRepairDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.repairDedupeSize = size
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		location:          time.UTC,
		codec:             registry.CodecJSON,
		fetchTimeout:      defaultFetchTimeout,
		ingestMaxRetries:  defaultIngestMaxRetries,
		repairQueueSize:   defaultRepairQueueSize,
		repairWorkerCount: defaultRepairWorkerCount,
		repairDedupeSize:  defaultRepairDedupeSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}

	s.logger.Info(ctx, "starting offer router service...", logger.String("store", s.store.Kind()))

	s.index = index.New(s.store, index.WithLogger(s.logger.Named("index")))
	s.registry = registry.New(s.store,
		registry.WithCodec(s.codec),
		registry.WithFetchTimeout(s.fetchTimeout),
		registry.WithLogger(s.logger.Named("registry")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.repairDedupeSize))
	s.repairQueue = queue.NewInMemoryQueue(queue.WithCapacity(s.repairQueueSize))
	s.repairPool = worker.NewPool(s.repairWorkerCount, s.repairQueue, worker.HandlerFunc(s.repair))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.repairPool.Start(runCtx)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "offer router service started",
		logger.String("timeZone", s.location.String()),
		logger.String("codec", string(s.codec)),
		logger.Int("repairWorkers", s.repairPool.Size()),
		logger.Int("repairQueueSize", s.repairQueueSize),
	)
	return nil
}

// Stop drains the repair queue, stops the workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping offer router service...")

	sctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	if err := s.repairPool.Shutdown(sctx); err != nil {
		s.logger.Warn(ctx, "repair pool did not drain", logger.Error(err))
	}
	s.cancel()

	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "offer router service stopped")
}

// Ping reports whether the backing store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return errNotStarted
	}
	if err := store.Ping(ctx); err != nil {
		return model.NewError("service.ping", model.ErrStore, model.MsgStore, err)
	}
	return nil
}

// StoreKind names the backing store.
func (s *Service) StoreKind() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return ""
	}
	return s.store.Kind()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		RecordCodec:         string(s.codec),
		TimeZone:            s.location.String(),
		RepairQueueCapacity: s.repairQueueSize,
		RepairWorkers:       s.repairWorkerCount,
	}
	if !s.started {
		return stats
	}
	stats.Store = s.store.Kind()
	stats.RepairQueueSize = s.repairQueue.Len(ctx)
	stats.RepairWorkers = s.repairPool.Size()
	stats.RepairInFlight = int(s.deduper.Size())
	stats.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	return stats
}

// components returns the started components, or errNotStarted.
func (s *Service) components() (*index.Index, *registry.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, errNotStarted
	}
	return s.index, s.registry, nil
}
