// Package app wires the kernel, its strategies and the optional outer
// components into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kilianp07/agvkernel/api"
	"github.com/kilianp07/agvkernel/config"
	"github.com/kilianp07/agvkernel/core/coordinator"
	"github.com/kilianp07/agvkernel/core/dispatch"
	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/kernel"
	coremetrics "github.com/kilianp07/agvkernel/core/metrics"
	"github.com/kilianp07/agvkernel/core/model"
	coremon "github.com/kilianp07/agvkernel/core/monitoring"
	"github.com/kilianp07/agvkernel/core/orderlog"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/core/routing"
	"github.com/kilianp07/agvkernel/core/scheduler"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/core/sweeper"
	"github.com/kilianp07/agvkernel/infra/eventstream"
	"github.com/kilianp07/agvkernel/infra/logger"
	"github.com/kilianp07/agvkernel/infra/loopback"
	"github.com/kilianp07/agvkernel/infra/metrics"
	"github.com/kilianp07/agvkernel/infra/monitoring"
	"github.com/kilianp07/agvkernel/infra/mqtt"
	"github.com/kilianp07/agvkernel/infra/persistence"
	"github.com/kilianp07/agvkernel/infra/statecache"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Service owns every long lived component of the kernel process.
type Service struct {
	cfg *config.Config
	log logger.Logger

	bus    *eventbus.Bus
	plant  *plantmodel.Store
	pool   *orderpool.Pool
	Kernel *kernel.Kernel

	persister strategy.ModelPersister
	orderLog  orderlog.Store
	sink      coremetrics.MetricsSink
	cache     *statecache.Cache
	redis     *redis.Client
	exporter  *eventstream.Exporter

	// shutdown is closed by the kernel's shutdown hook.
	shutdown     chan struct{}
	shutdownOnce sync.Once

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers []<-chan struct{}
	unwatch func()
}

// New builds the service from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config) (s *Service, err error) {
	s = &Service{
		cfg:      cfg,
		log:      logger.New("service"),
		bus:      eventbus.New(),
		shutdown: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			_ = s.closeResources()
		}
	}()

	s.plant = plantmodel.New(domain.New(s.bus), logger.New("plant"))
	s.pool = orderpool.New(s.plant, logger.New("orderpool"))

	if cfg.Persistence.Type != "" {
		if s.persister, err = persistence.New(cfg.Persistence); err != nil {
			return nil, fmt.Errorf("model persister: %w", err)
		}
	}
	if cfg.OrderLog.Enabled() {
		if s.orderLog, err = orderlog.NewStore(cfg.OrderLog.Module()); err != nil {
			return nil, fmt.Errorf("order log: %w", err)
		}
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if cfg.StateCache.Enabled {
		if s.cache, s.redis, err = statecache.NewRedisCache(ctx, cfg.StateCache.Redis); err != nil {
			return nil, fmt.Errorf("state cache: %w", err)
		}
	}
	if cfg.EventStreamEnabled() {
		s.exporter = eventstream.NewExporter(cfg.EventStream, eventstream.NewKafkaWriter(cfg.EventStream), logger.New("eventstream"))
	}
	if cfg.Sentry.DSN != "" {
		mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
		if err != nil {
			return nil, fmt.Errorf("sentry: %w", err)
		}
		coremon.Init(mon)
	}

	var sw *sweeper.Sweeper
	if sw, err = sweeper.New(s.pool, cfg.Sweeper, logger.New("sweeper")); err != nil {
		return nil, err
	}
	s.Kernel, err = kernel.New(cfg.Kernel, kernel.Deps{
		Bus:         s.bus,
		Plant:       s.plant,
		Pool:        s.pool,
		Coordinator: coordinator.New(s.bus, cfg.Coordinator, logger.New("coordinator")),
		Sweeper:     sw,
		Persister:   s.persister,
		Strategies:  s.strategies,
		OnShutdown:  func() { s.shutdownOnce.Do(func() { close(s.shutdown) }) },
	}, logger.New("kernel"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// strategies builds the strategies of one OPERATING session.
func (s *Service) strategies(k *kernel.Kernel) (kernel.Strategies, error) {
	router := routing.New(s.plant, logger.New("router"))
	sched := scheduler.New(logger.New("scheduler"))

	var ctrls strategy.VehicleControllerPool
	switch s.cfg.Vehicles.Adapter {
	case config.AdapterMQTT:
		p, err := mqtt.NewControllerPool(s.cfg.MQTT, s.plant, k, logger.New("mqtt"))
		if err != nil {
			return kernel.Strategies{}, err
		}
		ctrls = p
	default:
		p, err := loopback.NewPool(s.cfg.Simulator, s.plant, k, logger.New("loopback"))
		if err != nil {
			return kernel.Strategies{}, err
		}
		ctrls = p
	}

	disp, err := dispatch.New(s.cfg.Dispatch, dispatch.Deps{
		Pool:        s.pool,
		Plant:       s.plant,
		Router:      router,
		Scheduler:   sched,
		Controllers: ctrls,
		Bus:         s.bus,
	}, logger.New("dispatcher"))
	if err != nil {
		return kernel.Strategies{}, err
	}
	return kernel.Strategies{Dispatcher: disp, Router: router, Scheduler: sched, Controllers: ctrls}, nil
}

// stateSource feeds full resyncs of the state cache.
type stateSource struct {
	plant *plantmodel.Store
	pool  *orderpool.Pool
}

func (s stateSource) Vehicles() []model.Vehicle { return s.plant.Vehicles() }

func (s stateSource) TransportOrders(filter func(model.TransportOrder) bool) []model.TransportOrder {
	return s.pool.TransportOrders(filter)
}

// Handler returns the HTTP API including /metrics.
func (s *Service) Handler() http.Handler {
	opts := []api.Option{api.WithMetrics(metrics.Handler(nil))}
	if s.orderLog != nil {
		opts = append(opts, api.WithOrderLog(s.orderLog))
	}
	return api.NewRouter(s.Kernel, s.cfg.API.Token, logger.New("api"), opts...)
}

// Start loads the configured model, starts the observers and switches the
// kernel to OPERATING.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.ModelFile != "" {
		m, err := persistence.ReadModelFile(s.cfg.ModelFile)
		if err != nil {
			return err
		}
		if err := s.Kernel.LoadModel(m); err != nil {
			return fmt.Errorf("load model %s: %w", s.cfg.ModelFile, err)
		}
		s.log.Infof("loaded plant model %q from %s", m.Name, s.cfg.ModelFile)
	}

	obsCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.unwatch = coremon.Watch(s.bus)
	if s.orderLog != nil {
		s.workers = append(s.workers, orderlog.NewRecorder(s.orderLog, logger.New("orderlog")).Start(obsCtx, s.bus))
	}
	s.workers = append(s.workers, metrics.StartEventCollector(obsCtx, s.bus, s.sink, logger.New("metrics")))
	if s.cache != nil {
		mirror := statecache.NewMirror(s.cache, stateSource{plant: s.plant, pool: s.pool}, logger.New("statecache"))
		s.workers = append(s.workers, mirror.Start(obsCtx, s.bus))
	}
	if s.exporter != nil {
		s.workers = append(s.workers, s.exporter.Start(obsCtx, s.bus))
	}
	s.mu.Unlock()

	return s.Kernel.SetState(ctx, model.KernelOperating)
}

// Done is closed once the kernel has been shut down.
func (s *Service) Done() <-chan struct{} { return s.shutdown }

// Run starts the service and the HTTP endpoints and blocks until ctx is
// canceled or the kernel shuts down.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	srvCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	coremon.Go("api", func() { errCh <- api.Serve(srvCtx, s.cfg.API, s.Handler(), logger.New("api")) })
	if s.cfg.Metrics.Listen != "" {
		coremon.Go("metrics", func() {
			errCh <- metrics.StartPromServer(srvCtx, s.cfg.Metrics.Listen, nil, logger.New("metrics"))
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.log.Infof("stopping: %v", ctx.Err())
	case <-s.shutdown:
		s.log.Infof("kernel shut down")
	case runErr = <-errCh:
		if runErr != nil {
			s.log.Errorf("http server: %v", runErr)
		}
	}
	cancel()
	return errors.Join(runErr, s.Close())
}

// Close shuts the kernel down, waits for the observers and releases every
// resource.
func (s *Service) Close() error {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	if s.Kernel.State() != model.KernelShutdown {
		errs = append(errs, s.Kernel.SetState(stopCtx, model.KernelShutdown))
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	workers := s.workers
	s.workers = nil
	if s.unwatch != nil {
		s.unwatch()
		s.unwatch = nil
	}
	s.mu.Unlock()
	for _, done := range workers {
		<-done
	}

	errs = append(errs, s.closeResources())
	coremon.Flush(2 * time.Second)
	return errors.Join(errs...)
}

func (s *Service) closeResources() error {
	var errs []error
	if c, ok := s.persister.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.orderLog != nil {
		errs = append(errs, s.orderLog.Close())
	}
	if c, ok := s.sink.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	s.persister, s.orderLog, s.redis = nil, nil, nil
	s.bus.Close()
	return errors.Join(errs...)
}
