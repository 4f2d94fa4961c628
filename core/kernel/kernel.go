// Package kernel implements the kernel state machine and the mode gated
// service facade used by the CLI, the vehicle controllers and tests.
//
// The kernel starts in MODELLING, where the plant model may be edited. In
// OPERATING the strategies are running and transport orders are accepted.
// SHUTDOWN is final.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/agvkernel/core/coordinator"
	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/core/sweeper"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// Config holds kernel settings.
type Config struct {
	// LoadModelOnStart loads the persisted model when entering OPERATING.
	LoadModelOnStart bool `json:"load_model_on_start"`
	// SaveModelOnTerminate persists the model when leaving OPERATING.
	SaveModelOnTerminate bool          `json:"save_model_on_terminate"`
	ShutdownGrace        time.Duration `json:"shutdown_grace"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 500 * time.Millisecond
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("kernel: shutdown_grace must not be negative")
	}
	return nil
}

// Strategies bundles the strategies of one OPERATING session.
type Strategies struct {
	Dispatcher  strategy.Dispatcher
	Router      strategy.Router
	Scheduler   strategy.Scheduler
	Controllers strategy.VehicleControllerPool
}

// StrategyFactory builds fresh strategies each time the kernel enters
// OPERATING.
type StrategyFactory func(k *Kernel) (Strategies, error)

// Deps are the collaborators of a Kernel. Sweeper, Persister and OnShutdown
// are optional.
type Deps struct {
	Bus         eventbus.EventBus
	Plant       *plantmodel.Store
	Pool        *orderpool.Pool
	Coordinator *coordinator.Coordinator
	Sweeper     *sweeper.Sweeper
	Persister   strategy.ModelPersister
	Strategies  StrategyFactory
	OnShutdown  func()
}

// Kernel owns the operating mode and gates access to the domain services.
type Kernel struct {
	cfg   Config
	log   logger.Logger
	bus   eventbus.EventBus
	plant *plantmodel.Store
	pool  *orderpool.Pool
	coord *coordinator.Coordinator
	sweep *sweeper.Sweeper
	store strategy.ModelPersister
	build StrategyFactory

	onShutdown func()

	// transition serializes SetState.
	transition sync.Mutex

	mu     sync.RWMutex
	state  model.KernelState
	strat  Strategies
	cancel context.CancelFunc
	runCtx context.Context
}

var _ strategy.StatusSink = (*Kernel)(nil)

// New returns a kernel in MODELLING.
func New(cfg Config, deps Deps, log logger.Logger) (*Kernel, error) {
	if deps.Bus == nil || deps.Plant == nil || deps.Pool == nil || deps.Coordinator == nil || deps.Strategies == nil {
		return nil, fmt.Errorf("kernel: bus, plant, pool, coordinator and strategies are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kernel{
		cfg:        cfg,
		log:        logger.OrNop(log),
		bus:        deps.Bus,
		plant:      deps.Plant,
		pool:       deps.Pool,
		coord:      deps.Coordinator,
		sweep:      deps.Sweeper,
		store:      deps.Persister,
		build:      deps.Strategies,
		onShutdown: deps.OnShutdown,
		state:      model.KernelModelling,
		runCtx:     context.Background(),
	}
	deps.Pool.SetGate(k.ordersOpen)
	stateGauge.Set(float64(model.KernelModelling))
	return k, nil
}

// Plant returns the plant model store.
func (k *Kernel) Plant() *plantmodel.Store { return k.plant }

// Pool returns the transport order pool.
func (k *Kernel) Pool() *orderpool.Pool { return k.pool }

// Domain returns the global domain lock.
func (k *Kernel) Domain() *domain.Domain { return k.plant.Domain() }

// State returns the current kernel state.
func (k *Kernel) State() model.KernelState {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// SetState switches the kernel to next. Switching to the current state is a
// no-op and SHUTDOWN cannot be left. When the new mode fails to initialize,
// the kernel falls back to the previous state and returns the error.
func (k *Kernel) SetState(ctx context.Context, next model.KernelState) error {
	k.transition.Lock()
	defer k.transition.Unlock()

	cur := k.State()
	if cur == next {
		return nil
	}
	if cur == model.KernelShutdown {
		return errs.NewIllegalStateError("kernel is shut down")
	}
	switch next {
	case model.KernelModelling, model.KernelOperating, model.KernelShutdown:
	default:
		return errs.NewIllegalArgumentError("state", fmt.Sprintf("unknown kernel state %d", next))
	}

	start := time.Now()
	k.log.Infof("kernel state transition %s -> %s", cur, next)
	k.bus.Publish(events.KernelStateTransitionEvent{Old: cur, New: next})

	// Order operations racing the teardown must already see the new state.
	k.setState(next)
	if cur == model.KernelOperating {
		k.terminateOperating(ctx)
	}

	var err error
	switch next {
	case model.KernelOperating:
		if err = k.initOperating(ctx); err != nil {
			k.log.Errorf("entering %s failed: %v", next, err)
			k.setState(cur)
		}
	case model.KernelShutdown:
		if k.onShutdown != nil {
			time.AfterFunc(k.cfg.ShutdownGrace, k.onShutdown)
		}
	}

	final := k.State()
	transitions.WithLabelValues(cur.String(), final.String()).Inc()
	transitionDuration.Observe(time.Since(start).Seconds())
	k.bus.Publish(events.KernelStateTransitionEvent{Old: cur, New: final, Finished: true})
	if err != nil {
		return fmt.Errorf("enter %s: %w", next, err)
	}
	k.log.Infof("kernel is now %s", final)
	return nil
}

func (k *Kernel) setState(st model.KernelState) {
	k.mu.Lock()
	k.state = st
	k.mu.Unlock()
	stateGauge.Set(float64(st))
}

func (k *Kernel) initOperating(ctx context.Context) error {
	if k.cfg.LoadModelOnStart && k.store != nil {
		ok, err := k.store.HasModel(ctx)
		if err != nil {
			return fmt.Errorf("check persisted model: %w", err)
		}
		if ok {
			m, err := k.store.LoadModel(ctx)
			if err != nil {
				return fmt.Errorf("load persisted model: %w", err)
			}
			if err := k.plant.Load(m); err != nil {
				return err
			}
		}
	}
	k.plant.ResetVehicles()

	strat, err := k.build(k)
	if err != nil {
		return fmt.Errorf("build strategies: %w", err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	k.mu.Lock()
	k.runCtx, k.cancel = runCtx, cancel
	k.mu.Unlock()

	var started []strategy.Lifecycle
	for _, s := range []strategy.Lifecycle{strat.Router, strat.Scheduler, strat.Controllers, strat.Dispatcher} {
		if s == nil {
			continue
		}
		if err := s.Initialize(runCtx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				started[i].Terminate()
			}
			cancel()
			return fmt.Errorf("initialize %T: %w", s, err)
		}
		started = append(started, s)
	}

	k.mu.Lock()
	k.strat = strat
	k.mu.Unlock()
	k.coord.Start(strat.Dispatcher, strat.Router)
	if k.sweep != nil {
		k.sweep.Start()
	}
	k.coord.ScheduleDispatch()
	return nil
}

func (k *Kernel) terminateOperating(ctx context.Context) {
	if k.cfg.SaveModelOnTerminate && k.store != nil {
		if err := k.store.SaveModel(ctx, k.plant.Snapshot()); err != nil {
			k.log.Errorf("persist plant model: %v", err)
		}
	}
	if k.sweep != nil {
		k.sweep.Stop()
	}
	// Stop deferred actions before their targets go away.
	k.coord.Stop()

	k.mu.Lock()
	strat, cancel := k.strat, k.cancel
	k.strat, k.cancel = Strategies{}, nil
	k.mu.Unlock()
	for _, s := range []strategy.Lifecycle{strat.Dispatcher, strat.Controllers, strat.Scheduler, strat.Router} {
		if s != nil {
			s.Terminate()
		}
	}
	if cancel != nil {
		cancel()
	}

	_ = k.Domain().Do(func(tx *domain.Tx) error {
		w := k.pool.With(tx)
		w.Plant().ResetVehicles()
		w.Clear()
		return nil
	})
}

// ordersOpen is the order pool's gate. It runs under the domain lock.
func (k *Kernel) ordersOpen() error {
	if st := k.State(); st != model.KernelOperating {
		return errs.NewIllegalStateError("transport orders cannot change while the kernel is %s", st)
	}
	return nil
}

// operatingDo runs fn under the domain lock if the kernel is OPERATING at
// that moment.
func (k *Kernel) operatingDo(op string, fn func(w *orderpool.Writer) error) error {
	return k.Domain().Do(func(tx *domain.Tx) error {
		if err := k.operating(op); err != nil {
			return err
		}
		return fn(k.pool.With(tx))
	})
}

// require fails unless the kernel is in one of the given states.
func (k *Kernel) require(op string, states ...model.KernelState) error {
	cur := k.State()
	for _, st := range states {
		if st == cur {
			return nil
		}
	}
	gatedRejections.WithLabelValues(op).Inc()
	return errs.NewIllegalStateError("%s is not allowed while the kernel is %s", op, cur)
}

// strategies returns the running strategies, failing outside OPERATING.
func (k *Kernel) strategies(op string) (Strategies, context.Context, error) {
	if err := k.require(op, model.KernelOperating); err != nil {
		return Strategies{}, nil, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.strat.Dispatcher == nil {
		return Strategies{}, nil, errs.NewIllegalStateError("%s: strategies are not running", op)
	}
	return k.strat, k.runCtx, nil
}
