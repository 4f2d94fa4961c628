package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agvkernel/core/coordinator"
	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/events"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
	"github.com/kilianp07/agvkernel/core/plantmodel"
	"github.com/kilianp07/agvkernel/core/strategy"
	"github.com/kilianp07/agvkernel/internal/eventbus"
)

// journal records lifecycle calls across all fakes.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.calls = append(j.calls, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type lifecycle struct {
	name        string
	j           *journal
	initErr     error
	onTerminate func()
}

func (l *lifecycle) Initialize(context.Context) error {
	if l.initErr != nil {
		return l.initErr
	}
	l.j.add("init " + l.name)
	return nil
}

func (l *lifecycle) Terminate() {
	l.j.add("terminate " + l.name)
	if l.onTerminate != nil {
		l.onTerminate()
	}
}

type fakeDispatcher struct {
	lifecycle
	mu         sync.Mutex
	dispatches int
	withdrawn  []string
}

func (d *fakeDispatcher) Dispatch() {
	d.mu.Lock()
	d.dispatches++
	d.mu.Unlock()
}
func (d *fakeDispatcher) DispatchVehicle(string) {}
func (d *fakeDispatcher) WithdrawOrder(order string, _, _ bool) error {
	d.mu.Lock()
	d.withdrawn = append(d.withdrawn, order)
	d.mu.Unlock()
	return nil
}
func (d *fakeDispatcher) WithdrawByVehicle(string, bool, bool) error { return nil }
func (d *fakeDispatcher) ReleaseVehicle(string) error                { return nil }
func (d *fakeDispatcher) Reroute(string, model.ReroutingType) error  { return nil }
func (d *fakeDispatcher) RerouteAll(model.ReroutingType)             {}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatches
}

type fakeRouter struct{ lifecycle }

func (r *fakeRouter) UpdateRoutingTopology([]model.Path) {}
func (r *fakeRouter) Costs(model.Vehicle, string, string) (int64, error) {
	return 42, nil
}
func (r *fakeRouter) Route(model.Vehicle, string, string) ([]string, int64, error) {
	return nil, 0, strategy.ErrNoRoute
}
func (r *fakeRouter) Info() string { return "fake" }

type fakeScheduler struct {
	lifecycle
	mu    sync.Mutex
	alloc map[string][]string
}

func (s *fakeScheduler) Allocate(vehicle string, resources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alloc[vehicle] = append(s.alloc[vehicle], resources...)
	return nil
}
func (s *fakeScheduler) Free(string, []string) {}
func (s *fakeScheduler) FreeAll(vehicle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alloc, vehicle)
}
func (s *fakeScheduler) Allocations() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]string{}
	for k, v := range s.alloc {
		out[k] = append([]string(nil), v...)
	}
	return out
}

type fakeController struct {
	mu   sync.Mutex
	sent []model.DriveOrder
}

func (c *fakeController) SendDriveOrder(_ context.Context, _ model.TransportOrder, d model.DriveOrder) error {
	c.mu.Lock()
	c.sent = append(c.sent, d)
	c.mu.Unlock()
	return nil
}
func (c *fakeController) AbortDriveOrder(context.Context, bool) error                 { return nil }
func (c *fakeController) SendCommAdapterMessage(context.Context, map[string]any) error { return nil }

type fakeControllers struct {
	lifecycle
	ctrl *fakeController
}

func (p *fakeControllers) Controller(string) (strategy.VehicleController, error) {
	return p.ctrl, nil
}

type memPersister struct {
	mu    sync.Mutex
	saved *model.PlantModel
}

func (m *memPersister) SaveModel(_ context.Context, pm model.PlantModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &pm
	return nil
}
func (m *memPersister) LoadModel(context.Context) (model.PlantModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return model.PlantModel{}, errors.New("nothing saved")
	}
	return *m.saved, nil
}
func (m *memPersister) HasModel(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved != nil, nil
}

type fixture struct {
	j          *journal
	bus        *eventbus.Bus
	k          *Kernel
	dispatcher *fakeDispatcher
	router     *fakeRouter
	sched      *fakeScheduler
	ctrl       *fakeController
	store      *memPersister
	shutdown   chan struct{}
}

func testModel() model.PlantModel {
	return model.PlantModel{
		Name:          "plant",
		Points:        []model.Point{{Name: "P1"}, {Name: "P2"}},
		Paths:         []model.Path{{Name: "P1--P2", Source: "P1", Destination: "P2", Length: 10}},
		LocationTypes: []model.LocationType{{Name: "station", AllowedOperations: []string{"LOAD", "UNLOAD"}}},
		Locations: []model.Location{
			{Name: "L1", Type: "station", Links: []string{"P1"}},
			{Name: "L2", Type: "station", Links: []string{"P2"}},
		},
		Vehicles: []model.Vehicle{{Name: "V1"}},
	}
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{j: &journal{}, bus: eventbus.New(), shutdown: make(chan struct{}), store: &memPersister{}}
	f.dispatcher = &fakeDispatcher{lifecycle: lifecycle{name: "dispatcher", j: f.j}}
	f.router = &fakeRouter{lifecycle: lifecycle{name: "router", j: f.j}}
	f.sched = &fakeScheduler{lifecycle: lifecycle{name: "scheduler", j: f.j}, alloc: map[string][]string{}}
	f.ctrl = &fakeController{}
	controllers := &fakeControllers{lifecycle: lifecycle{name: "controllers", j: f.j}, ctrl: f.ctrl}

	plant := plantmodel.New(domain.New(f.bus), nil)
	require.NoError(t, plant.Load(testModel()))
	pool := orderpool.New(plant, nil)
	var once sync.Once
	k, err := New(cfg, Deps{
		Bus:         f.bus,
		Plant:       plant,
		Pool:        pool,
		Coordinator: coordinator.New(f.bus, coordinator.Options{}, nil),
		Persister:   f.store,
		Strategies: func(*Kernel) (Strategies, error) {
			return Strategies{Dispatcher: f.dispatcher, Router: f.router, Scheduler: f.sched, Controllers: controllers}, nil
		},
		OnShutdown: func() { once.Do(func() { close(f.shutdown) }) },
	}, nil)
	require.NoError(t, err)
	f.k = k
	t.Cleanup(func() { _ = k.SetState(context.Background(), model.KernelModelling) })
	return f
}

func (f *fixture) operate(t *testing.T) {
	t.Helper()
	require.NoError(t, f.k.SetState(context.Background(), model.KernelOperating))
}

func twoStops() []model.Destination {
	return []model.Destination{{Location: "L1", Operation: "LOAD"}, {Location: "L2", Operation: "UNLOAD"}}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{}, nil)
	assert.Error(t, err)
}

func TestModellingGatesOrderOperations(t *testing.T) {
	f := newFixture(t, Config{})
	assert.Equal(t, model.KernelModelling, f.k.State())

	_, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	assert.ErrorIs(t, err, errs.ErrIllegalState)
	_, err = f.k.TransportOrders(nil)
	assert.ErrorIs(t, err, errs.ErrIllegalState)
	assert.ErrorIs(t, f.k.UpdateVehiclePosition("V1", "P1"), errs.ErrIllegalState)

	_, err = f.k.CreatePoint(model.Point{Name: "P3"})
	assert.NoError(t, err)
	assert.NoError(t, f.k.LockPath("P1--P2", true))
}

func TestOperatingGatesModelEdits(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)

	_, err := f.k.CreatePoint(model.Point{Name: "P3"})
	assert.ErrorIs(t, err, errs.ErrIllegalState)
	assert.ErrorIs(t, f.k.LoadModel(testModel()), errs.ErrIllegalState)
	assert.ErrorIs(t, f.k.RemoveVehicle("V1"), errs.ErrIllegalState)

	_, err = f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	assert.NoError(t, err)
	assert.NoError(t, f.k.LockPath("P1--P2", true))
}

func TestSetStatePublishesAndInitializes(t *testing.T) {
	f := newFixture(t, Config{})
	var seen []events.KernelStateTransitionEvent
	eventbus.SubscribeTypes(f.bus, func(e events.KernelStateTransitionEvent) { seen = append(seen, e) })

	f.operate(t)
	require.Len(t, seen, 2)
	assert.Equal(t, events.KernelStateTransitionEvent{Old: model.KernelModelling, New: model.KernelOperating}, seen[0])
	assert.True(t, seen[1].Finished)
	assert.Equal(t, []string{"init router", "init scheduler", "init controllers", "init dispatcher"}, f.j.list())

	v, err := f.k.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcUnavailable, v.ProcState)
	assert.Equal(t, model.VehicleUnknown, v.State)

	assert.Eventually(t, func() bool { return f.dispatcher.count() >= 1 }, time.Second, 10*time.Millisecond)

	// Same state is a no-op.
	f.operate(t)
	assert.Len(t, seen, 2)
}

func TestLeavingOperatingTearsDown(t *testing.T) {
	f := newFixture(t, Config{SaveModelOnTerminate: true})
	f.operate(t)
	o, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	require.NoError(t, err)
	require.NotEmpty(t, o.Name)
	require.NoError(t, f.k.UpdateVehicleState("V1", model.VehicleIdle))
	require.NoError(t, f.k.UpdateVehiclePosition("V1", "P1"))
	require.NoError(t, f.k.UpdateVehicleEnergyLevel("V1", 80))
	v, err := f.k.Plant().Vehicle("V1")
	require.NoError(t, err)
	require.Equal(t, model.ProcIdle, v.ProcState)
	require.Equal(t, []string{"P1"}, v.AllocatedResources)

	require.NoError(t, f.k.SetState(context.Background(), model.KernelModelling))
	assert.Equal(t, []string{
		"init router", "init scheduler", "init controllers", "init dispatcher",
		"terminate dispatcher", "terminate controllers", "terminate scheduler", "terminate router",
	}, f.j.list())
	assert.Empty(t, f.k.Pool().TransportOrders(nil))
	ok, err := f.store.HasModel(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	v, err = f.k.Plant().Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcUnavailable, v.ProcState)
	assert.Equal(t, model.VehicleUnknown, v.State)
	assert.Empty(t, v.CurrentPosition)
	assert.Empty(t, v.TransportOrder)
	assert.Empty(t, v.OrderSequence)
	assert.Empty(t, v.AllocatedResources)
}

func TestOrdersRejectedDuringTeardown(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)

	var lateErr error
	f.dispatcher.onTerminate = func() {
		_, lateErr = f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Name: "late", Destinations: twoStops()})
	}
	eventbus.SubscribeTypes(f.bus, func(e events.TransportOrderChangedEvent) {
		if e.Removed() {
			_, err := f.k.Pool().CreateTransportOrder(orderpool.TransportOrderSpec{Name: "later", Destinations: twoStops()})
			assert.ErrorIs(t, err, errs.ErrIllegalState)
		}
	})
	_, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Name: "T1", Destinations: twoStops()})
	require.NoError(t, err)

	require.NoError(t, f.k.SetState(context.Background(), model.KernelModelling))
	assert.ErrorIs(t, lateErr, errs.ErrIllegalState)
	assert.Empty(t, f.k.Pool().TransportOrders(nil))
	assert.Equal(t, model.KernelModelling, f.k.State())
}

func TestFailedInitializationFallsBack(t *testing.T) {
	f := newFixture(t, Config{})
	f.dispatcher.initErr = errors.New("boom")

	err := f.k.SetState(context.Background(), model.KernelOperating)
	require.Error(t, err)
	assert.Equal(t, model.KernelModelling, f.k.State())
	assert.Equal(t, []string{
		"init router", "init scheduler", "init controllers",
		"terminate controllers", "terminate scheduler", "terminate router",
	}, f.j.list())
}

func TestShutdownIsFinal(t *testing.T) {
	f := newFixture(t, Config{ShutdownGrace: 10 * time.Millisecond})
	f.operate(t)
	require.NoError(t, f.k.SetState(context.Background(), model.KernelShutdown))

	select {
	case <-f.shutdown:
	case <-time.After(time.Second):
		t.Fatal("shutdown hook not called")
	}
	err := f.k.SetState(context.Background(), model.KernelModelling)
	assert.ErrorIs(t, err, errs.ErrIllegalState)
	assert.Equal(t, model.KernelShutdown, f.k.State())
}

func TestLoadModelOnStart(t *testing.T) {
	f := newFixture(t, Config{LoadModelOnStart: true})
	saved := testModel()
	saved.Name = "persisted"
	require.NoError(t, f.store.SaveModel(context.Background(), saved))

	f.operate(t)
	assert.Equal(t, "persisted", f.k.Model().Name)
}

func TestDriveOrderProgression(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)
	o, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	require.NoError(t, err)
	_, err = f.k.ActivateTransportOrder(o.Name)
	require.NoError(t, err)
	_, err = f.k.Pool().SetTransportOrderState(o.Name, model.OrderDispatchable)
	require.NoError(t, err)
	_, err = f.k.Pool().AssignTransportOrder(o.Name, "V1", nil)
	require.NoError(t, err)

	require.NoError(t, f.k.DriveOrderFinished("V1"))
	require.Len(t, f.ctrl.sent, 1)
	assert.Equal(t, "L2", f.ctrl.sent[0].Destination.Location)

	require.NoError(t, f.k.DriveOrderFinished("V1"))
	o, err = f.k.TransportOrder(o.Name)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFinished, o.State)
	v, err := f.k.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcAwaitingOrder, v.ProcState)
	assert.Empty(t, v.TransportOrder)

	assert.ErrorIs(t, f.k.DriveOrderFinished("V1"), errs.ErrIllegalState)
}

func TestPendingWithdrawalDisablesVehicle(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)
	require.NoError(t, f.k.UpdateVehicleState("V1", model.VehicleIdle))
	o, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	require.NoError(t, err)
	_, err = f.k.Pool().SetTransportOrderState(o.Name, model.OrderDispatchable)
	require.NoError(t, err)
	_, err = f.k.Pool().AssignTransportOrder(o.Name, "V1", nil)
	require.NoError(t, err)
	_, err = f.k.Pool().MarkWithdrawal(o.Name, false, true)
	require.NoError(t, err)

	require.NoError(t, f.k.DriveOrderFinished("V1"))
	o, err = f.k.TransportOrder(o.Name)
	require.NoError(t, err)
	assert.Equal(t, model.OrderWithdrawn, o.State)
	v, err := f.k.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcUnavailable, v.ProcState)
	assert.Empty(t, f.ctrl.sent)

	// Status reports do not bring a disabled vehicle back.
	require.NoError(t, f.k.UpdateVehicleState("V1", model.VehicleIdle))
	v, _ = f.k.Vehicle("V1")
	assert.Equal(t, model.ProcUnavailable, v.ProcState)

	require.NoError(t, f.k.UpdateVehicleIntegrationLevel("V1", model.IntegrationToBeUtilized))
	v, _ = f.k.Vehicle("V1")
	assert.Equal(t, model.ProcIdle, v.ProcState)
}

func TestDriveOrderFailed(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)
	o, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	require.NoError(t, err)
	_, err = f.k.Pool().SetTransportOrderState(o.Name, model.OrderDispatchable)
	require.NoError(t, err)
	_, err = f.k.Pool().AssignTransportOrder(o.Name, "V1", nil)
	require.NoError(t, err)

	require.NoError(t, f.k.DriveOrderFailed("V1", "blocked"))
	o, err = f.k.TransportOrder(o.Name)
	require.NoError(t, err)
	assert.Equal(t, model.OrderFailed, o.State)
	require.Len(t, o.Rejections, 1)
	assert.Equal(t, "blocked", o.Rejections[0].Reason)
}

func TestVehicleStatusReports(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)

	require.NoError(t, f.k.UpdateVehicleState("V1", model.VehicleIdle))
	require.NoError(t, f.k.UpdateVehiclePosition("V1", "P1"))
	require.NoError(t, f.k.UpdateVehicleEnergyLevel("V1", 80))

	v, err := f.k.Vehicle("V1")
	require.NoError(t, err)
	assert.Equal(t, model.ProcIdle, v.ProcState)
	assert.Equal(t, "P1", v.CurrentPosition)
	assert.Equal(t, 80, v.EnergyLevel)
	assert.Equal(t, []string{"P1"}, v.AllocatedResources)

	alloc, err := f.k.Allocations()
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"V1": {"P1"}}, alloc)

	cost, err := f.k.RouteCosts("V1", "P1", "P2")
	require.NoError(t, err)
	assert.EqualValues(t, 42, cost)
}

func TestWithdrawGoesThroughDispatcher(t *testing.T) {
	f := newFixture(t, Config{})
	f.operate(t)
	o, err := f.k.CreateTransportOrder(orderpool.TransportOrderSpec{Destinations: twoStops()})
	require.NoError(t, err)

	require.NoError(t, f.k.WithdrawTransportOrder(o.Name, false, false))
	assert.Equal(t, []string{o.Name}, f.dispatcher.withdrawn)
	assert.ErrorIs(t, f.k.WithdrawTransportOrder("nope", false, false), errs.ErrObjectUnknown)
}
