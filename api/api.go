// Package api exposes the kernel service over HTTP.
//
// Routes live under /api/v1 and exchange JSON. Every route except /health and
// /metrics requires "Authorization: Bearer <token>" when a token is
// configured. Kernel errors map onto status codes by kind:
//
//	object_unknown    404
//	object_exists     409
//	illegal_state     409
//	illegal_argument  400
//	unauthorized      401
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderlog"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

// Service is the subset of the kernel facade served over HTTP.
type Service interface {
	State() model.KernelState
	SetState(ctx context.Context, next model.KernelState) error

	CreateTransportOrder(spec orderpool.TransportOrderSpec) (model.TransportOrder, error)
	ActivateTransportOrder(name string) (model.TransportOrder, error)
	WithdrawTransportOrder(name string, immediate, disableVehicle bool) error
	TransportOrder(name string) (model.TransportOrder, error)
	TransportOrders(filter func(model.TransportOrder) bool) ([]model.TransportOrder, error)
	AddDependency(order, dependency string) error
	RemoveDependency(order, dependency string) error
	UpdateOrderDeadline(order string, deadline time.Time) error
	UpdateIntendedVehicle(order, vehicle string) error

	CreateOrderSequence(spec orderpool.OrderSequenceSpec) (model.OrderSequence, error)
	SetOrderSequenceComplete(name string) error
	OrderSequence(name string) (model.OrderSequence, error)
	OrderSequences() ([]model.OrderSequence, error)

	Vehicle(name string) (model.Vehicle, error)
	Vehicles() []model.Vehicle
	UpdateVehicleIntegrationLevel(vehicle string, lvl model.IntegrationLevel) error
	DispatchVehicle(vehicle string) error
	ReleaseVehicle(vehicle string) error
	WithdrawByVehicle(vehicle string, immediate, disableVehicle bool) error
	RerouteVehicle(vehicle string, kind model.ReroutingType) error

	Paths() []model.Path
	LockPath(name string, locked bool) error
	RouteCosts(vehicle, source, destination string) (int64, error)
	RouterInfo() (string, error)
	Allocations() (map[string][]string, error)
	SaveModel(ctx context.Context) error
}

// Config holds HTTP server settings.
type Config struct {
	Addr            string        `json:"addr"`
	Token           string        `json:"token"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("api: timeouts must not be negative")
	}
	return nil
}

// Handlers serves the kernel API.
type Handlers struct {
	svc     Service
	orders  orderlog.Store
	metrics http.Handler
	token   string
	log     logger.Logger
}

// Option configures the router.
type Option func(*Handlers)

// WithOrderLog enables GET /api/v1/orderlog.
func WithOrderLog(store orderlog.Store) Option {
	return func(h *Handlers) { h.orders = store }
}

// WithMetrics mounts h at /metrics.
func WithMetrics(m http.Handler) Option {
	return func(h *Handlers) { h.metrics = m }
}

// NewRouter returns the HTTP handler for svc. An empty token disables
// authentication.
func NewRouter(svc Service, token string, log logger.Logger, opts ...Option) http.Handler {
	h := &Handlers{svc: svc, token: token, log: logger.OrNop(log)}
	for _, o := range opts {
		o(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.requireToken)

		r.Get("/kernel/state", h.getKernelState)
		r.Put("/kernel/state", h.putKernelState)
		r.Post("/kernel/model/save", h.saveModel)

		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{name}", h.getOrder)
		r.Post("/orders/{name}/withdraw", h.withdrawOrder)
		r.Post("/orders/{name}/dependencies", h.addDependency)
		r.Delete("/orders/{name}/dependencies/{dependency}", h.removeDependency)
		r.Put("/orders/{name}/deadline", h.putDeadline)
		r.Put("/orders/{name}/intended-vehicle", h.putIntendedVehicle)

		r.Get("/sequences", h.listSequences)
		r.Post("/sequences", h.createSequence)
		r.Get("/sequences/{name}", h.getSequence)
		r.Post("/sequences/{name}/complete", h.completeSequence)

		r.Get("/vehicles", h.listVehicles)
		r.Get("/vehicles/{name}", h.getVehicle)
		r.Put("/vehicles/{name}/integration-level", h.putIntegrationLevel)
		r.Post("/vehicles/{name}/dispatch", h.dispatchVehicle)
		r.Post("/vehicles/{name}/release", h.releaseVehicle)
		r.Post("/vehicles/{name}/withdraw", h.withdrawByVehicle)
		r.Post("/vehicles/{name}/reroute", h.rerouteVehicle)

		r.Get("/paths", h.listPaths)
		r.Put("/paths/{name}/lock", h.putPathLock)

		r.Get("/router", h.routerInfo)
		r.Get("/router/costs", h.routeCosts)
		r.Get("/allocations", h.allocations)

		r.Get("/orderlog", h.queryOrderLog)
	})
	return r
}

// Serve runs an HTTP server for handler until ctx is canceled.
func Serve(ctx context.Context, cfg Config, handler http.Handler, log logger.Logger) error {
	log = logger.OrNop(log)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("api server shutdown: %v", err)
		}
	}()
	log.Infof("serving api on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Handlers) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debugw("http request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  h.svc.State().String(),
	})
}
