// Package sweeper periodically removes transport orders and order sequences
// that reached a final state and fell out of the retention window.
//
// Two policies exist and exactly one is active:
//   - age: remove entities created more than SweepAge ago
//   - amount: keep only the most recent MaxOrders orders and MaxSequences
//     sequences
//
// Only unwrapped final orders and finished sequences are eligible, so an
// order still referenced by a vehicle or an unfinished sequence is never
// removed.
package sweeper

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/agvkernel/core/domain"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/orderpool"
)

// Retention policies.
const (
	PolicyAge    = "age"
	PolicyAmount = "amount"
)

// Config configures the sweeper.
type Config struct {
	Interval     time.Duration `json:"interval"`
	Policy       string        `json:"policy"`
	SweepAge     time.Duration `json:"sweep_age"`
	MaxOrders    int           `json:"max_orders"`
	MaxSequences int           `json:"max_sequences"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Interval == 0 {
		c.Interval = time.Minute
	}
	if c.Policy == "" {
		c.Policy = PolicyAge
	}
	if c.SweepAge == 0 {
		c.SweepAge = 24 * time.Hour
	}
	if c.MaxOrders == 0 {
		c.MaxOrders = 1000
	}
	if c.MaxSequences == 0 {
		c.MaxSequences = 100
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval < time.Second {
		return fmt.Errorf("sweeper: interval must be at least 1s")
	}
	switch c.Policy {
	case PolicyAge:
		if c.SweepAge <= 0 {
			return fmt.Errorf("sweeper: sweep_age must be positive")
		}
	case PolicyAmount:
		if c.MaxOrders < 0 || c.MaxSequences < 0 {
			return fmt.Errorf("sweeper: max_orders and max_sequences must not be negative")
		}
	default:
		return fmt.Errorf("sweeper: unknown policy %q", c.Policy)
	}
	return nil
}

// Result counts the entities removed by one sweep.
type Result struct {
	Orders    int
	Sequences int
}

// Sweeper removes expired orders on a fixed interval.
type Sweeper struct {
	pool *orderpool.Pool
	cfg  Config
	log  logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates cfg and returns a stopped sweeper.
func New(pool *orderpool.Pool, cfg Config, log logger.Logger) (*Sweeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sweeper{pool: pool, cfg: cfg, log: logger.OrNop(log)}, nil
}

// Start schedules the periodic sweep.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}
	s.cron = cron.New()
	s.cron.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		if _, err := s.SweepNow(s.pool.Now()); err != nil {
			s.log.Errorf("order sweep failed, retrying next tick: %v", err)
		}
	}))
	s.cron.Start()
	s.log.Infof("order sweeper started: policy=%s interval=%s", s.cfg.Policy, s.cfg.Interval)
}

// Stop cancels the schedule and waits for a running sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Infof("order sweeper stopped")
}

// SweepNow runs one sweep as of now. Individual removal failures are
// collected and do not stop the sweep.
func (s *Sweeper) SweepNow(now time.Time) (Result, error) {
	var (
		res  Result
		errs []error
	)
	start := time.Now()
	_ = s.pool.Domain().Do(func(tx *domain.Tx) error {
		w := s.pool.With(tx)
		orders, seqs := s.candidates(w, now)
		for _, name := range orders {
			if err := w.RemoveTransportOrder(name); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Orders++
		}
		for _, name := range seqs {
			seq, err := w.OrderSequence(name)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := w.RemoveOrderSequence(name); err != nil {
				errs = append(errs, err)
				continue
			}
			res.Sequences++
			res.Orders += len(seq.Orders)
		}
		// Removals already applied must still be published.
		return nil
	})
	sweepRuns.Inc()
	sweepDuration.Observe(time.Since(start).Seconds())
	removed.WithLabelValues("order").Add(float64(res.Orders))
	removed.WithLabelValues("sequence").Add(float64(res.Sequences))
	if len(errs) > 0 {
		sweepFailures.Inc()
	}
	if res.Orders > 0 || res.Sequences > 0 {
		s.log.Infof("swept %d orders and %d sequences", res.Orders, res.Sequences)
	}
	return res, errors.Join(errs...)
}

func (s *Sweeper) candidates(w *orderpool.Writer, now time.Time) (orders, seqs []string) {
	eligible := w.TransportOrders(func(o model.TransportOrder) bool {
		return o.State.IsFinal() && o.WrappingSequence == ""
	})
	var finished []model.OrderSequence
	for _, seq := range w.OrderSequences() {
		if seq.Finished {
			finished = append(finished, seq)
		}
	}

	switch s.cfg.Policy {
	case PolicyAmount:
		// Both lists are sorted oldest first.
		for i := 0; i < len(eligible)-s.cfg.MaxOrders; i++ {
			orders = append(orders, eligible[i].Name)
		}
		for i := 0; i < len(finished)-s.cfg.MaxSequences; i++ {
			seqs = append(seqs, finished[i].Name)
		}
	default:
		threshold := now.Add(-s.cfg.SweepAge)
		for _, o := range eligible {
			if o.CreationTime.Before(threshold) {
				orders = append(orders, o.Name)
			}
		}
		for _, seq := range finished {
			if lastMemberBefore(w, seq, threshold) {
				seqs = append(seqs, seq.Name)
			}
		}
	}
	return orders, seqs
}

// lastMemberBefore reports whether the sequence is empty or its last order
// was created before threshold.
func lastMemberBefore(w *orderpool.Writer, seq model.OrderSequence, threshold time.Time) bool {
	if len(seq.Orders) == 0 {
		return true
	}
	last, err := w.TransportOrder(seq.Orders[len(seq.Orders)-1])
	if err != nil {
		return true
	}
	return last.CreationTime.Before(threshold)
}
