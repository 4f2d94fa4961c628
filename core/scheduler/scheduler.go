package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// Scheduler grants exclusive resource allocations.
type Scheduler struct {
	log logger.Logger

	mu     sync.Mutex
	owners map[string]string
	held   map[string][]string
}

var _ strategy.Scheduler = (*Scheduler)(nil)

// New returns an empty scheduler.
func New(log logger.Logger) *Scheduler {
	return &Scheduler{
		log:    logger.OrNop(log),
		owners: map[string]string{},
		held:   map[string][]string{},
	}
}

func (s *Scheduler) Initialize(context.Context) error {
	s.reset()
	return nil
}

func (s *Scheduler) Terminate() { s.reset() }

func (s *Scheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.owners)
	clear(s.held)
}

// Allocate grants all resources to vehicle or none of them. Resources the
// vehicle already holds are accepted again.
func (s *Scheduler) Allocate(vehicle string, resources []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		if owner, ok := s.owners[r]; ok && owner != vehicle {
			conflicts.Inc()
			return errs.NewIllegalStateError("resource %q is allocated by %q", r, owner)
		}
	}
	for _, r := range resources {
		if _, ok := s.owners[r]; ok {
			continue
		}
		s.owners[r] = vehicle
		s.held[vehicle] = append(s.held[vehicle], r)
	}
	allocated.Set(float64(len(s.owners)))
	return nil
}

// Free releases the given resources if vehicle holds them.
func (s *Scheduler) Free(vehicle string, resources []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		if s.owners[r] != vehicle {
			continue
		}
		delete(s.owners, r)
		s.held[vehicle] = slices.DeleteFunc(s.held[vehicle], func(h string) bool { return h == r })
	}
	if len(s.held[vehicle]) == 0 {
		delete(s.held, vehicle)
	}
	allocated.Set(float64(len(s.owners)))
}

// FreeAll releases every resource held by vehicle.
func (s *Scheduler) FreeAll(vehicle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.held[vehicle] {
		delete(s.owners, r)
	}
	delete(s.held, vehicle)
	allocated.Set(float64(len(s.owners)))
}

func (s *Scheduler) Allocations() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.held))
	for v, rs := range s.held {
		out[v] = slices.Clone(rs)
	}
	return out
}

// Owner returns the vehicle holding resource, if any.
func (s *Scheduler) Owner(resource string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.owners[resource]
	return v, ok
}

func (s *Scheduler) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicles := make([]string, 0, len(s.held))
	for v := range s.held {
		vehicles = append(vehicles, v)
	}
	slices.Sort(vehicles)
	return fmt.Sprintf("scheduler: %d resources held by %v", len(s.owners), vehicles)
}
