// Package orderlog keeps a history of transport orders that reached a final
// state. The pool forgets orders once the retention sweeper removes them; the
// order log outlives that and answers queries by time, vehicle and state.
package orderlog

import (
	"context"
	"time"

	"github.com/kilianp07/agvkernel/core/factory"
	"github.com/kilianp07/agvkernel/core/model"
)

// Record captures one transport order at the moment it became final.
type Record struct {
	Timestamp    time.Time         `json:"timestamp"`
	Order        string            `json:"order"`
	Type         string            `json:"type,omitempty"`
	State        model.OrderState  `json:"state"`
	Vehicle      string            `json:"vehicle,omitempty"`
	Sequence     string            `json:"sequence,omitempty"`
	Created      time.Time         `json:"created"`
	Destinations []string          `json:"destinations"`
	Rejections   []model.Rejection `json:"rejections,omitempty"`
	Dispensable  bool              `json:"dispensable"`
}

// NewRecord builds the record of a final order.
func NewRecord(o model.TransportOrder, now time.Time) Record {
	ts := o.FinishedTime
	if ts.IsZero() {
		ts = now
	}
	dests := make([]string, 0, len(o.DriveOrders))
	for _, d := range o.DriveOrders {
		dests = append(dests, d.Destination.Location)
	}
	return Record{
		Timestamp:    ts,
		Order:        o.Name,
		Type:         o.Type,
		State:        o.State,
		Vehicle:      o.ProcessingVehicle,
		Sequence:     o.WrappingSequence,
		Created:      o.CreationTime,
		Destinations: dests,
		Rejections:   o.Rejections,
		Dispensable:  o.Dispensable,
	}
}

// Query defines filters for retrieving records. Zero fields match all.
type Query struct {
	Start   time.Time
	End     time.Time
	Vehicle string
	States  []model.OrderState
	Limit   int
}

// Matches reports whether r passes every filter of q except Limit.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Vehicle != "" && r.Vehicle != q.Vehicle {
		return false
	}
	if len(q.States) > 0 {
		for _, s := range q.States {
			if s == r.State {
				return true
			}
		}
		return false
	}
	return true
}

// Store persists records and supports querying. Query returns records in
// append order.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

var storeRegistry = factory.NewRegistry[Store]("order log store")

// RegisterStore adds a store factory identified by name.
func RegisterStore(name string, f factory.Factory[Store]) error {
	return storeRegistry.Register(name, f)
}

// NewStore creates the store described by cfg.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	return storeRegistry.Create(cfg)
}

type pathConf struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

func init() {
	_ = RegisterStore("jsonl", func(conf map[string]any) (Store, error) {
		var c pathConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONLStore(c.Path)
	})
	_ = RegisterStore("jsonl_rotating", func(conf map[string]any) (Store, error) {
		c := pathConf{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewRotatingJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
	_ = RegisterStore("sqlite", func(conf map[string]any) (Store, error) {
		var c pathConf
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSQLiteStore(c.Path)
	})
}

func limit(recs []Record, n int) []Record {
	if n > 0 && len(recs) > n {
		return recs[len(recs)-n:]
	}
	return recs
}
