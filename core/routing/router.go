// Package routing provides the default Router strategy: shortest paths by
// length over the plant topology, computed with gonum's Dijkstra.
//
// Locked paths are excluded. A path is traversable backwards only when its
// MaxReverseVelocity is positive.
package routing

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/agvkernel/core/errs"
	"github.com/kilianp07/agvkernel/core/logger"
	"github.com/kilianp07/agvkernel/core/model"
	"github.com/kilianp07/agvkernel/core/strategy"
)

// Topology supplies the paths the router works on.
type Topology interface {
	Points() []model.Point
	Paths() []model.Path
}

// Router answers route and cost queries. It is safe for concurrent use.
type Router struct {
	topo Topology
	log  logger.Logger

	mu    sync.RWMutex
	g     *simple.WeightedDirectedGraph
	ids   map[string]int64
	names map[int64]string
	edges int
	// trees caches shortest path trees by source node.
	trees map[int64]path.Shortest
}

var _ strategy.Router = (*Router)(nil)

// New returns a router reading its topology from topo.
func New(topo Topology, log logger.Logger) *Router {
	return &Router{topo: topo, log: logger.OrNop(log)}
}

// Initialize builds the routing graph.
func (r *Router) Initialize(context.Context) error {
	r.rebuild()
	return nil
}

func (r *Router) Terminate() {
	r.mu.Lock()
	r.g, r.trees = nil, nil
	r.mu.Unlock()
}

// UpdateRoutingTopology rebuilds the graph. The router always reads the full
// topology, so the paths argument only serves logging.
func (r *Router) UpdateRoutingTopology(paths []model.Path) {
	r.rebuild()
	r.log.Debugf("routing topology updated (%d changed paths)", len(paths))
}

func (r *Router) rebuild() {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	ids := map[string]int64{}
	names := map[int64]string{}
	for _, p := range r.topo.Points() {
		n := g.NewNode()
		g.AddNode(n)
		ids[p.Name] = n.ID()
		names[n.ID()] = p.Name
	}
	edges := 0
	addEdge := func(from, to string, w float64) {
		u, uok := ids[from]
		v, vok := ids[to]
		if !uok || !vok || u == v {
			return
		}
		// Parallel paths collapse into the shortest.
		if e := g.WeightedEdge(u, v); e != nil && e.Weight() <= w {
			return
		}
		if g.WeightedEdge(u, v) == nil {
			edges++
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(u), T: simple.Node(v), W: w})
	}
	for _, p := range r.topo.Paths() {
		if p.Locked {
			continue
		}
		addEdge(p.Source, p.Destination, float64(p.Length))
		if p.MaxReverseVelocity > 0 {
			addEdge(p.Destination, p.Source, float64(p.Length))
		}
	}

	r.mu.Lock()
	r.g, r.ids, r.names, r.edges = g, ids, names, edges
	r.trees = map[int64]path.Shortest{}
	r.mu.Unlock()
}

// Costs returns the length of the shortest route between two points.
func (r *Router) Costs(vehicle model.Vehicle, source, destination string) (int64, error) {
	_, cost, err := r.Route(vehicle, source, destination)
	return cost, err
}

// Route returns the points of the shortest route, source and destination
// included. A route from a point to itself has cost zero.
func (r *Router) Route(_ model.Vehicle, source, destination string) ([]string, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.g == nil {
		return nil, 0, errs.NewIllegalStateError("router is not initialized")
	}
	u, ok := r.ids[source]
	if !ok {
		return nil, 0, errs.NewObjectUnknownError("point", source)
	}
	v, ok := r.ids[destination]
	if !ok {
		return nil, 0, errs.NewObjectUnknownError("point", destination)
	}
	if u == v {
		return []string{source}, 0, nil
	}
	tree, ok := r.trees[u]
	if !ok {
		tree = path.DijkstraFrom(simple.Node(u), r.g)
		r.trees[u] = tree
	}
	nodes, w := tree.To(v)
	if len(nodes) == 0 || math.IsInf(w, 1) {
		return nil, 0, fmt.Errorf("%s -> %s: %w", source, destination, strategy.ErrNoRoute)
	}
	return r.pointNames(nodes), int64(w), nil
}

func (r *Router) pointNames(nodes []graph.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = r.names[n.ID()]
	}
	return out
}

func (r *Router) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.g == nil {
		return "dijkstra router (not initialized)"
	}
	return fmt.Sprintf("dijkstra router: %d points, %d edges", len(r.ids), r.edges)
}
