package dispatch

import (
	"cmp"
	"errors"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/agvkernel/core/model"
)

// option is one feasible vehicle/order pairing.
type option struct {
	vehicle int
	order   int
	cost    int64
	drives  []model.DriveOrder
}

// ErrInfeasible indicates the LP solution was not a valid matching.
var ErrInfeasible = errors.New("lp infeasible")

// solveLP matches vehicles to orders with a linear program. Every vehicle
// and every order appears in at most one chosen option; among the matchings
// of maximum size the one with the lowest total cost wins. The constraint
// matrix of a bipartite matching is totally unimodular, so the simplex
// vertex is integral.
func solveLP(opts []option, vehicles, orders int) ([]int, error) {
	n := len(opts)
	if n == 0 {
		return nil, nil
	}
	var total float64
	for _, o := range opts {
		total += float64(o.cost)
	}
	bonus := total + 1
	c := make([]float64, n)
	for k, o := range opts {
		c[k] = float64(o.cost) - bonus
	}

	rows := vehicles + orders + n
	g := mat.NewDense(rows, n, nil)
	h := make([]float64, rows)
	for k, o := range opts {
		g.Set(o.vehicle, k, 1)
		g.Set(vehicles+o.order, k, 1)
		g.Set(vehicles+orders+k, k, -1)
	}
	for i := 0; i < vehicles+orders; i++ {
		h[i] = 1
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, nil, nil)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	if err != nil {
		return nil, err
	}

	var chosen []int
	usedV := map[int]bool{}
	usedO := map[int]bool{}
	for k, o := range opts {
		// Convert splits free variables into x = x+ - x-.
		x := sol[k] - sol[n+k]
		if x < 0.5 {
			continue
		}
		if usedV[o.vehicle] || usedO[o.order] {
			return nil, ErrInfeasible
		}
		usedV[o.vehicle], usedO[o.order] = true, true
		chosen = append(chosen, k)
	}
	return chosen, nil
}

// lpSolve points to the function used to solve the LP. It can be overridden in
// tests to simulate solver failures.
var lpSolve = solveLP

// solveGreedy walks the orders by priority and gives each the cheapest
// vehicle still free. Ties go to the vehicle listed first.
func solveGreedy(opts []option) []int {
	idx := make([]int, len(opts))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := cmp.Compare(opts[a].order, opts[b].order); c != 0 {
			return c
		}
		if c := cmp.Compare(opts[a].cost, opts[b].cost); c != 0 {
			return c
		}
		return cmp.Compare(opts[a].vehicle, opts[b].vehicle)
	})
	var chosen []int
	usedV := map[int]bool{}
	usedO := map[int]bool{}
	for _, k := range idx {
		o := opts[k]
		if usedV[o.vehicle] || usedO[o.order] {
			continue
		}
		usedV[o.vehicle], usedO[o.order] = true, true
		chosen = append(chosen, k)
	}
	return chosen
}
