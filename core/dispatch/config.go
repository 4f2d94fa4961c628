package dispatch

import "fmt"

// Assignment solvers.
const (
	SolverLP     = "lp"
	SolverGreedy = "greedy"
)

// Config defines dispatch-related settings.
type Config struct {
	// Solver selects how vehicles are matched to orders. The LP solver falls
	// back to greedy matching when it fails or the problem is too large.
	Solver         string `json:"solver"`
	MaxLPVariables int    `json:"max_lp_variables"`
	// WithdrawUnroutableDispensable withdraws dispensable orders that no
	// candidate vehicle can route.
	WithdrawUnroutableDispensable bool `json:"withdraw_unroutable_dispensable"`
	// AssignCriticalEnergy allows orders for vehicles with critical energy.
	AssignCriticalEnergy bool `json:"assign_critical_energy"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Solver == "" {
		c.Solver = SolverLP
	}
	if c.MaxLPVariables == 0 {
		c.MaxLPVariables = 200
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Solver {
	case SolverLP, SolverGreedy:
	default:
		return fmt.Errorf("dispatch: unknown solver %q", c.Solver)
	}
	if c.MaxLPVariables < 0 {
		return fmt.Errorf("dispatch: max_lp_variables must not be negative")
	}
	return nil
}
