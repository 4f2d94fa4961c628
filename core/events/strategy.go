package events

// StrategyEvent reports a decision of a strategy, for example a solver
// fallback of the dispatcher.
type StrategyEvent struct {
	Strategy string
	Action   string
	Err      error
}
