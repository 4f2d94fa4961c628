package metrics

import "github.com/kilianp07/agvkernel/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// Listen is the address of the Prometheus scrape endpoint. Empty disables
	// the endpoint.
	Listen string `json:"listen"`
}
