// Package metrics defines the sinks that record kernel activity for
// observability: transport order lifecycle records, vehicle snapshots,
// kernel mode transitions and strategy decisions. Every sink implements
// MetricsSink; the other recorder interfaces are optional and discovered with
// type assertions. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
//
// The in-process Prometheus collectors of each kernel component live next to
// the component. Sinks here are fed from the event bus by a collector in
// infra/metrics.
package metrics
