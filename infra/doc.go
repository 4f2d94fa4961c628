// Package infra holds the adapters between the kernel and the outside world:
// the MQTT vehicle link and the loopback simulator pool, model persistence,
// metrics sinks, the Redis state mirror, the Kafka event stream and Sentry.
// Adapters depend only on interfaces defined under core.
package infra
