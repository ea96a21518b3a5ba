// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Push connection state, connects, drops and reconnect attempts
//   - Router frame counts by outcome
//   - Snapshot fetch latency and errors by kind
//   - Delta applications and discarded late fetches
//   - Store size and archive throughput
package metrics
