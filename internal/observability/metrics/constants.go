// Package metrics provides the Prometheus collectors for the wake-word engine.
package metrics

import "time"

// Namespace prefixes every metric name.
const Namespace = "jupiter"

// Label values for feature extraction outcomes.
const (
	OutcomeWarmup   = "warmup"
	OutcomeSilent   = "silent"
	OutcomeComputed = "computed"
	OutcomeFailed   = "failed"
)

// ShutdownTimeout bounds the metrics server's graceful shutdown.
const ShutdownTimeout = 5 * time.Second
