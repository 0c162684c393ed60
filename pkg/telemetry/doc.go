// Package telemetry provides structured logging and metrics collection
// for featurectl. It wraps zerolog for leveled, field-based logging and
// exposes Prometheus counters and histograms describing plan and apply
// activity.
package telemetry
