package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. Every method is safe on a nil *Metrics.
type Metrics struct {
	// Reconciliation
	ReconcileCycles   metric.Int64Counter
	ReconcileRecords  metric.Int64Counter
	ReconcileDuration metric.Float64Histogram

	// Observation and leak detection
	ObserverFailures metric.Int64Counter
	LeaksDetected    metric.Int64Counter

	// Reporting endpoint
	ReportsReceived    metric.Int64Counter
	ReportsRateLimited metric.Int64Counter

	// Side effects
	NotificationsFailed    metric.Int64Counter
	StoragePersistFailures metric.Int64Counter
}

// NewMetrics creates every instrument on provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(InstrumentationName)
	m := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.ReconcileCycles, "reconcile.cycles", "Reconciliation cycles by result"},
		{&m.ReconcileRecords, "reconcile.records", "Per-record reconciliation outcomes by status"},
		{&m.ObserverFailures, "observer.failures", "Failed public IP lookups"},
		{&m.LeaksDetected, "vpn.leaks_detected", "Times the VPN path was seen on the primary IP"},
		{&m.ReportsReceived, "reports.received", "Accepted IP reports by device"},
		{&m.ReportsRateLimited, "reports.rate_limited", "IP reports rejected by the rate limiter"},
		{&m.NotificationsFailed, "notifications.failed", "Notifications that could not be delivered"},
		{&m.StoragePersistFailures, "storage.persist_failures", "Failed writes of a device IP"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	duration, err := meter.Float64Histogram(
		"reconcile.duration",
		metric.WithDescription("Reconciliation cycle duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconcile duration histogram: %w", err)
	}
	m.ReconcileDuration = duration

	return m, nil
}

// RecordCycle records one finished reconciliation cycle
func (m *Metrics) RecordCycle(ctx context.Context, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.ReconcileCycles.Add(ctx, 1, attrs)
	m.ReconcileDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordOutcome records the outcome of a single record
func (m *Metrics) RecordOutcome(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.ReconcileRecords.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// AddObserverFailure counts a failed IP lookup
func (m *Metrics) AddObserverFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.ObserverFailures.Add(ctx, 1)
}

// AddLeakDetected counts a leak seen by source ("reconcile", "report")
func (m *Metrics) AddLeakDetected(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.LeaksDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// AddReport counts an accepted report
func (m *Metrics) AddReport(ctx context.Context, device string) {
	if m == nil {
		return
	}
	m.ReportsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}

// AddRateLimited counts a rejected report
func (m *Metrics) AddRateLimited(ctx context.Context) {
	if m == nil {
		return
	}
	m.ReportsRateLimited.Add(ctx, 1)
}

// AddNotificationFailure counts an undelivered notification of kind ("update", "leak")
func (m *Metrics) AddNotificationFailure(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.NotificationsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// AddPersistFailure implements storage.MetricsRecorder
func (m *Metrics) AddPersistFailure(ctx context.Context, backend string) {
	if m == nil {
		return
	}
	m.StoragePersistFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
}
