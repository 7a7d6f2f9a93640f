// Package observability provides OpenTelemetry instrumentation for
// tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a
// Prometheus exporter. It returns the HTTP handler for the /metrics
// endpoint and a shutdown function to call on application exit.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// WorkerMetrics holds the counters a worker increments as it processes
// jobs.
type WorkerMetrics struct {
	JobsCompleted   metric.Int64Counter
	JobsFailed      metric.Int64Counter
	JobsRetried     metric.Int64Counter
	RecordsInjected metric.Int64Counter
}

// NewWorkerMetrics registers the worker counters on the global meter.
func NewWorkerMetrics() (*WorkerMetrics, error) {
	meter := otel.Meter("crmforge-worker")

	completed, err := meter.Int64Counter("crmforge.jobs.completed",
		metric.WithDescription("Jobs that finished successfully"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("crmforge.jobs.failed",
		metric.WithDescription("Jobs that failed permanently"))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("crmforge.jobs.retried",
		metric.WithDescription("Jobs rescheduled after a retryable failure"))
	if err != nil {
		return nil, err
	}
	injected, err := meter.Int64Counter("crmforge.records.injected",
		metric.WithDescription("CRM records created remotely"))
	if err != nil {
		return nil, err
	}

	return &WorkerMetrics{
		JobsCompleted:   completed,
		JobsFailed:      failed,
		JobsRetried:     retried,
		RecordsInjected: injected,
	}, nil
}
