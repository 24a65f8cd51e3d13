package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CDCMetrics instruments the CDC ingestion loop: a counter of commits
// created, a histogram of poll-cycle durations, and a histogram of
// ingestion lag (the delay between a change being observed upstream and
// the commit that carries it landing in the store). All three are no-ops
// until Init has configured a real OTLP endpoint.
type CDCMetrics struct {
	commitsTotal metric.Int64Counter
	pollDuration metric.Float64Histogram
	ingestionLag metric.Float64Histogram
	tracer       trace.Tracer
}

// NewCDCMetrics registers the CDC instruments on the global meter and
// tracer providers.
func NewCDCMetrics() (*CDCMetrics, error) {
	meter := Meter("scribe.cdc")

	commitsTotal, err := meter.Int64Counter("scribe.cdc.commits_total",
		metric.WithDescription("commits created by the CDC ingestion loop"))
	if err != nil {
		return nil, err
	}
	pollDuration, err := meter.Float64Histogram("scribe.cdc.poll_duration_seconds",
		metric.WithDescription("duration of one upstream poll cycle"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	ingestionLag, err := meter.Float64Histogram("scribe.cdc.ingestion_lag_seconds",
		metric.WithDescription("seconds between a change being observed upstream and its commit"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &CDCMetrics{
		commitsTotal: commitsTotal,
		pollDuration: pollDuration,
		ingestionLag: ingestionLag,
		tracer:       otel.Tracer("scribe.cdc"),
	}, nil
}

// RecordCommit increments the commits-created counter for one table.
func (m *CDCMetrics) RecordCommit(ctx context.Context, n int64, table string) {
	m.commitsTotal.Add(ctx, n, metric.WithAttributes(attribute.String("table", table)))
}

// RecordPollDuration records how long one poll cycle took.
func (m *CDCMetrics) RecordPollDuration(ctx context.Context, seconds float64) {
	m.pollDuration.Record(ctx, seconds)
}

// RecordIngestionLag records the delay between observation and commit for
// one change.
func (m *CDCMetrics) RecordIngestionLag(ctx context.Context, seconds float64) {
	m.ingestionLag.Record(ctx, seconds)
}

// StartPollSpan starts a span around one poll cycle.
func (m *CDCMetrics) StartPollSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "scribe.cdc.poll")
}

// StartCommitSpan starts a span around building, finalizing, and storing
// one commit.
func (m *CDCMetrics) StartCommitSpan(ctx context.Context) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "scribe.cdc.commit")
}
