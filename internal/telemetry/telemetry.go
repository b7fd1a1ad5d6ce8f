// Package telemetry wraps one test run as an OpenTelemetry span tree
// (generate → instrument → schedule → analyze) with counters for
// statements executed/blocked/skipped and for anomalies found.
// Plain progress and error lines go to os.Stderr via fmt.Fprintf, the
// same style as the doltdut fork-server watchdog, rather than through a
// structured logging library.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Run observes one test run from construction by New to Shutdown.
type Run struct {
	tracer trace.Tracer
	meter  metric.Meter

	stmtsExecuted metric.Int64Counter
	stmtsBlocked  metric.Int64Counter
	stmtsSkipped  metric.Int64Counter
	anomaliesFound metric.Int64Counter

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// New wires a stdout span exporter and a stdout metric exporter: output
// meant to be read by a human running the tool directly, not shipped to a
// collector.
func New(ctx context.Context) (*Run, error) {
	spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter))

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	r := &Run{
		tracer: tp.Tracer("txnfuzz"),
		meter:  mp.Meter("txnfuzz"),
		tp:     tp,
		mp:     mp,
	}

	if r.stmtsExecuted, err = r.meter.Int64Counter("txnfuzz.stmts.executed"); err != nil {
		return nil, err
	}
	if r.stmtsBlocked, err = r.meter.Int64Counter("txnfuzz.stmts.blocked"); err != nil {
		return nil, err
	}
	if r.stmtsSkipped, err = r.meter.Int64Counter("txnfuzz.stmts.skipped"); err != nil {
		return nil, err
	}
	if r.anomaliesFound, err = r.meter.Int64Counter("txnfuzz.anomalies.found"); err != nil {
		return nil, err
	}
	return r, nil
}

// Span starts a named span under the run's root tracer for one pipeline
// stage (generate, instrument, schedule, analyze).
func (r *Run) Span(ctx context.Context, stage string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, stage)
}

func (r *Run) StmtExecuted(ctx context.Context) { r.stmtsExecuted.Add(ctx, 1) }
func (r *Run) StmtBlocked(ctx context.Context)  { r.stmtsBlocked.Add(ctx, 1) }
func (r *Run) StmtSkipped(ctx context.Context)  { r.stmtsSkipped.Add(ctx, 1) }

// AnomalyFound records one anomaly verdict, tagged by predicate name
// (G1a/G1b/G1c/G2-item/GSIa/GSIb) so the exported metric can be broken
// down per predicate.
func (r *Run) AnomalyFound(ctx context.Context, predicate string) {
	r.anomaliesFound.Add(ctx, 1, metric.WithAttributes(attribute.String("predicate", predicate)))
}

// Logf writes one plain progress/error line to stderr.
func (r *Run) Logf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// Shutdown flushes both providers. Callers should defer this right after
// New succeeds.
func (r *Run) Shutdown(ctx context.Context) error {
	if err := r.tp.Shutdown(ctx); err != nil {
		return err
	}
	return r.mp.Shutdown(ctx)
}
