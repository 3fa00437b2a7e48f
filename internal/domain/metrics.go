package domain

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// operationsTotal counts finished operations.
	// Labels: op (run, apply, load, save), status (ok, error)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tessera",
		Name:      "operations_total",
		Help:      "Total DomainModel operations by outcome",
	}, []string{"op", "status"})

	// operationDuration measures time spent inside an operation, excluding
	// time queued.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tessera",
		Name:      "operation_duration_seconds",
		Help:      "DomainModel operation latency in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"op"})

	// queueDepth is the number of mutations waiting for the writer.
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "tessera",
		Name:      "queue_depth",
		Help:      "Mutating operations waiting for the single writer",
	})
)

// instrument wraps fn with a span and operation metrics. Errors returned by
// fn, and panics inside it, are reported as *OperationError.
func instrument[T any](tracer trace.Tracer, op Op, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (v T, err error) {
		ctx, span := tracer.Start(ctx, "domain."+string(op), trace.WithAttributes(
			attribute.String("tessera.op", string(op)),
		))
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
			if err != nil {
				err = &OperationError{Op: op, Err: err}
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				operationsTotal.WithLabelValues(string(op), "error").Inc()
			} else {
				span.SetStatus(codes.Ok, "")
				operationsTotal.WithLabelValues(string(op), "ok").Inc()
			}
			operationDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
			span.End()
		}()
		return fn(ctx)
	}
}
