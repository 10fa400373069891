package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability bundles the OTel meter and tracer providers of the service.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider tracerShutdowner
	meter          otelmetric.Meter
	attemptCounter otelmetric.Int64Counter
	attemptLatency otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	o := &Observability{}
	o.tracerProvider = newTracerProvider(serviceName)

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	attemptCounter, _ := meter.Int64Counter(
		"notification.delivery.attempts",
		otelmetric.WithDescription("Number of delivery attempts by outcome"),
	)

	attemptLatency, _ := meter.Float64Histogram(
		"notification.delivery.duration",
		otelmetric.WithDescription("Delivery attempt duration"),
		otelmetric.WithUnit("ms"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.attemptCounter = attemptCounter
	o.attemptLatency = attemptLatency
	return o
}

// RecordAttempt counts one delivery attempt and its latency.
func (o *Observability) RecordAttempt(ctx context.Context, queueType, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("queue_type", queueType),
		attribute.String("outcome", outcome),
	)
	if o.attemptCounter != nil {
		o.attemptCounter.Add(ctx, 1, attrs)
	}
	if o.attemptLatency != nil {
		o.attemptLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
