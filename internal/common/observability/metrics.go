package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the meter and tracer providers of the process.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	notifyFailures otelmetric.Int64Counter
	drainLatency   otelmetric.Float64Histogram
}

// New wires the Prometheus metric exporter and, when jaegerEndpoint is set,
// a batching Jaeger span exporter. Both are installed as otel globals.
func New(serviceName, jaegerEndpoint string) *Observability {
	o := &Observability{tracer: otel.Tracer(serviceName)}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	if jaegerEndpoint != "" {
		exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)))
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			o.tracerProvider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exp),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(o.tracerProvider)
			o.tracer = o.tracerProvider.Tracer(serviceName)
		}
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	o.meterProvider = metric.NewMeterProvider(metric.WithReader(exporter), metric.WithResource(res))
	otel.SetMeterProvider(o.meterProvider)
	o.meter = o.meterProvider.Meter(serviceName)

	o.notifyFailures, _ = o.meter.Int64Counter(
		"certificate.notifications.failed",
		otelmetric.WithDescription("Certificate notifications that could not be delivered"),
	)
	o.drainLatency, _ = o.meter.Float64Histogram(
		"certificate.notifications.failure_age",
		otelmetric.WithDescription("Time between a delivery failure and its handling"),
		otelmetric.WithUnit("ms"),
	)
	return o
}

// Tracer exposes the process tracer for components that open their own spans.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracer
}

// RecordNotificationFailure counts an undelivered notification by channel.
func (o *Observability) RecordNotificationFailure(ctx context.Context, channel string, failedAt time.Time) {
	if o.notifyFailures != nil {
		o.notifyFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("channel", channel)))
	}
	if o.drainLatency != nil && !failedAt.IsZero() {
		o.drainLatency.Record(ctx, float64(time.Since(failedAt).Milliseconds()),
			otelmetric.WithAttributes(attribute.String("channel", channel)))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
}
