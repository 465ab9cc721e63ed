package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/playurl/logger"
)

// MeterConfig is the resolved metrics setup for one process.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the collector's OTLP/HTTP host:port.
	Endpoint string
	Insecure bool
	// Interval between pushes; zero keeps the SDK default.
	Interval time.Duration
}

// InitMeter installs a periodic OTLP meter provider as the process global.
// Callers own Shutdown on the result.
func InitMeter(ctx context.Context, cfg *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("metric resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
	)
	otel.SetMeterProvider(mp)

	logger.Info("Metrics enabled", logger.Fields("endpoint", cfg.Endpoint, "interval", cfg.Interval.String()))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// RequestMetrics covers the HTTP surface: volume, latency and in-flight
// requests, keyed by route template so track ids do not explode cardinality.
type RequestMetrics struct {
	total    metric.Int64Counter
	latency  metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewRequestMetrics registers the HTTP instruments on meter.
func NewRequestMetrics(meter metric.Meter) (*RequestMetrics, error) {
	var (
		m   RequestMetrics
		err error
	)
	if m.total, err = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("Completed HTTP requests")); err != nil {
		return nil, fmt.Errorf("http.server.request.total: %w", err)
	}
	if m.latency, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("http.server.request.duration: %w", err)
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http.server.request.active",
		metric.WithDescription("HTTP requests in flight")); err != nil {
		return nil, fmt.Errorf("http.server.request.active: %w", err)
	}
	return &m, nil
}

// RecordRequestStart marks a request as in flight.
func (m *RequestMetrics) RecordRequestStart(ctx context.Context) {
	m.inFlight.Add(ctx, 1)
}

// RecordRequestEnd closes a request opened with RecordRequestStart.
func (m *RequestMetrics) RecordRequestEnd(ctx context.Context, route, method string, status int, elapsed time.Duration) {
	m.inFlight.Add(ctx, -1)
	routeAttrs := []attribute.KeyValue{attribute.String("route", route), attribute.String("method", method)}
	m.latency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(routeAttrs...))
	m.total.Add(ctx, 1, metric.WithAttributes(append(routeAttrs, attribute.Int("status", status))...))
}
