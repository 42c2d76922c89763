// Package telemetry installs the global OpenTelemetry tracer and meter
// providers and serves Prometheus metrics.
package telemetry

import (
	"context"
	stdErr "errors"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	ServiceName     string `envconfig:"SERVICE_NAME" default:"mailmerge"`
	AppVersion      string `envconfig:"APP_VERSION" default:"dev"`
	TracingEndpoint string `envconfig:"TRACING_ENDPOINT"` // OTLP/HTTP URL, tracing is off when empty

	MetricsEnabled     bool          `envconfig:"METRICS_ENABLED" default:"true"`
	MetricsHost        string        `envconfig:"METRICS_HOST"`
	MetricsPort        int           `envconfig:"METRICS_PORT" default:"9090"`
	MetricsReadTimeout time.Duration `envconfig:"METRICS_READ_TIMEOUT" default:"30s"`
}

// Telemetry owns the providers installed by Init.
type Telemetry struct {
	tracer  *tracesdk.TracerProvider
	meter   *sdkmetric.MeterProvider
	metrics *metricsServer
}

var _ io.Closer = (*Telemetry)(nil)

// Init installs tracing and metrics according to c. Pieces that are
// disabled stay on the otel no-op providers.
func Init(c Config) (*Telemetry, error) {
	t := &Telemetry{}

	if c.TracingEndpoint != "" {
		tp, err := newTracerProvider(c)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load tracing provider")
		}
		t.tracer = tp
		otel.SetTracerProvider(tp)
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if c.MetricsEnabled {
		mp, reg, err := newMeterProvider()
		if err != nil {
			_ = t.Close()
			return nil, errors.Wrap(err, "failed to init prometheus")
		}
		t.meter = mp
		otel.SetMeterProvider(mp)

		t.metrics = newMetricsServer(c, reg)
		t.metrics.start()
	}

	slog.Default().Info("telemetry initialised",
		"tracing", t.tracer != nil,
		"metrics", t.metrics != nil,
	)
	return t, nil
}

// MetricsAddr is the address of the metrics server, empty when disabled.
func (t *Telemetry) MetricsAddr() string {
	if t.metrics == nil {
		return ""
	}
	return t.metrics.server.Addr
}

// Close flushes pending spans and stops the metrics server.
func (t *Telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if t.metrics != nil {
		errs = append(errs, errors.Wrap(t.metrics.close(), "failed to close metrics"))
	}
	if t.meter != nil {
		errs = append(errs, errors.Wrap(t.meter.Shutdown(ctx), "failed to shut down meter provider"))
	}
	if t.tracer != nil {
		if err := t.tracer.ForceFlush(ctx); err != nil {
			errs = append(errs, errors.Wrap(err, "trace force flush failed"))
		}
		errs = append(errs, errors.Wrap(t.tracer.Shutdown(ctx), "failed to shut down tracer provider"))
	}
	return stdErr.Join(errs...)
}
