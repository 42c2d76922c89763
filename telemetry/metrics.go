package telemetry

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/pkg/errors"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newMeterProvider creates a meter provider exporting to a fresh
// Prometheus registry, with Go runtime metrics.
func newMeterProvider() (*sdkmetric.MeterProvider, *promclient.Registry, error) {
	reg := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create prometheus instance")
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	if err := runtime.Start(runtime.WithMeterProvider(provider)); err != nil {
		return nil, nil, errors.Wrap(err, "failed to start runtime")
	}

	return provider, reg, nil
}

type metricsServer struct {
	server *http.Server
}

func newMetricsServer(c Config, reg *promclient.Registry) *metricsServer {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &metricsServer{
		server: &http.Server{
			Addr:        net.JoinHostPort(c.MetricsHost, fmt.Sprint(c.MetricsPort)),
			Handler:     r,
			ReadTimeout: c.MetricsReadTimeout,
		},
	}
}

func (s *metricsServer) start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Warn("metrics server failed", "error", err.Error())
		}
	}()
}

func (s *metricsServer) close() error {
	return s.server.Close()
}
