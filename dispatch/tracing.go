package dispatch

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("github.com/pure-golang/mailmerge/dispatch")
	meter  = otel.GetMeterProvider().Meter("github.com/pure-golang/mailmerge/dispatch")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	rowsCount, _    = meter.Int64Counter("mailmerge.dispatch.rows")
	sendTimeHist, _ = meter.Int64Histogram("mailmerge.dispatch.send_time", metric.WithUnit("ms"))
	inflight, _     = meter.Int64UpDownCounter("mailmerge.dispatch.inflight")
)

func recordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
