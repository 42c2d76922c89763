package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/logger"
)

var (
	meter = otel.GetMeterProvider().Meter("github.com/pure-golang/mailmerge/httpserver/middleware")
	// nolint:errcheck // Sync OpenTelemetry instruments never return errors
	requestsCount, _       = meter.Int64Counter("mailmerge.http.request_count")
	requestTimeHist, _     = meter.Int64Histogram("mailmerge.http.request_time", metric.WithUnit("ms"))
	requestBodyLenHist, _  = meter.Int64Histogram("mailmerge.http.request_body_len", metric.WithUnit("KB"))
	responseBodyLenHist, _ = meter.Int64Histogram("mailmerge.http.response_body_len", metric.WithUnit("KB"))
	tracer                 = otel.Tracer("github.com/pure-golang/mailmerge/httpserver/middleware")
)

// Monitoring traces incoming requests, records request metrics and attaches
// a request logger to the context. Credentials in the request body are
// redacted before the body is recorded on the span.
func Monitoring(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqTime := time.Now()
		ctx := r.Context()

		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))

		path := r.URL.Path
		ctx, span := tracer.Start(ctx, r.Method+" "+path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		metricLabels := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.path", path),
		}

		traceID := span.SpanContext().TraceID().String()

		log := slog.Default().With("method", r.Method, "path", path)
		if span.SpanContext().HasTraceID() {
			log = log.With("trace_id", traceID)
		}

		attrs := semconv.NetAttributesFromHTTPRequest("tcp", r)
		attrs = append(attrs, semconv.HTTPServerAttributesFromHTTPRequest("mailmerge", path, r)...)
		attrs = append(attrs, attribute.String("http.request.header.User-Agent", r.Header.Get("User-Agent")))

		reqBody, complete, err := peekBody(r)
		if err != nil {
			log.Error("failed to read body", "error", err)
		} else {
			attrs = append(attrs, attribute.String("http.request.body_2048", cut(recordedBody(r.Header.Get("Content-Type"), reqBody, complete))))
		}

		w.Header().Set("X-Trace-Id", traceID)

		ctx = logger.NewContext(ctx, log)
		srw := newStatefulRespWriter(w)

		next.ServeHTTP(srw, r.WithContext(ctx))

		if srw.status == 0 {
			srw.status = http.StatusOK
		}
		attrs = append(attrs, attribute.Int("http.response.status", srw.status))
		attrs = append(attrs, attribute.String("http.response.body_2048", cutSized(srw.body, srw.size)))
		span.SetAttributes(attrs...)

		requestsCount.Add(ctx, 1, metric.WithAttributes(append(metricLabels,
			attribute.Int("http.response.code", srw.status))...))
		requestTimeHist.Record(ctx, time.Since(reqTime).Milliseconds(), metric.WithAttributes(metricLabels...))
		requestBodyLenHist.Record(ctx, max(r.ContentLength, int64(len(reqBody)))/1024, metric.WithAttributes(metricLabels...))
		responseBodyLenHist.Record(ctx, int64(srw.size)/1024, metric.WithAttributes(metricLabels...))
		if srw.status >= 500 {
			span.SetStatus(codes.Error, "")
			return
		}

		span.SetStatus(codes.Ok, "")
	})
}

// statefulRespWriter keeps the sent status and the start of the body.
type statefulRespWriter struct {
	http.ResponseWriter
	status int
	body   []byte // first BodyMaxLen bytes
	size   int
}

func newStatefulRespWriter(w http.ResponseWriter) *statefulRespWriter {
	return &statefulRespWriter{ResponseWriter: w}
}

func (w *statefulRespWriter) WriteHeader(status int) {
	w.ResponseWriter.WriteHeader(status)
	w.status = status
}

func (w *statefulRespWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if room := BodyMaxLen - len(w.body); room > 0 {
		w.body = append(w.body, b[:min(room, len(b))]...)
	}
	w.size += len(b)
	return w.ResponseWriter.Write(b)
}

func (w *statefulRespWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

const (
	BodyMaxLen = 2048
	// BodyPeekLen bounds how much of a request body is buffered for the span.
	BodyPeekLen = 64 << 10
)

// peekBody reads at most BodyPeekLen bytes of the request body and puts them
// back in front of the unread rest. complete reports whether the whole body
// was read.
func peekBody(r *http.Request) (head []byte, complete bool, err error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, true, nil
	}

	head, err = io.ReadAll(io.LimitReader(r.Body, BodyPeekLen+1))
	r.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(head), r.Body),
		Closer: r.Body,
	}
	if err != nil {
		return nil, false, err
	}
	if len(head) > BodyPeekLen {
		return head[:BodyPeekLen], false, nil
	}
	return head, true, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// recordedBody is the span rendition of a request body. Bodies longer than
// BodyPeekLen are not recorded since they cannot be redacted.
func recordedBody(contentType string, head []byte, complete bool) []byte {
	if !complete {
		return []byte(fmt.Sprintf("(more than %d bytes, not recorded)", BodyPeekLen))
	}
	return redact(contentType, head)
}

func cut(body []byte) string {
	return cutSized(body, len(body))
}

// cutSized renders the head of a body whose full length is size.
func cutSized(body []byte, size int) string {
	if size > BodyMaxLen {
		return fmt.Sprintf("%s...(%d bytes)", string(body[:min(BodyMaxLen, len(body))]), size)
	}
	return string(body)
}

// isSecretField reports whether a body field holds a credential.
func isSecretField(name string) bool {
	return strings.Contains(strings.ToLower(name), "password")
}
