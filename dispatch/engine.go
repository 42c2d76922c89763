// Package dispatch runs a mail-merge: one personalised email per dataset
// row, sent through a single transport session with bounded concurrency.
package dispatch

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/pure-golang/mailmerge/logger"
	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/placeholder"
	"github.com/pure-golang/mailmerge/plaintext"
)

// Engine renders and sends mail-merge runs. An Engine holds no per-run
// state and may serve concurrent runs.
type Engine struct {
	dialer    mail.Dialer
	converter *plaintext.Converter
	cfg       Config
}

// New creates an Engine sending through d. A nil converter uses
// plaintext.New().
func New(d mail.Dialer, converter *plaintext.Converter, cfg Config) *Engine {
	if converter == nil {
		converter = plaintext.New()
	}
	return &Engine{
		dialer:    d,
		converter: converter,
		cfg:       cfg.withDefaults(),
	}
}

// Validate checks the run-level preconditions. An empty dataset is always
// valid.
func (e *Engine) Validate(req Request) error {
	if len(req.Rows) == 0 {
		return nil
	}
	if err := validateColumn(req); err != nil {
		return err
	}
	if strings.TrimSpace(req.From.Address) == "" {
		return preconditionf("sender address is empty")
	}
	return nil
}

func validateColumn(req Request) error {
	if req.EmailColumn == "" {
		return preconditionf("email column is not selected")
	}
	if _, ok := req.Rows[0][req.EmailColumn]; !ok {
		return preconditionf("email column %q is not present in the dataset", req.EmailColumn)
	}
	return nil
}

// Dispatch sends req and waits for every row's outcome. Results are
// ordered by RowIndex.
func (e *Engine) Dispatch(ctx context.Context, req Request) ([]Result, error) {
	out, err := e.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(req.Rows))
	for r := range out {
		results = append(results, r)
	}
	slices.SortFunc(results, func(a, b Result) int { return a.RowIndex - b.RowIndex })

	return results, nil
}

// Start validates req and begins sending in the background. Exactly one
// Result per row is delivered on the returned channel, in completion order.
// The channel is closed once the transport session has been released.
//
// Canceling ctx stops new rows from being submitted; their results fail
// with mail.KindCanceled. Sends already in flight are allowed to finish.
func (e *Engine) Start(ctx context.Context, req Request) (<-chan Result, error) {
	if err := e.Validate(req); err != nil {
		return nil, err
	}

	out := make(chan Result, len(req.Rows))
	go e.run(ctx, req, out)

	return out, nil
}

func (e *Engine) run(ctx context.Context, req Request, out chan<- Result) {
	defer close(out)

	ctx, span := tracer.Start(ctx, "dispatch.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("dispatch.rows", len(req.Rows)),
		attribute.Int("dispatch.concurrency", e.cfg.Concurrency),
	)

	l := logger.FromContext(ctx).With("from", req.From, "rows", len(req.Rows))
	l.Info("dispatch started")
	started := time.Now()

	var (
		session = newLease(e.dialer, req.From.credentials())
		slots   = semaphore.NewWeighted(int64(e.cfg.Concurrency))
		wg      sync.WaitGroup
		from    = req.From.address()

		mx      sync.Mutex
		summary Summary
	)

	emit := func(r Result) {
		rowsCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(r.Status))))

		mx.Lock()
		summary = summary.add(r)
		mx.Unlock()

		out <- r
	}

	for i, row := range req.Rows {
		recipient := strings.TrimSpace(row[req.EmailColumn])
		if recipient == "" {
			emit(skipped(i))
			continue
		}

		if err := acquire(ctx, slots); err != nil {
			emit(failed(i, recipient, mail.NewError(mail.KindCanceled, err)))
			continue
		}

		msg := e.compose(req, row, from, recipient)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer slots.Release(1)
			emit(e.send(ctx, session, i, msg))
		}()
	}

	wg.Wait()

	if err := session.close(); err != nil {
		logger.FromContextWithErr(ctx, err).Warn("transport session closed with error")
	}

	l.Info("dispatch finished",
		"duration", time.Since(started).String(),
		"sent", summary.Sent,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"session_opened", session.dialled(),
	)
	span.SetAttributes(
		attribute.Int("dispatch.sent", summary.Sent),
		attribute.Int("dispatch.failed", summary.Failed),
	)
	span.SetStatus(codes.Ok, "")
}

// acquire takes a send slot unless ctx is already done.
func acquire(ctx context.Context, slots *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return slots.Acquire(ctx, 1)
}

// compose builds the message for one row. Rendering is synchronous and
// never fails.
func (e *Engine) compose(req Request, row placeholder.Row, from mail.Address, recipient string) mail.Message {
	html := placeholder.Render(req.Template, row)

	return mail.Message{
		From:    from,
		To:      mail.Address{Address: recipient},
		Subject: req.Subject,
		HTML:    html,
		Text:    e.converter.Convert(html),
	}
}

// send submits msg on a context detached from cancellation so an in-flight
// send is never cut short by the run being canceled.
func (e *Engine) send(ctx context.Context, session *lease, i int, msg mail.Message) Result {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SendTimeout)
	defer cancel()

	sendCtx, span := tracer.Start(sendCtx, "dispatch.Send")
	defer span.End()
	span.SetAttributes(attribute.Int("dispatch.row", i))

	sender, err := session.acquire(sendCtx)
	if err != nil {
		recordError(span, err)
		return e.failure(ctx, i, msg.To.Address, err)
	}
	defer session.release()

	inflight.Add(ctx, 1)
	started := time.Now()
	err = sender.Send(sendCtx, msg)
	sendTimeHist.Record(ctx, time.Since(started).Milliseconds())
	inflight.Add(ctx, -1)

	if err != nil {
		recordError(span, err)
		return e.failure(ctx, i, msg.To.Address, err)
	}

	span.SetStatus(codes.Ok, "")
	return sent(i, msg.To.Address)
}

func (e *Engine) failure(ctx context.Context, i int, recipient string, err error) Result {
	logger.FromContextWithErr(ctx, err).Warn("row failed",
		slog.Int("row", i),
		slog.String("recipient", recipient),
		slog.String("kind", string(mail.KindOf(err))),
	)
	return failed(i, recipient, err)
}
