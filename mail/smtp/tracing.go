package smtp

import (
	"net/textproto"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/mailmerge/mail/smtp")

func recordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// classify tags a protocol error: a server reply is a rejection, anything
// else broke the connection.
func classify(err error, msg string) error {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return mail.NewError(mail.KindRejected, errors.Wrap(err, msg))
	}
	return mail.NewError(mail.KindNetwork, errors.Wrap(err, msg))
}
