package smtp

import (
	"bytes"

	"github.com/pkg/errors"
	gomail "github.com/wneessen/go-mail"

	"github.com/pure-golang/mailmerge/mail"
)

// encode renders msg as an RFC 5322 message. A message with both bodies
// becomes multipart/alternative with the plain text part first.
func encode(msg mail.Message) ([]byte, error) {
	m := gomail.NewMsg()

	if err := m.FromFormat(msg.From.Name, msg.From.Address); err != nil {
		return nil, errors.Wrapf(err, "invalid from address %q", msg.From.Address)
	}

	var err error
	if msg.To.Name != "" {
		err = m.AddToFormat(msg.To.Name, msg.To.Address)
	} else {
		err = m.To(msg.To.Address)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "invalid recipient %q", msg.To.Address)
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()

	for k, v := range msg.Headers {
		m.SetGenHeader(gomail.Header(k), v)
	}

	switch {
	case msg.HTML != "" && msg.Text != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, errors.Wrap(err, "failed to write message")
	}
	return buf.Bytes(), nil
}
