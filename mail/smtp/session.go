package smtp

import (
	"context"
	"crypto/tls"
	stdErr "errors"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/mail"
)

var _ mail.Sender = (*Session)(nil)

// Session is a pool of authenticated SMTP connections bound to one set of
// credentials. Connections are dialled on demand, at most MaxConnections at a
// time, and reused between messages.
type Session struct {
	cfg    Config
	creds  mail.Credentials
	logger *slog.Logger

	// slots bounds the number of open connections.
	slots chan struct{}

	mx     sync.Mutex
	idle   []*conn
	closed bool
}

type conn struct {
	client *smtp.Client
	raw    net.Conn
}

func newSession(cfg Config, creds mail.Credentials, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		creds:  creds,
		logger: logger,
		slots:  make(chan struct{}, cfg.MaxConnections),
	}
}

// Send delivers one message over a pooled connection.
func (s *Session) Send(ctx context.Context, msg mail.Message) error {
	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.host", s.cfg.Host),
		attribute.Int("smtp.port", s.cfg.Port),
		attribute.Bool("smtp.secure", s.cfg.Secure),
		attribute.String("smtp.subject", msg.Subject),
	)

	if err := s.send(ctx, msg); err != nil {
		span.SetAttributes(attribute.String("smtp.error_kind", string(mail.KindOf(err))))
		recordError(span, err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (s *Session) send(ctx context.Context, msg mail.Message) error {
	if s.isClosed() {
		return mail.ErrClosed
	}
	if msg.From.Address == "" {
		return mail.NewError(mail.KindInvalidMessage, errors.New("no from address specified"))
	}
	if msg.To.Address == "" {
		return mail.NewError(mail.KindInvalidMessage, errors.New("no recipient specified"))
	}

	raw, err := encode(msg)
	if err != nil {
		return mail.NewError(mail.KindInvalidMessage, err)
	}

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return mail.NewError(mail.KindCanceled, ctx.Err())
	}
	defer func() { <-s.slots }()

	c, reused, err := s.acquire(ctx)
	if err != nil {
		return err
	}

	dataStarted, err := s.deliver(ctx, c, msg, raw)
	if err != nil && reused && !dataStarted && mail.KindOf(err) == mail.KindNetwork {
		// The server may have dropped an idle pooled connection. A message
		// whose DATA was accepted is never resent.
		s.logger.Debug("pooled connection failed, redialing", "error", err.Error())
		_ = c.raw.Close()

		if c, err = s.dial(ctx); err != nil {
			return err
		}
		_, err = s.deliver(ctx, c, msg, raw)
	}

	s.release(c, err)
	return err
}

func (s *Session) acquire(ctx context.Context) (*conn, bool, error) {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return nil, false, mail.ErrClosed
	}
	if n := len(s.idle); n > 0 {
		c := s.idle[n-1]
		s.idle = s.idle[:n-1]
		s.mx.Unlock()
		return c, true, nil
	}
	s.mx.Unlock()

	c, err := s.dial(ctx)
	return c, false, err
}

// release returns c to the pool when it is still in a clean state.
func (s *Session) release(c *conn, sendErr error) {
	if sendErr != nil && mail.KindOf(sendErr) != mail.KindRejected {
		_ = c.raw.Close()
		return
	}

	_ = c.raw.SetDeadline(time.Now().Add(s.cfg.Timeout))
	if err := c.client.Reset(); err != nil {
		_ = c.raw.Close()
		return
	}
	_ = c.raw.SetDeadline(time.Time{})

	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		_ = c.client.Quit()
		return
	}
	s.idle = append(s.idle, c)
}

func (s *Session) dial(ctx context.Context) (*conn, error) {
	ctx, span := tracer.Start(ctx, "SMTP.Dial")
	defer span.End()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	span.SetAttributes(
		attribute.String("smtp.address", addr),
		attribute.Bool("smtp.auth", s.hasCredentials()),
	)

	netDialer := &net.Dialer{Timeout: s.cfg.Timeout}
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.Insecure, // #nosec G402 -- controlled by config, user's responsibility
	}

	var (
		raw net.Conn
		err error
	)
	if s.cfg.Secure {
		raw, err = (&tls.Dialer{NetDialer: netDialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		raw, err = netDialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		err = mail.NewError(mail.KindNetwork, errors.Wrap(err, "failed to connect to SMTP server"))
		recordError(span, err)
		return nil, err
	}
	_ = raw.SetDeadline(time.Now().Add(s.cfg.Timeout))

	c, err := s.handshake(raw, tlsConfig)
	if err != nil {
		_ = raw.Close()
		recordError(span, err)
		return nil, err
	}
	_ = raw.SetDeadline(time.Time{})

	span.SetStatus(codes.Ok, "")
	return c, nil
}

// handshake runs greeting, optional STARTTLS and authentication.
func (s *Session) handshake(raw net.Conn, tlsConfig *tls.Config) (*conn, error) {
	client, err := smtp.NewClient(raw, s.cfg.Host)
	if err != nil {
		return nil, classify(err, "failed to read server greeting")
	}

	if s.cfg.HeloName != "" {
		if err := client.Hello(s.cfg.HeloName); err != nil {
			return nil, classify(err, "failed to greet server")
		}
	}

	if !s.cfg.Secure && s.cfg.StartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return nil, mail.NewError(mail.KindNetwork, errors.Wrap(err, "failed to start TLS"))
			}
		}
	}

	if s.hasCredentials() {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.creds.Username, s.creds.Password, s.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return nil, mail.NewError(mail.KindAuth, errors.Wrap(err, "failed to authenticate"))
			}
		} else {
			s.logger.Warn("server does not advertise AUTH, sending without authentication",
				"host", s.cfg.Host)
		}
	}

	return &conn{client: client, raw: raw}, nil
}

// deliver runs one mail transaction on c. dataStarted reports whether the
// server accepted the DATA command.
func (s *Session) deliver(ctx context.Context, c *conn, msg mail.Message, raw []byte) (dataStarted bool, err error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(s.cfg.Timeout)
	}
	_ = c.raw.SetDeadline(deadline)

	if err := c.client.Mail(msg.From.Address); err != nil {
		return false, classify(err, "failed to set sender")
	}
	if err := c.client.Rcpt(msg.To.Address); err != nil {
		return false, classify(err, "failed to set recipient: "+msg.To.Address)
	}

	w, err := c.client.Data()
	if err != nil {
		return false, classify(err, "failed to get data writer")
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return true, classify(err, "failed to write message")
	}
	// The server accepts or refuses the message on close.
	if err := w.Close(); err != nil {
		return true, classify(err, "failed to finish message")
	}
	return true, nil
}

// hasCredentials reports whether the session authenticates. An empty
// password sends through an open relay.
func (s *Session) hasCredentials() bool {
	return s.creds.Password != ""
}

func (s *Session) isClosed() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.closed
}

// Close quits every idle connection. Connections still sending are closed
// when they are released.
func (s *Session) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, c := range s.idle {
		if err := c.client.Quit(); err != nil {
			errs = append(errs, err, c.raw.Close())
		}
	}
	s.idle = nil

	return errors.Wrap(stdErr.Join(errs...), "failed to close SMTP session")
}
