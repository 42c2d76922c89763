package smtp

import (
	"context"
	"log/slog"

	"github.com/pure-golang/mailmerge/mail"
)

var _ mail.Dialer = (*Dialer)(nil)

// Dialer creates SMTP sessions for a fixed server.
type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

// DialerOptions contains options for creating a Dialer.
type DialerOptions struct {
	Logger *slog.Logger
}

// NewDialer creates a new SMTP Dialer.
func NewDialer(cfg Config, options *DialerOptions) *Dialer {
	l := slog.Default()
	if options != nil && options.Logger != nil {
		l = options.Logger
	}

	return &Dialer{
		cfg:    cfg.withDefaults(),
		logger: l.WithGroup("smtp"),
	}
}

// Dial returns a session bound to creds. The network is not touched until
// the first message is sent.
func (d *Dialer) Dial(ctx context.Context, creds mail.Credentials) (mail.Sender, error) {
	d.logger.DebugContext(ctx, "smtp session created",
		"host", d.cfg.Host,
		"port", d.cfg.Port,
		"creds", creds,
	)
	return newSession(d.cfg, creds, d.logger), nil
}
