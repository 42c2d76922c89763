// Package transport selects the mail.Dialer of a deployment.
package transport

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/mail/noop"
	"github.com/pure-golang/mailmerge/mail/smtp"
)

// Provider names a mail transport.
type Provider string

const (
	ProviderSMTP Provider = "smtp"
	ProviderNoop Provider = "noop" // dry runs, nothing leaves the process
)

type Config struct {
	Provider Provider `envconfig:"MAIL_PROVIDER" default:"smtp"`
}

// NewDialer creates the Dialer selected by c.Provider. smtpCfg is used only
// by the SMTP provider.
func NewDialer(c Config, smtpCfg smtp.Config, l *slog.Logger) (mail.Dialer, error) {
	switch c.Provider {
	case ProviderSMTP, "":
		return smtp.NewDialer(smtpCfg, &smtp.DialerOptions{Logger: l}), nil
	case ProviderNoop:
		return noop.NewDialer(), nil
	default:
		return nil, errors.Errorf("unknown mail provider: %s", c.Provider)
	}
}
