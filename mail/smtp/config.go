package smtp

import "time"

// Config contains SMTP connection parameters. Host, port and security are
// fixed per deployment, credentials come with every dispatch run.
type Config struct {
	Host           string        `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	Port           int           `envconfig:"SMTP_PORT" default:"465"`          // 465 for implicit TLS, 587 for STARTTLS
	Secure         bool          `envconfig:"SMTP_SECURE" default:"true"`       // implicit TLS from the first byte
	StartTLS       bool          `envconfig:"SMTP_STARTTLS" default:"true"`     // upgrade plain connections when offered
	Insecure       bool          `envconfig:"SMTP_INSECURE" default:"false"`    // skip certificate verification
	HeloName       string        `envconfig:"SMTP_HELO_NAME"`                   // "localhost" when empty
	Timeout        time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`       // dial and per-message deadline
	MaxConnections int           `envconfig:"SMTP_MAX_CONNECTIONS" default:"3"` // per session
}

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxConnections = 3
)

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	return c
}
