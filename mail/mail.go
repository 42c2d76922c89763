package mail

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Sender is one transport session. A Sender is created per dispatch run and
// shared by every message of that run.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	io.Closer
}

// Dialer builds a Sender from per-run credentials.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Sender, error)
}

// Message is a fully composed email for a single recipient.
type Message struct {
	From    Address
	To      Address
	Subject string

	// Headers are extra headers added as-is.
	Headers map[string]string

	HTML string // HTML body
	Text string // plain text alternative
}

// Address represents an email address.
type Address struct {
	Name    string // "Ada Lovelace"
	Address string // "ada@example.com"
}

// String formats the address as `"Name" <address>`.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	name := strings.ReplaceAll(a.Name, `"`, `\"`)
	return fmt.Sprintf(`"%s" <%s>`, name, a.Address)
}

// Credentials authenticate a transport session.
type Credentials struct {
	Username string
	Password string
}

// LogValue hides the password.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.Bool("password_set", c.Password != ""),
	)
}
