package dispatch

import (
	"log/slog"
	"time"

	"github.com/pure-golang/mailmerge/mail"
	"github.com/pure-golang/mailmerge/placeholder"
)

// Config tunes the engine.
type Config struct {
	Concurrency int           `envconfig:"DISPATCH_CONCURRENCY" default:"5"`   // in-flight sends per run
	SendTimeout time.Duration `envconfig:"DISPATCH_SEND_TIMEOUT" default:"60s"` // per message
}

const (
	defaultConcurrency = 5
	defaultSendTimeout = 60 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Identity is who the run sends as. Password authenticates the transport
// session and is never logged.
type Identity struct {
	Name     string
	Address  string
	Password string
}

// LogValue hides the password.
func (i Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", i.Name),
		slog.String("address", i.Address),
	)
}

func (i Identity) address() mail.Address {
	return mail.Address{Name: i.Name, Address: i.Address}
}

func (i Identity) credentials() mail.Credentials {
	return mail.Credentials{Username: i.Address, Password: i.Password}
}

// Request is one mail-merge run.
type Request struct {
	Template    string // HTML with {{column}} placeholders
	Subject     string
	Rows        []placeholder.Row
	EmailColumn string // column holding each row's recipient
	From        Identity
}

// Status is the outcome of one row.
type Status string

const (
	StatusSent    Status = "sent"
	StatusSkipped Status = "skipped" // blank recipient, nothing attempted
	StatusFailed  Status = "failed"
)

// Result is the outcome of one row. Results may arrive out of row order;
// RowIndex is the row's position in Request.Rows.
type Result struct {
	RowIndex  int       `json:"rowIndex"`
	Recipient string    `json:"recipient,omitempty"`
	Status    Status    `json:"status"`
	ErrorKind mail.Kind `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`

	Err error `json:"-"`
}

func sent(i int, recipient string) Result {
	return Result{RowIndex: i, Recipient: recipient, Status: StatusSent}
}

func skipped(i int) Result {
	return Result{RowIndex: i, Status: StatusSkipped}
}

func failed(i int, recipient string, err error) Result {
	return Result{
		RowIndex:  i,
		Recipient: recipient,
		Status:    StatusFailed,
		ErrorKind: mail.KindOf(err),
		Error:     err.Error(),
		Err:       err,
	}
}

// Summary counts results by status.
type Summary struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summarize counts results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s = s.add(r)
	}
	return s
}

func (s Summary) add(r Result) Summary {
	s.Total++
	switch r.Status {
	case StatusSent:
		s.Sent++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	return s
}
