package noop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pure-golang/mailmerge/mail"
)

var (
	_ mail.Sender = (*Sender)(nil)
	_ mail.Dialer = (*Dialer)(nil)
)

// Dialer hands out no-op sessions. Used for dry runs.
type Dialer struct {
	sent atomic.Int64
}

// NewDialer creates a new no-op Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial returns a session that discards messages.
func (d *Dialer) Dial(_ context.Context, _ mail.Credentials) (mail.Sender, error) {
	return &Sender{counter: &d.sent}, nil
}

// Sent returns the number of messages discarded by all sessions of d.
func (d *Dialer) Sent() int64 {
	return d.sent.Load()
}

// Sender silently discards messages.
type Sender struct {
	counter *atomic.Int64

	mx     sync.Mutex
	closed bool
}

// NewSender creates a standalone no-op Sender.
func NewSender() *Sender {
	return &Sender{counter: new(atomic.Int64)}
}

// Send discards msg. It fails only after Close.
func (n *Sender) Send(_ context.Context, _ mail.Message) error {
	n.mx.Lock()
	defer n.mx.Unlock()

	if n.closed {
		return mail.ErrClosed
	}
	n.counter.Add(1)
	return nil
}

// Close is idempotent.
func (n *Sender) Close() error {
	n.mx.Lock()
	defer n.mx.Unlock()

	n.closed = true
	return nil
}
