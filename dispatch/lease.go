package dispatch

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/mail"
)

// lease owns the transport session of one run. The session is dialled on
// first use and closed exactly once, after every holder has released it.
type lease struct {
	dialer mail.Dialer
	creds  mail.Credentials

	dialOnce sync.Once
	sender   mail.Sender
	dialErr  error

	holders   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func newLease(d mail.Dialer, creds mail.Credentials) *lease {
	return &lease{dialer: d, creds: creds}
}

// acquire returns the session, dialling it on the first call. Every
// successful acquire must be paired with release.
func (l *lease) acquire(ctx context.Context) (mail.Sender, error) {
	l.dialOnce.Do(func() {
		l.sender, l.dialErr = l.dialer.Dial(ctx, l.creds)
		if l.dialErr != nil {
			l.dialErr = errors.Wrap(l.dialErr, "failed to open transport session")
		}
	})
	if l.dialErr != nil {
		return nil, l.dialErr
	}

	l.holders.Add(1)
	return l.sender, nil
}

func (l *lease) release() {
	l.holders.Done()
}

// dialled reports whether a session was ever opened.
func (l *lease) dialled() bool {
	return l.sender != nil
}

// close waits for outstanding holders and closes the session once.
func (l *lease) close() error {
	l.closeOnce.Do(func() {
		l.holders.Wait()
		if l.sender != nil {
			l.closeErr = errors.Wrap(l.sender.Close(), "failed to close transport session")
		}
	})
	return l.closeErr
}
