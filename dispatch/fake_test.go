package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/mail"
)

// fakeDialer records every session it opens and every message sent.
type fakeDialer struct {
	dialErr error
	// fail, when set, decides the outcome of each send.
	fail  func(msg mail.Message) error
	delay time.Duration
	// gate, when set, blocks every send until it is closed.
	gate chan struct{}

	dials    atomic.Int32
	closes   atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32

	mx    sync.Mutex
	sent  []mail.Message
	creds []mail.Credentials
	// closedWithInflight is set if Close ran while a send was in progress.
	closedWithInflight bool
}

func (d *fakeDialer) Dial(_ context.Context, creds mail.Credentials) (mail.Sender, error) {
	d.dials.Add(1)

	d.mx.Lock()
	d.creds = append(d.creds, creds)
	d.mx.Unlock()

	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeSender{d: d}, nil
}

func (d *fakeDialer) messages() []mail.Message {
	d.mx.Lock()
	defer d.mx.Unlock()
	return append([]mail.Message(nil), d.sent...)
}

type fakeSender struct {
	d *fakeDialer
}

func (s *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	d := s.d

	n := d.inflight.Add(1)
	defer d.inflight.Add(-1)
	for {
		peak := d.peak.Load()
		if n <= peak || d.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if d.gate != nil {
		<-d.gate
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if err := ctx.Err(); err != nil {
		return mail.NewError(mail.KindCanceled, err)
	}
	if d.fail != nil {
		if err := d.fail(msg); err != nil {
			return err
		}
	}

	d.mx.Lock()
	d.sent = append(d.sent, msg)
	d.mx.Unlock()
	return nil
}

func (s *fakeSender) Close() error {
	d := s.d
	if d.inflight.Load() > 0 {
		d.mx.Lock()
		d.closedWithInflight = true
		d.mx.Unlock()
	}
	d.closes.Add(1)
	return nil
}

var errBadCredentials = mail.NewError(mail.KindAuth, errors.New("535 authentication failed"))
