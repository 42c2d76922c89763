package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailmerge/mail"
)

func TestLease_DialsOnceAndClosesOnce(t *testing.T) {
	d := &fakeDialer{}
	l := newLease(d, mail.Credentials{Username: "hello@example.com"})
	assert.False(t, l.dialled())

	s1, err := l.acquire(context.Background())
	require.NoError(t, err)
	s2, err := l.acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.True(t, l.dialled())

	l.release()
	l.release()

	require.NoError(t, l.close())
	require.NoError(t, l.close())
	assert.EqualValues(t, 1, d.dials.Load())
	assert.EqualValues(t, 1, d.closes.Load())
}

func TestLease_CloseWaitsForHolders(t *testing.T) {
	d := &fakeDialer{}
	l := newLease(d, mail.Credentials{})

	_, err := l.acquire(context.Background())
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = l.close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("close returned while the session was held")
	default:
	}
	assert.Zero(t, d.closes.Load())

	l.release()
	<-closed
	assert.EqualValues(t, 1, d.closes.Load())
}

func TestLease_CloseWithoutDial(t *testing.T) {
	d := &fakeDialer{}
	l := newLease(d, mail.Credentials{})

	require.NoError(t, l.close())
	assert.Zero(t, d.dials.Load())
	assert.Zero(t, d.closes.Load())
}
