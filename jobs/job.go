// Package jobs tracks background mail-merge runs so callers can poll them.
package jobs

import (
	"context"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/dispatch"
)

// State of a job.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Job is a snapshot of one run. It never carries the sender's credentials.
type Job struct {
	ID         string            `json:"id"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"createdAt"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Total      int               `json:"total"` // rows in the dataset
	Summary    dispatch.Summary  `json:"summary"`
	Results    []dispatch.Result `json:"results"`
}

// Clone returns a copy that shares no mutable state with j.
func (j *Job) Clone() *Job {
	c := *j
	c.Results = slices.Clone(j.Results)
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// ErrNotFound is returned by Store.Get for unknown or expired jobs.
var ErrNotFound = errors.New("job not found")

// ErrClosed is returned by Manager.Submit after Close.
var ErrClosed = errors.New("job manager is closed")

// Store persists job snapshots.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Close() error
}
