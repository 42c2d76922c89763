package jobs

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps jobs in process memory. Jobs expire ttl after their
// last save; a zero ttl keeps them forever.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mx   sync.RWMutex
	jobs map[string]memoryEntry
}

type memoryEntry struct {
	job       *Job
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		now:  time.Now,
		jobs: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	now := s.now()

	s.mx.Lock()
	defer s.mx.Unlock()

	s.evict(now)

	e := memoryEntry{job: job.Clone()}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.jobs[job.ID] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()

	e, ok := s.jobs[id]
	if !ok || e.expired(s.now()) {
		return nil, ErrNotFound
	}
	return e.job.Clone(), nil
}

// Close drops every job.
func (s *MemoryStore) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	clear(s.jobs)
	return nil
}

// evict must be called with mx held.
func (s *MemoryStore) evict(now time.Time) {
	for id, e := range s.jobs {
		if e.expired(now) {
			delete(s.jobs, id)
		}
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
