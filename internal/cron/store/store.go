package store

import (
	"context"
	"fmt"
	"sync"

	"agentcron/internal/cron/job"
)

// Store is the in-memory, insertion-ordered job table backed by a Backend.
//
// Get/List/Upsert/Delete never touch the backend; callers flush with Save
// after each mutation.
type Store struct {
	backend Backend

	mu    sync.RWMutex
	jobs  map[string]*job.Job
	order []string
}

// New wraps a backend with an empty table.
func New(b Backend) *Store {
	return &Store{backend: b, jobs: map[string]*job.Job{}}
}

// Path returns the backend location (file or database path).
func (s *Store) Path() string {
	b := s.current()
	if b == nil {
		return ""
	}
	return b.Path()
}

func (s *Store) current() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// Load replaces the in-memory table with the persisted one.
// A missing file yields an empty table; malformed content or duplicate ids
// yield *CorruptStoreError and leave the current table untouched.
func (s *Store) Load(ctx context.Context) error {
	b := s.current()
	if b == nil {
		return ErrClosed
	}
	list, err := b.Load(ctx)
	if err != nil {
		return err
	}

	jobs := make(map[string]*job.Job, len(list))
	order := make([]string, 0, len(list))
	for i := range list {
		j := list[i]
		if j.ID == "" {
			return &CorruptStoreError{Path: b.Path(), Err: fmt.Errorf("job #%d has no id", i)}
		}
		if _, dup := jobs[j.ID]; dup {
			return &CorruptStoreError{Path: b.Path(), Err: fmt.Errorf("duplicate job id %q", j.ID)}
		}
		jobs[j.ID] = &j
		order = append(order, j.ID)
	}

	s.mu.Lock()
	s.jobs = jobs
	s.order = order
	s.mu.Unlock()
	return nil
}

// Save writes the full table atomically.
func (s *Store) Save(ctx context.Context) error {
	b := s.current()
	if b == nil {
		return ErrClosed
	}
	return b.Save(ctx, s.List())
}

func (s *Store) Get(id string) (job.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, false
	}
	return j.Clone(), true
}

// List returns copies of all jobs in insertion order.
func (s *Store) List() []job.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]job.Job, 0, len(s.order))
	for _, id := range s.order {
		if j, ok := s.jobs[id]; ok {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Upsert appends a new job or replaces an existing one in place.
func (s *Store) Upsert(j job.Job) {
	cp := j.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ID]; !ok {
		s.order = append(s.order, j.ID)
	}
	s.jobs[j.ID] = &cp
}

// Delete removes a job. It returns false if the id was unknown.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) Close() error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}
