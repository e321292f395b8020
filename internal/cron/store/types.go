package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentcron/internal/cron/job"
)

var ErrClosed = errors.New("job store closed")

// Config configures the job store.
//
// Driver values:
//   - "file" (default): JSON document at Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backend persists the full job list. Load on a missing file or empty
// database returns an empty list.
type Backend interface {
	Load(ctx context.Context) ([]job.Job, error)
	Save(ctx context.Context, jobs []job.Job) error
	Path() string
	Close() error
}

// CorruptStoreError reports persisted content that could not be decoded.
// The backing data is left untouched.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt job store %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// fileDoc is the on-disk layout of the file backend.
type fileDoc struct {
	Version int       `json:"version"`
	Jobs    []job.Job `json:"jobs"`
}

const docVersion = 1
