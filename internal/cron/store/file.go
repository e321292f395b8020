package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"agentcron/internal/cron/job"
	logx "agentcron/pkg/logx"
)

// fileBackend is the dependency-free backend: one JSON document holding
// {"version":1,"jobs":[...]}.
type fileBackend struct {
	log  logx.Logger
	path string
}

func openFile(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileBackend{log: log, path: path}, nil
}

func (b *fileBackend) Path() string { return b.path }

func (b *fileBackend) Load(ctx context.Context) ([]job.Job, error) {
	_ = ctx
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		b.log.Debug("job store not found; starting empty", logx.String("path", b.path))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &CorruptStoreError{Path: b.path, Err: errors.New("empty file")}
	}

	var doc fileDoc
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, &CorruptStoreError{Path: b.path, Err: err}
	}
	if doc.Version > docVersion {
		return nil, &CorruptStoreError{Path: b.path, Err: errors.New("unsupported store version")}
	}
	return doc.Jobs, nil
}

// Save writes to <path>.tmp, syncs, then renames over the real file so a
// crash mid-write never leaves a truncated store.
func (b *fileBackend) Save(ctx context.Context, jobs []job.Job) error {
	_ = ctx
	if jobs == nil {
		jobs = []job.Job{}
	}
	data, err := json.MarshalIndent(fileDoc{Version: docVersion, Jobs: jobs}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	tmp := b.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *fileBackend) Close() error { return nil }
