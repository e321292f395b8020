package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"agentcron/internal/cron/job"
	logx "agentcron/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteBackend struct {
	db   *sql.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	b := &sqliteBackend{db: db, log: log, path: path}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := b.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *sqliteBackend) migrate(ctx context.Context) error {
	q, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, string(q)); err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO cron_meta(key, value) VALUES('version', ?) ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(docVersion),
	)
	return err
}

func (b *sqliteBackend) Path() string { return b.path }

func (b *sqliteBackend) Load(ctx context.Context) ([]job.Job, error) {
	if b.db == nil {
		return nil, ErrClosed
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, body FROM cron_jobs ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var j job.Job
		if err := json.Unmarshal([]byte(body), &j); err != nil {
			return nil, &CorruptStoreError{Path: b.path, Err: fmt.Errorf("row %q: %w", id, err)}
		}
		if j.ID != id {
			return nil, &CorruptStoreError{Path: b.path, Err: fmt.Errorf("row %q holds job %q", id, j.ID)}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// Save replaces every row in one transaction; seq preserves insertion order.
func (b *sqliteBackend) Save(ctx context.Context, jobs []job.Job) error {
	if b.db == nil {
		return ErrClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cron_jobs`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cron_jobs(id, seq, body, updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, j := range jobs {
		body, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, j.ID, i, string(body), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
