package store

import (
	"errors"
	"strings"

	logx "agentcron/pkg/logx"
)

const (
	DefaultFilePath   = "./data/cron/jobs.json"
	DefaultSQLitePath = "./data/cron/jobs.db"
)

// Open initializes the configured backend and returns an empty Store;
// call Load to read persisted jobs.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))

	var (
		b   Backend
		err error
	)
	switch driver {
	case "", "file", "json":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultFilePath
		}
		b, err = openFile(cfg, log)
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" {
			cfg.Path = DefaultSQLitePath
		}
		b, err = openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown job store driver: " + driver)
	}
	if err != nil {
		return nil, err
	}
	return New(b), nil
}
