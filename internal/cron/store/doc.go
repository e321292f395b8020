// Package store keeps the durable table of cron jobs.
//
// The table lives in memory (map keyed on id plus insertion order) and is
// flushed as a whole through a Backend:
//   - "file": a single JSON document, written to <path>.tmp then renamed
//   - "sqlite": one row per job in an SQLite database file
//
// The store holds no scheduling logic.
package store
