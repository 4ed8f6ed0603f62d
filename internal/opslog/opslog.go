// Package opslog is a strictly diagnostic SQLite-backed history of cycle
// outcomes (phase, pipeline name, result kind, error text). It is never
// consulted by the tracking or control-plane logic; an operator queries it
// after the fact to understand what the daemon did. Grounded on the
// teacher's internal/db DB wrapper and golang-migrate usage.
package opslog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a *sql.DB opened against the operational cycle-history file.
type DB struct {
	*sql.DB
}

// Open opens (creating if absent) the SQLite file at path and migrates it
// to the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opslog: open: %w", err)
	}
	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("opslog: migrations fs: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("opslog: iofs source: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("opslog: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("opslog: migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("opslog: migrate up: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) { log.Printf("[opslog migrate] "+format, v...) }
func (l *migrateLogger) Verbose() bool                          { return false }

// CycleRecord is one cycle's recorded outcome.
type CycleRecord struct {
	At           time.Time
	Phase        string
	PipelineName string
	ResultKind   string // "accepted" | "dropped" | "fatal"
	Detail       string
	GlobalCount  int
}

// RecordCycle inserts one cycle's outcome.
func (db *DB) RecordCycle(r CycleRecord) error {
	_, err := db.Exec(`
		INSERT INTO cycle_history (at_unix_nanos, phase, pipeline_name, result_kind, detail, global_count)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.At.UnixNano(), r.Phase, r.PipelineName, r.ResultKind, r.Detail, r.GlobalCount)
	if err != nil {
		return fmt.Errorf("opslog: record cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the most recent limit cycle records, newest first.
func (db *DB) RecentCycles(limit int) ([]CycleRecord, error) {
	rows, err := db.Query(`
		SELECT at_unix_nanos, phase, pipeline_name, result_kind, detail, global_count
		FROM cycle_history ORDER BY at_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("opslog: recent cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		var atNanos int64
		if err := rows.Scan(&atNanos, &r.Phase, &r.PipelineName, &r.ResultKind, &r.Detail, &r.GlobalCount); err != nil {
			return nil, fmt.Errorf("opslog: scan cycle: %w", err)
		}
		r.At = time.Unix(0, atNanos).UTC()
		out = append(out, r)
	}
	return out, nil
}
