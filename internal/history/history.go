// Package history records every task fire in a small SQLite database.
//
// The log is best-effort operational data: append or prune failures are
// surfaced to the caller for logging but must never influence scheduling.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"chime/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrDisabled = errors.New("history disabled")

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default

	// Retention is how long rows are kept; 0 defaults to 30 days.
	Retention time.Duration
}

type Record struct {
	TaskID  string
	Tenant  string
	At      time.Time
	Took    time.Duration
	Outcome string // "ok", "transient", "fatal"
	Error   string
}

// Store is the SQLite-backed run log. A nil *Store is a safe no-op.
type Store struct {
	db  *sql.DB
	log logx.Logger

	retention  time.Duration
	opCount    atomic.Uint64
	pruneEvery uint64
}

// Open opens (or creates) the history database and applies migrations.
// An empty path disables history: it returns (nil, nil).
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
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

	retention := cfg.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	st := &Store{db: db, log: log, retention: retention, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one fire. Old rows are pruned opportunistically every few
// hundred appends so no separate janitor is needed.
func (s *Store) Append(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_history(task_id, tenant, at, took_ms, outcome, err)
		 VALUES(?,?,?,?,?,?)`,
		r.TaskID, r.Tenant, r.At.UTC().Format(time.RFC3339Nano),
		r.Took.Milliseconds(), r.Outcome, nullStr(r.Error),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Warn("history prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

// Recent returns up to limit records for one task, newest first.
func (s *Store) Recent(ctx context.Context, taskID string, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, tenant, at, took_ms, outcome, COALESCE(err, '')
		 FROM run_history WHERE task_id = ?
		 ORDER BY at DESC LIMIT ?`,
		taskID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at string
		var tookMS int64
		if err := rows.Scan(&r.TaskID, &r.Tenant, &at, &tookMS, &r.Outcome, &r.Error); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Took = time.Duration(tookMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) pruneExpired(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().Add(-s.retention).UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_history WHERE at < ?`, cutoff)
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
