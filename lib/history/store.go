// Copyright 2026 The Flowline Authors
// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/flowline-ci/flowline/lib/codec"
	"github.com/flowline-ci/flowline/lib/schema"
	"github.com/flowline-ci/flowline/lib/sqlitepool"
)

// runsSchema is applied to every connection. CREATE IF NOT EXISTS
// keeps it idempotent across pool connections and process restarts.
const runsSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		branch      TEXT NOT NULL,
		sha         TEXT NOT NULL,
		pr_number   INTEGER NOT NULL,
		repo        TEXT NOT NULL,
		status      TEXT NOT NULL,
		started     INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		job_count   INTEGER NOT NULL,
		jobs        BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_pipeline ON runs(pipeline, started);
	CREATE INDEX IF NOT EXISTS idx_runs_sha ON runs(sha);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
`

// NotFoundError reports a run ID with no stored row.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run %d not found", e.ID)
}

// Config holds the parameters for opening a history store.
type Config struct {
	// Path is the SQLite database file. Required; the parent
	// directory must exist.
	Path string

	// PoolSize is the connection pool size. Zero means the pool
	// default.
	PoolSize int

	// Logger receives operational messages. Nil means slog.Default().
	Logger *slog.Logger
}

// Store is an append-only record of completed pipeline runs. Safe for
// concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// RunRecord is a stored run: the database row ID plus the full result.
type RunRecord struct {
	ID     int64
	Result schema.PipelineResult
}

// Open creates a history store backed by SQLite, creating the database
// and schema if needed. The caller must Close the store when done.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, runsSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	return &Store{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Record appends a completed run and returns its assigned ID.
func (s *Store) Record(ctx context.Context, result *schema.PipelineResult) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("history store: record: %w", err)
	}
	defer s.pool.Put(conn)

	jobsBlob, err := codec.Marshal(result.Jobs)
	if err != nil {
		return 0, fmt.Errorf("history store: encoding job results: %w", err)
	}

	err = sqlitex.Execute(conn, `INSERT INTO runs
		(pipeline, event_type, branch, sha, pr_number, repo, status,
		 started, duration_ms, job_count, jobs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			result.Pipeline,
			string(result.Event.Type),
			result.Event.Branch,
			result.Event.SHA,
			result.Event.PRNumber,
			result.Event.Repo,
			string(result.Status),
			result.Started.UnixNano(),
			result.Duration.Milliseconds(),
			len(result.Jobs),
			jobsBlob,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("history store: inserting run: %w", err)
	}

	id := conn.LastInsertRowID()
	s.logger.Info("run recorded",
		"id", id,
		"pipeline", result.Pipeline,
		"status", string(result.Status),
	)
	return id, nil
}

// Run fetches a single stored run by ID.
func (s *Store) Run(ctx context.Context, id int64) (RunRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return RunRecord{}, fmt.Errorf("history store: run %d: %w", id, err)
	}
	defer s.pool.Put(conn)

	var record RunRecord
	found := false
	err = sqlitex.Execute(conn, selectColumns+" FROM runs WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			scanned, err := scanRun(stmt)
			if err != nil {
				return err
			}
			record = scanned
			found = true
			return nil
		},
	})
	if err != nil {
		return RunRecord{}, fmt.Errorf("history store: run %d: %w", id, err)
	}
	if !found {
		return RunRecord{}, &NotFoundError{ID: id}
	}
	return record, nil
}

// Filter selects stored runs. Zero-valued fields are not applied.
type Filter struct {
	Pipeline string        // Exact match on pipeline name.
	Branch   string        // Exact match on branch.
	SHA      string        // Exact match on commit SHA.
	Status   schema.Status // Exact match on overall status.
	Limit    int           // Maximum rows to return (default 50).
}

// List returns stored runs matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]RunRecord, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("history store: list: %w", err)
	}
	defer s.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var conditions []string
	var args []any
	if filter.Pipeline != "" {
		conditions = append(conditions, "pipeline = ?")
		args = append(args, filter.Pipeline)
	}
	if filter.Branch != "" {
		conditions = append(conditions, "branch = ?")
		args = append(args, filter.Branch)
	}
	if filter.SHA != "" {
		conditions = append(conditions, "sha = ?")
		args = append(args, filter.SHA)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := selectColumns + " FROM runs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var records []RunRecord
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanRun(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("history store: list: %w", err)
	}
	return records, nil
}

const selectColumns = "SELECT id, pipeline, event_type, branch, sha, pr_number, repo, status, started, duration_ms, jobs"

func scanRun(stmt *sqlite.Stmt) (RunRecord, error) {
	// Columns: id(0), pipeline(1), event_type(2), branch(3), sha(4),
	// pr_number(5), repo(6), status(7), started(8), duration_ms(9),
	// jobs(10)
	record := RunRecord{
		ID: stmt.ColumnInt64(0),
		Result: schema.PipelineResult{
			Pipeline: stmt.ColumnText(1),
			Event: schema.Event{
				Type:     schema.EventType(stmt.ColumnText(2)),
				Branch:   stmt.ColumnText(3),
				SHA:      stmt.ColumnText(4),
				PRNumber: stmt.ColumnInt(5),
				Repo:     stmt.ColumnText(6),
			},
			Status:   schema.Status(stmt.ColumnText(7)),
			Started:  time.Unix(0, stmt.ColumnInt64(8)).UTC(),
			Duration: time.Duration(stmt.ColumnInt64(9)) * time.Millisecond,
		},
	}

	jobsBlob := make([]byte, stmt.ColumnLen(10))
	stmt.ColumnBytes(10, jobsBlob)
	if err := codec.Unmarshal(jobsBlob, &record.Result.Jobs); err != nil {
		return RunRecord{}, fmt.Errorf("decoding job results for run %d: %w", record.ID, err)
	}

	return record, nil
}
