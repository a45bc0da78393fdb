// Package archive keeps Test Records in a SQLite database, one row per
// record, grouped by run.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"v.io/x/lib/vlog"

	"github.com/DmitryKuk/pipe-speed/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP,
	mode        TEXT NOT NULL,
	sweep       TEXT NOT NULL,
	status      INTEGER,
	error       TEXT
);
CREATE TABLE IF NOT EXISTS records (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	test_id         INTEGER NOT NULL,
	data_size       INTEGER NOT NULL,
	chunk_size      INTEGER NOT NULL,
	elapsed_ns      INTEGER NOT NULL,
	cumulative_size INTEGER NOT NULL,
	cumulative_ns   INTEGER NOT NULL,
	PRIMARY KEY (run_id, test_id)
);`

// Store is an open archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInfo describes an archived run.
type RunInfo struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or after a crash
	Mode       common.Mode
	Sweep      string
	Status     int
	Error      string
	Records    int
}

// Run archives the records of one sweep.
type Run struct {
	ID    string
	store *Store
	ctx   context.Context
}

// BeginRun starts a run with a fresh identifier.
func (s *Store) BeginRun(ctx context.Context, mode common.Mode, sweep string) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, mode, sweep) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC(), string(mode), sweep)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	vlog.VI(1).Infof("archive: run %s started", id)
	return &Run{ID: id, store: s, ctx: ctx}, nil
}

// Record implements consumer.Sink. Each record is committed on its own
// so a broken sweep keeps what it measured.
func (r *Run) Record(rec common.TestRecord) error {
	_, err := r.store.db.ExecContext(r.ctx,
		`INSERT INTO records (run_id, test_id, data_size, chunk_size, elapsed_ns, cumulative_size, cumulative_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, int64(rec.TestID), int64(rec.DataSize), int64(rec.ChunkSize),
		int64(rec.Elapsed), int64(rec.CumulativeSize), int64(rec.CumulativeTime))
	if err != nil {
		return fmt.Errorf("archive record %d: %w", rec.TestID, err)
	}
	return nil
}

// Finish stores the outcome of the sweep.
func (r *Run) Finish(sweepErr error) error {
	var msg sql.NullString
	if sweepErr != nil {
		msg = sql.NullString{String: sweepErr.Error(), Valid: true}
	}
	// the sweep context may already be cancelled
	_, err := r.store.db.Exec(
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), common.ExitCode(sweepErr), msg, r.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", r.ID, err)
	}
	return nil
}

// Runs lists archived runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, r.finished_at, r.mode, r.sweep, r.status, r.error,
		       (SELECT COUNT(*) FROM records WHERE run_id = r.id)
		FROM runs r ORDER BY r.started_at DESC, r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			ri       RunInfo
			finished sql.NullTime
			status   sql.NullInt64
			msg      sql.NullString
			mode     string
		)
		if err := rows.Scan(&ri.ID, &ri.StartedAt, &finished, &mode, &ri.Sweep, &status, &msg, &ri.Records); err != nil {
			return nil, err
		}
		ri.Mode = common.Mode(mode)
		ri.FinishedAt = finished.Time
		ri.Status = int(status.Int64)
		ri.Error = msg.String
		out = append(out, ri)
	}
	return out, rows.Err()
}

// Records returns the records of one run in test order.
func (s *Store) Records(ctx context.Context, runID string) ([]common.TestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT test_id, data_size, chunk_size, elapsed_ns, cumulative_size, cumulative_ns
		FROM records WHERE run_id = ? ORDER BY test_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.TestRecord
	for rows.Next() {
		var id, data, chunk, elapsed, cumSize, cumTime int64
		if err := rows.Scan(&id, &data, &chunk, &elapsed, &cumSize, &cumTime); err != nil {
			return nil, err
		}
		out = append(out, common.TestRecord{
			TestID:         uint64(id),
			DataSize:       uint64(data),
			ChunkSize:      uint64(chunk),
			Elapsed:        time.Duration(elapsed),
			CumulativeSize: uint64(cumSize),
			CumulativeTime: time.Duration(cumTime),
		})
	}
	return out, rows.Err()
}
