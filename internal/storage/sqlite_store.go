// Package storage persists per-epoch pipeline results in SQLite so
// runs can be inspected and compared after the fact.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/signalsfoundry/gnss-sentinel/model"
)

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at  TIMESTAMP NOT NULL,
    source      TEXT NOT NULL,
    solver_mode TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS epoch_results (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   INTEGER NOT NULL REFERENCES sessions(id),
    epoch_key    INTEGER NOT NULL,
    week         INTEGER NOT NULL,
    tow_sec      REAL NOT NULL,
    skipped      INTEGER NOT NULL,
    skip_reason  TEXT,
    x            REAL,
    y            REAL,
    z            REAL,
    clock_bias_m REAL,
    rms_m        REAL,
    lat_deg      REAL,
    lon_deg      REAL,
    alt_m        REAL,
    flagged      TEXT,
    excluded     TEXT,
    reasons      TEXT
);

CREATE INDEX IF NOT EXISTS idx_epoch_results_session
    ON epoch_results(session_id, epoch_key);
`

// SqliteStore handles database operations for pipeline results.
type SqliteStore struct {
	dbPath string

	db     *sql.DB
	dbOnce sync.Once
	dbErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store over dbPath. The connection and
// schema are initialised lazily on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func (s *SqliteStore) getDB() (*sql.DB, error) {
	s.dbOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL", s.dbPath))
		if err != nil {
			s.dbErr = fmt.Errorf("opening database: %w", err)
			return
		}
		if _, err = db.Exec(initSchemaSQL); err != nil {
			_ = db.Close()
			s.dbErr = fmt.Errorf("initializing schema: %w", err)
			return
		}
		s.db = db
	})
	return s.db, s.dbErr
}

// CreateSession records a new processing run and returns its ID.
func (s *SqliteStore) CreateSession(ctx context.Context, source, solverMode string) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO sessions (started_at, source, solver_mode) VALUES (?, ?, ?)`,
		time.Now().UTC(), source, solverMode)
	if err != nil {
		return 0, fmt.Errorf("creating session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// StoreResult persists one epoch result under a session.
func (s *SqliteStore) StoreResult(ctx context.Context, sessionID int64, r model.EpochResult) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	if r.Skipped() {
		_, err = db.ExecContext(ctx,
			`INSERT INTO epoch_results (session_id, epoch_key, week, tow_sec, skipped, skip_reason)
			 VALUES (?, ?, ?, ?, 1, ?)`,
			sessionID, r.EpochKey, r.Week, r.TowSec, r.SkipReason)
		if err != nil {
			return fmt.Errorf("storing skipped epoch %d: %w", r.EpochKey, err)
		}
		return nil
	}

	est, verdict := r.Estimate, r.Verdict
	_, err = db.ExecContext(ctx,
		`INSERT INTO epoch_results (session_id, epoch_key, week, tow_sec, skipped,
		     x, y, z, clock_bias_m, rms_m, lat_deg, lon_deg, alt_m, flagged, excluded, reasons)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.EpochKey, r.Week, r.TowSec,
		est.X, est.Y, est.Z, est.ClockBiasM, est.RMS,
		est.Geodetic.LatDeg, est.Geodetic.LonDeg, est.Geodetic.AltM,
		strings.Join(verdict.FlaggedSatIDs, ","),
		strings.Join(est.ExcludedSatIDs, ","),
		strings.Join(verdict.Reasons, ";"))
	if err != nil {
		return fmt.Errorf("storing epoch %d: %w", r.EpochKey, err)
	}
	return nil
}

// SessionSummary is an aggregate view over one session's rows.
type SessionSummary struct {
	Epochs  int
	Skipped int
	Spoofed int
}

// Summarize aggregates a session's stored results.
func (s *SqliteStore) Summarize(ctx context.Context, sessionID int64) (SessionSummary, error) {
	db, err := s.getDB()
	if err != nil {
		return SessionSummary{}, err
	}
	var sum SessionSummary
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(skipped), 0),
		        COALESCE(SUM(CASE WHEN flagged IS NOT NULL AND flagged != '' THEN 1 ELSE 0 END), 0)
		 FROM epoch_results WHERE session_id = ?`, sessionID).
		Scan(&sum.Epochs, &sum.Skipped, &sum.Spoofed)
	if err != nil {
		return SessionSummary{}, fmt.Errorf("summarizing session %d: %w", sessionID, err)
	}
	return sum, nil
}

// Close releases the database handle. Safe to call more than once.
func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		if s.db != nil {
			s.closeErr = s.db.Close()
		}
	})
	return s.closeErr
}
