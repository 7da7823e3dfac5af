// Package history persists finished analysis runs to SQLite so operators
// can compare verdicts across runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/aali87/sfmc-scripting-sub000/internal/core"
	"github.com/aali87/sfmc-scripting-sub000/internal/utils"
)

// maxRawBytes caps the serialized metadata stored per verdict row.
const maxRawBytes = 4096

// SQLiteStore is a SQLite implementation of core.HistoryStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) the run-history database.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis_runs (
			run_id TEXT PRIMARY KEY,
			generated_at TIMESTAMP,
			stale_cutoff TIMESTAMP,
			data_extensions INTEGER,
			dependencies INTEGER,
			unreferenced INTEGER
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create analysis_runs table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT,
			dep_type TEXT,
			dep_id TEXT,
			name TEXT,
			detail TEXT,
			classification TEXT,
			reason TEXT,
			can_delete BOOLEAN,
			raw_metadata TEXT,
			PRIMARY KEY (run_id, dep_type, dep_id)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create verdicts table: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveRun writes the run header and one row per classified dependency in a
// single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, report *core.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (run_id, generated_at, stale_cutoff, data_extensions, dependencies, unreferenced)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		report.RunID,
		report.GeneratedAt.Format(time.RFC3339),
		report.StaleCutoff.Format(time.RFC3339),
		report.Summary.DataExtensions,
		report.Summary.Dependencies,
		report.Summary.Unreferenced,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run header: %w", err)
	}

	for _, dep := range report.Dependencies {
		raw := ""
		if blob, err := json.Marshal(dep.Raw); err == nil {
			raw = utils.TruncateUTF8(string(blob), maxRawBytes)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO verdicts (run_id, dep_type, dep_id, name, detail, classification, reason, can_delete, raw_metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.RunID,
			string(dep.Type),
			dep.ID,
			dep.Name,
			dep.Detail,
			string(dep.Verdict.Classification),
			string(dep.Verdict.Reason),
			dep.Verdict.CanDelete,
			raw,
		)
		if err != nil {
			return fmt.Errorf("failed to insert verdict for %s: %w", dep.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history transaction: %w", err)
	}
	s.logger.Debug("Recorded analysis run",
		zap.String("run_id", report.RunID),
		zap.Int("verdicts", len(report.Dependencies)))
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
