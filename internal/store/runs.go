// Package store persists workflow run history so prior baselines can
// be compared against later runs.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chartflow/internal/logging"
	"chartflow/internal/workflow"
)

// RunStore manages the chartflow run ledger database.
type RunStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// RunRecord is one persisted ledger row.
type RunRecord struct {
	RunID           string
	Dataset         string
	CaseLabel       string
	Group           string
	Instruction     string
	GenerationModel string
	ReflectionModel string
	Status          string
	Findings        []string
	Accepted        bool
	V1Path          string
	V2Path          string
	Error           string
	DurationMS      int64
	CreatedAt       time.Time
}

// NewRunStore creates or opens the run ledger under dir
// (normally the .chartflow directory).
func NewRunStore(dir string) (*RunStore, error) {
	dbPath := filepath.Join(dir, "runs.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &RunStore{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *RunStore) Path() string {
	return s.dbPath
}

// initSchema creates the database schema.
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		dataset TEXT NOT NULL,
		case_label TEXT NOT NULL,
		case_group TEXT NOT NULL,
		instruction TEXT,
		generation_model TEXT NOT NULL,
		reflection_model TEXT NOT NULL,
		status TEXT NOT NULL,
		findings_json TEXT,
		accepted INTEGER NOT NULL DEFAULT 0,
		v1_path TEXT,
		v2_path TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordResult writes a completed workflow result to the ledger.
// Implements workflow.RunRecorder.
func (s *RunStore) RecordResult(res *workflow.WorkflowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var findingsJSON []byte
	accepted := false
	if res.Critique != nil {
		var err error
		findingsJSON, err = json.Marshal(res.Critique.Findings)
		if err != nil {
			return fmt.Errorf("failed to marshal findings: %w", err)
		}
		accepted = res.Critique.Accepted
	}

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (id, dataset, case_label, case_group, instruction,
			generation_model, reflection_model, status, findings_json, accepted,
			v1_path, v2_path, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID,
		res.Request.DatasetStem(),
		res.Request.CaseLabel,
		res.Request.Group,
		res.Request.Instruction,
		res.Request.GenerationModel,
		res.Request.ReflectionModel,
		res.Status.String(),
		string(findingsJSON),
		accepted,
		res.V1Path,
		res.V2Path,
		errText,
		res.Duration.Milliseconds(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	logging.Store("Recorded run %s: dataset=%s status=%s", res.RunID, res.Request.DatasetStem(), res.Status)
	return nil
}

// Recent returns up to limit ledger rows, newest first.
func (s *RunStore) Recent(limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, dataset, case_label, case_group, instruction,
			generation_model, reflection_model, status, findings_json, accepted,
			v1_path, v2_path, error, duration_ms, created_at
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var findingsJSON string
		if err := rows.Scan(&rec.RunID, &rec.Dataset, &rec.CaseLabel, &rec.Group,
			&rec.Instruction, &rec.GenerationModel, &rec.ReflectionModel,
			&rec.Status, &findingsJSON, &rec.Accepted,
			&rec.V1Path, &rec.V2Path, &rec.Error, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if findingsJSON != "" {
			if err := json.Unmarshal([]byte(findingsJSON), &rec.Findings); err != nil {
				logging.StoreError("Recent: bad findings JSON for run %s: %v", rec.RunID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
