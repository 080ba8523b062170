// Package store persists runs, judgments, criteria versions and the
// enrichment cache in a single SQLite file next to the output artifacts.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/talentsift/talentsift/internal/criteria"
	"github.com/talentsift/talentsift/internal/enrich"
)

// ErrNotFound reports a lookup that matched no row.
var ErrNotFound = errors.New("store: not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id                  TEXT PRIMARY KEY,
	role                TEXT NOT NULL,
	criteria_version_id TEXT NOT NULL,
	status              TEXT NOT NULL,
	started_at          TEXT NOT NULL,
	finished_at         TEXT,
	counts_json         TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS results (
	run_id              TEXT NOT NULL REFERENCES runs(id),
	identity_key        TEXT NOT NULL,
	display_name        TEXT NOT NULL,
	source_file         TEXT NOT NULL,
	bucket              TEXT NOT NULL,
	enrichment_status   TEXT NOT NULL,
	judgments_json      TEXT NOT NULL,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_run_idx ON results(run_id);

CREATE TABLE IF NOT EXISTS criteria_versions (
	id              TEXT PRIMARY KEY,
	role            TEXT NOT NULL,
	number          INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	definition_json TEXT NOT NULL,
	UNIQUE(role, number)
);

CREATE TABLE IF NOT EXISTS enrichment (
	identifier  TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	fetched_at  TEXT NOT NULL
);
`

// Run is one pipeline execution and its outcome counters.
type Run struct {
	ID                string         `json:"id"`
	Role              string         `json:"role"`
	CriteriaVersionID string         `json:"criteria_version_id"`
	Status            string         `json:"status"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at,omitempty"`
	Counts            map[string]int `json:"counts"`
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Result is one persisted candidate verdict.
type Result struct {
	RunID            string          `json:"run_id"`
	IdentityKey      string          `json:"identity_key"`
	DisplayName      string          `json:"display_name"`
	SourceFile       string          `json:"source_file"`
	Bucket           string          `json:"bucket"`
	EnrichmentStatus string          `json:"enrichment_status"`
	Judgments        json.RawMessage `json:"judgments"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Store wraps the SQLite handle. It is safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// CreateRun registers a new run in the running state and returns it.
func (s *Store) CreateRun(role, criteriaVersionID string) (*Run, error) {
	run := &Run{
		ID:                uuid.NewString(),
		Role:              role,
		CriteriaVersionID: criteriaVersionID,
		Status:            RunStatusRunning,
		StartedAt:         s.now().UTC(),
		Counts:            map[string]int{},
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, role, criteria_version_id, status, started_at, counts_json) VALUES (?, ?, ?, ?, ?, '{}')`,
		run.ID, run.Role, run.CriteriaVersionID, run.Status, run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks the run finished with its final status and counters.
func (s *Store) FinishRun(runID, status string, counts map[string]int) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ?, counts_json = ? WHERE id = ?`,
		status, s.now().UTC().Format(time.RFC3339Nano), string(countsJSON), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRunCounts replaces the counters of a run that is still going, so a
// poller reading the run row sees evaluation progress before FinishRun
// writes the final numbers.
func (s *Store) UpdateRunCounts(runID string, counts map[string]int) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE runs SET counts_json = ? WHERE id = ?`,
		string(countsJSON), runID,
	)
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns one run by ID.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, role, criteria_version_id, status, started_at, finished_at, counts_json FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns runs newest first, capped at limit.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, role, criteria_version_id, status, started_at, finished_at, counts_json FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var startedAt, countsJSON string
	var finishedAt sql.NullString
	err := row.Scan(&run.ID, &run.Role, &run.CriteriaVersionID, &run.Status, &startedAt, &finishedAt, &countsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(countsJSON), &run.Counts); err != nil {
		return nil, fmt.Errorf("parse counts: %w", err)
	}
	return &run, nil
}

// SaveResults persists a batch of verdicts for the run in one transaction.
func (s *Store) SaveResults(results []*Result) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, identity_key, display_name, source_file, bucket, enrichment_status, judgments_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, r := range results {
		if _, err := stmt.Exec(r.RunID, r.IdentityKey, r.DisplayName, r.SourceFile, r.Bucket, r.EnrichmentStatus, string(r.Judgments), now); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

// ResultsForRun returns the verdicts of one run in insertion order.
func (s *Store) ResultsForRun(runID string) ([]*Result, error) {
	rows, err := s.db.Query(
		`SELECT run_id, identity_key, display_name, source_file, bucket, enrichment_status, judgments_json, created_at
		 FROM results WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []*Result
	for rows.Next() {
		var r Result
		var judgments, createdAt string
		if err := rows.Scan(&r.RunID, &r.IdentityKey, &r.DisplayName, &r.SourceFile, &r.Bucket, &r.EnrichmentStatus, &judgments, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Judgments = json.RawMessage(judgments)
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PushCriteriaVersion appends a new immutable version for the role. The
// version number is the previous number plus one; existing versions are
// never modified.
func (s *Store) PushCriteriaVersion(role string, def *criteria.Definition) (*criteria.Version, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	defJSON, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var number int
	err = tx.QueryRow(`SELECT COALESCE(MAX(number), 0) FROM criteria_versions WHERE role = ?`, role).Scan(&number)
	if err != nil {
		return nil, fmt.Errorf("max version: %w", err)
	}

	version := &criteria.Version{
		ID:         uuid.NewString(),
		Role:       role,
		Number:     number + 1,
		CreatedAt:  s.now().UTC(),
		Definition: *def,
	}
	_, err = tx.Exec(
		`INSERT INTO criteria_versions (id, role, number, created_at, definition_json) VALUES (?, ?, ?, ?, ?)`,
		version.ID, version.Role, version.Number, version.CreatedAt.Format(time.RFC3339Nano), string(defJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("insert criteria version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return version, nil
}

// LatestCriteriaVersion returns the highest-numbered version for the role.
func (s *Store) LatestCriteriaVersion(role string) (*criteria.Version, error) {
	row := s.db.QueryRow(
		`SELECT id, role, number, created_at, definition_json FROM criteria_versions WHERE role = ? ORDER BY number DESC LIMIT 1`,
		role,
	)
	return scanCriteriaVersion(row)
}

// ListCriteriaVersions returns every version for the role, oldest first.
func (s *Store) ListCriteriaVersions(role string) ([]*criteria.Version, error) {
	rows, err := s.db.Query(
		`SELECT id, role, number, created_at, definition_json FROM criteria_versions WHERE role = ? ORDER BY number`,
		role,
	)
	if err != nil {
		return nil, fmt.Errorf("list criteria versions: %w", err)
	}
	defer rows.Close()

	var versions []*criteria.Version
	for rows.Next() {
		v, err := scanCriteriaVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func scanCriteriaVersion(row rowScanner) (*criteria.Version, error) {
	var v criteria.Version
	var createdAt, defJSON string
	err := row.Scan(&v.ID, &v.Role, &v.Number, &createdAt, &defJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan criteria version: %w", err)
	}
	if v.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(defJSON), &v.Definition); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	return &v, nil
}

// GetEnrichment implements enrich.Store. A missing row yields (nil, nil).
func (s *Store) GetEnrichment(identifier string) (*enrich.Record, error) {
	var payload, fetchedAt string
	err := s.db.QueryRow(
		`SELECT payload, fetched_at FROM enrichment WHERE identifier = ?`,
		identifier,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrichment: %w", err)
	}

	var rec enrich.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("parse enrichment payload: %w", err)
	}
	if rec.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt); err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}
	rec.Identifier = identifier
	return &rec, nil
}

// PutEnrichment implements enrich.Store with an upsert, so a stale record
// is overwritten in place.
func (s *Store) PutEnrichment(rec *enrich.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO enrichment (identifier, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(identifier) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		rec.Identifier, string(payload), rec.FetchedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("put enrichment: %w", err)
	}
	return nil
}
