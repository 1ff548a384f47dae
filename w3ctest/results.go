package w3ctest

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ResultStore persists conformance runs to a sqlite database so regressions
// across runs can be diffed.
type ResultStore struct {
	db *sql.DB
}

const resultSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at TIMESTAMP NOT NULL,
	total INTEGER NOT NULL,
	passed INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	skipped INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	test_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	detail TEXT,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_by_test ON results(test_id);
`

// OpenResultStore opens (and if needed initializes) the database at path.
func OpenResultStore(path string) (*ResultStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("w3ctest: open results: %w", err)
	}
	if _, err := db.Exec(resultSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("w3ctest: init results schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

// RecordRun inserts one report and its per-test outcomes.
func (s *ResultStore) RecordRun(report *Report) (int64, error) {
	passed, failed, skipped := report.Counts()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (started_at, total, passed, failed, skipped) VALUES (?, ?, ?, ?, ?)`,
		report.Started, len(report.Outcomes), passed, failed, skipped)
	if err != nil {
		return 0, err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, test_id, outcome, detail, duration_ms) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, o := range report.Outcomes {
		outcome := "fail"
		switch {
		case o.Skipped:
			outcome = "skip"
		case o.Passed:
			outcome = "pass"
		}
		if _, err := stmt.Exec(runID, o.ID, outcome, o.Detail, int64(o.Duration/time.Millisecond)); err != nil {
			return 0, err
		}
	}
	return runID, tx.Commit()
}

// LastOutcomes returns the most recent recorded outcome per test id.
func (s *ResultStore) LastOutcomes() (map[string]string, error) {
	rows, err := s.db.Query(`
		SELECT r.test_id, r.outcome
		FROM results r
		JOIN (SELECT test_id, MAX(run_id) AS run_id FROM results GROUP BY test_id) latest
		ON r.test_id = latest.test_id AND r.run_id = latest.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, outcome string
		if err := rows.Scan(&id, &outcome); err != nil {
			return nil, err
		}
		out[id] = outcome
	}
	return out, rows.Err()
}

func (s *ResultStore) Close() error { return s.db.Close() }
