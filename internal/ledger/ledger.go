// Package ledger records runs, search trials and resistance reports in SQLite
// so results can be compared across runs.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/evaluate"
	"github.com/eldadp100/Towards-Deep-Learning-Models-Resistant-to-Adversarial-Attacks-Implementation/internal/hyper"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	seed         INTEGER NOT NULL,
	config_json  TEXT,
	status       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT
);

CREATE TABLE IF NOT EXISTS trials (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	experiment   TEXT NOT NULL,
	phase        TEXT NOT NULL,
	trial_index  INTEGER NOT NULL,
	params_json  TEXT NOT NULL,
	score        REAL,
	epochs       INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS results (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	experiment   TEXT NOT NULL,
	report_json  TEXT NOT NULL,
	loaded       INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS trials_run ON trials(run_id, experiment);
CREATE INDEX IF NOT EXISTS results_experiment ON results(experiment);
`

// Run statuses.
const (
	StatusRunning  = "running"
	StatusDone     = "done"
	StatusFailed   = "failed"
	StatusCanceled = "canceled"
)

// Run is one invocation of the experiment driver.
type Run struct {
	ID         string
	Seed       uint64
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Trial is one evaluated grid cell.
type Trial struct {
	RunID      string
	Experiment string
	Phase      string // "train" or "attack:<name>"
	Index      int
	Params     hyper.Set
	Score      float64 // NaN when undefined
	Epochs     int
	Err        string
	CreatedAt  time.Time
}

// Result is the resistance report of one experiment.
type Result struct {
	RunID      string
	Experiment string
	Report     evaluate.Report
	Loaded     bool // report came from a checkpoint
	CreatedAt  time.Time
}

// Ledger is a SQLite-backed run history.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// StartRun records a new run and returns its id.
func (l *Ledger) StartRun(seed uint64, config any) (string, error) {
	cfg, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	id := uuid.New().String()
	_, err = l.db.Exec(
		`INSERT INTO runs (run_id, seed, config_json, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, int64(seed), string(cfg), StatusRunning, l.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun sets the final status of a run.
func (l *Ledger) FinishRun(runID, status string) error {
	res, err := l.db.Exec(
		`UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		status, l.now().Format(time.RFC3339Nano), runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordTrial stores one grid cell outcome.
func (l *Ledger) RecordTrial(t Trial) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO trials (run_id, experiment, phase, trial_index, params_json, score, epochs, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Experiment, t.Phase, t.Index, string(params), nullFloat(t.Score), t.Epochs,
		nullString(t.Err), l.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

// RecordResult stores an experiment's report.
func (l *Ledger) RecordResult(r Result) error {
	report, err := json.Marshal(r.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = l.db.Exec(
		`INSERT INTO results (run_id, experiment, report_json, loaded, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.RunID, r.Experiment, string(report), r.Loaded, l.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Runs returns the most recent runs first. limit <= 0 returns all.
func (l *Ledger) Runs(limit int) ([]Run, error) {
	query := `SELECT run_id, seed, status, started_at, finished_at FROM runs ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			seed     int64
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &seed, &r.Status, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Seed = uint64(seed)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Trials returns a run's trials in insertion order.
func (l *Ledger) Trials(runID string) ([]Trial, error) {
	rows, err := l.db.Query(
		`SELECT run_id, experiment, phase, trial_index, params_json, score, epochs, error, created_at
		 FROM trials WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var trials []Trial
	for rows.Next() {
		var (
			t       Trial
			params  string
			score   sql.NullFloat64
			errText sql.NullString
			created string
		)
		if err := rows.Scan(&t.RunID, &t.Experiment, &t.Phase, &t.Index, &params, &score, &t.Epochs, &errText, &created); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
			return nil, fmt.Errorf("trial params: %w", err)
		}
		t.Score = math.NaN()
		if score.Valid {
			t.Score = score.Float64
		}
		t.Err = errText.String
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// Results returns the reports of an experiment, newest first. An empty
// experiment name returns every report.
func (l *Ledger) Results(experiment string) ([]Result, error) {
	query := `SELECT run_id, experiment, report_json, loaded, created_at FROM results`
	var args []any
	if experiment != "" {
		query += ` WHERE experiment = ?`
		args = append(args, experiment)
	}
	query += ` ORDER BY id DESC`

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r       Result
			report  string
			created string
		)
		if err := rows.Scan(&r.RunID, &r.Experiment, &report, &r.Loaded, &created); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(report), &r.Report); err != nil {
			return nil, fmt.Errorf("result report: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
