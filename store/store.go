// Package store keeps run history in a SQLite database: one row per run,
// the registers of every step and the outcome of every hint.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/hintbridge/hint"
	"github.com/chazu/hintbridge/vm"
	"github.com/chazu/hintbridge/wire"
)

var log = commonlog.GetLogger("hintbridge.store")

// ErrRunNotFound indicates the requested run doesn't exist
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	program  TEXT NOT NULL,
	started  INTEGER NOT NULL,
	finished INTEGER,
	steps    INTEGER NOT NULL DEFAULT 0,
	error    TEXT
);
CREATE TABLE IF NOT EXISTS steps (
	run_id    INTEGER NOT NULL REFERENCES runs(id),
	step      INTEGER NOT NULL,
	pc        INTEGER NOT NULL,
	registers BLOB NOT NULL,
	PRIMARY KEY (run_id, step)
);
CREATE TABLE IF NOT EXISTS hints (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	seq      INTEGER NOT NULL,
	step     INTEGER NOT NULL,
	pc       INTEGER NOT NULL,
	code     TEXT NOT NULL,
	native   INTEGER NOT NULL,
	duration INTEGER NOT NULL,
	error    TEXT,
	PRIMARY KEY (run_id, seq)
);
`

// Store is a run history database.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunInfo summarizes one run.
type RunInfo struct {
	ID       int64
	Program  string
	Started  time.Time
	Finished time.Time // zero while running
	Steps    int
	Error    string
}

// HintRecord is one executed hint.
type HintRecord struct {
	Step     int
	Pc       int
	Code     string
	Native   bool
	Duration time.Duration
	Error    string
}

// Run records the history of one run. It implements the runner's Recorder.
type Run struct {
	ID    int64
	store *Store
	seq   int
}

// BeginRun inserts a new run for the named program.
func (s *Store) BeginRun(programName string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("INSERT INTO runs (program, started) VALUES (?, ?)", programName, time.Now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	log.Debugf("run %d started for %s", id, programName)
	return &Run{ID: id, store: s}, nil
}

// RecordStep stores the registers before step.
func (r *Run) RecordStep(step int, regs vm.RunContext) error {
	blob, err := wire.Marshal(vm.TraceEntry{Pc: regs.Pc, Ap: regs.Ap, Fp: regs.Fp})
	if err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err = r.store.db.Exec(
		"INSERT OR REPLACE INTO steps (run_id, step, pc, registers) VALUES (?, ?, ?, ?)",
		r.ID, step, regs.Pc.Offset, blob,
	)
	if err != nil {
		return fmt.Errorf("saving step: %w", err)
	}
	return nil
}

// RecordHint stores the outcome of a hint executed during step.
func (r *Run) RecordHint(step int, ev hint.HintEvent) error {
	var errText sql.NullString
	if ev.Err != nil {
		errText = sql.NullString{String: ev.Err.Error(), Valid: true}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err := r.store.db.Exec(
		"INSERT INTO hints (run_id, seq, step, pc, code, native, duration, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.seq, step, ev.Pc, ev.Code, ev.Native, int64(ev.Duration), errText,
	)
	if err != nil {
		return fmt.Errorf("saving hint: %w", err)
	}
	r.seq++
	return nil
}

// Finish marks the run finished after steps instructions. A non-nil runErr
// is stored as the run's error.
func (r *Run) Finish(steps int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	_, err := r.store.db.Exec(
		"UPDATE runs SET finished = ?, steps = ?, error = ? WHERE id = ?",
		time.Now().UnixNano(), steps, errText, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// Run returns the summary of one run.
func (s *Store) Run(id int64) (RunInfo, error) {
	row := s.db.QueryRow("SELECT id, program, started, finished, steps, error FROM runs WHERE id = ?", id)
	info, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, ErrRunNotFound
	}
	return info, err
}

// Runs lists every run, newest first.
func (s *Store) Runs() ([]RunInfo, error) {
	rows, err := s.db.Query("SELECT id, program, started, finished, steps, error FROM runs ORDER BY id DESC")
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		info, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Steps returns the recorded registers of a run in step order.
func (s *Store) Steps(runID int64) ([]vm.TraceEntry, error) {
	rows, err := s.db.Query("SELECT registers FROM steps WHERE run_id = ? ORDER BY step", runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var out []vm.TraceEntry
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var e vm.TraceEntry
		if err := wire.Unmarshal(blob, &e); err != nil {
			return nil, fmt.Errorf("decoding step: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Hints returns the recorded hints of a run in execution order.
func (s *Store) Hints(runID int64) ([]HintRecord, error) {
	rows, err := s.db.Query("SELECT step, pc, code, native, duration, error FROM hints WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, fmt.Errorf("querying hints: %w", err)
	}
	defer rows.Close()

	var out []HintRecord
	for rows.Next() {
		var (
			h       HintRecord
			dur     int64
			errText sql.NullString
		)
		if err := rows.Scan(&h.Step, &h.Pc, &h.Code, &h.Native, &dur, &errText); err != nil {
			return nil, err
		}
		h.Duration = time.Duration(dur)
		h.Error = errText.String
		out = append(out, h)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunInfo, error) {
	var (
		info     RunInfo
		started  int64
		finished sql.NullInt64
		errText  sql.NullString
	)
	if err := row.Scan(&info.ID, &info.Program, &started, &finished, &info.Steps, &errText); err != nil {
		return RunInfo{}, err
	}
	info.Started = time.Unix(0, started)
	if finished.Valid {
		info.Finished = time.Unix(0, finished.Int64)
	}
	info.Error = errText.String
	return info, nil
}
