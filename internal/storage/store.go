// Package storage persists run results to an embedded SQLite database
// and exports histories for plotting.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/san-kum/beamsim/internal/beam"
	"github.com/san-kum/beamsim/internal/track"
)

// ErrRunNotFound reports a run id with no stored row.
var ErrRunNotFound = errors.New("beamsim: run not found")

// Run is the stored summary of one simulation pass.
type Run struct {
	ID        string
	Lattice   string
	From, To  int
	CreatedAt time.Time
	FinalPos  float64 // m
	FinalEk   float64 // reference kinetic energy, eV/u
	FinalPhis float64 // reference phase, rad
	Steps     int
	Warnings  int
}

// Store is a SQLite-backed run archive. Writes are serialized; reads go
// through database/sql's own pooling.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("beamsim: open store: %w", err)
	}
	s := &Store{db: db}
	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the runs and snapshots tables if absent.
func (s *Store) Init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		lattice TEXT NOT NULL,
		from_idx INTEGER NOT NULL,
		to_idx INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		final_pos REAL NOT NULL,
		final_energy REAL NOT NULL,
		final_phase REAL NOT NULL,
		steps INTEGER NOT NULL,
		warnings INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("beamsim: create runs table: %w", err)
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL REFERENCES runs(id),
		idx INTEGER NOT NULL,
		name TEXT NOT NULL,
		pos REAL NOT NULL,
		energy REAL NOT NULL,
		phase REAL NOT NULL,
		state BLOB NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`)
	if err != nil {
		return fmt.Errorf("beamsim: create snapshots table: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveRun stores the result summary and every history snapshot, returning
// the new run id.
func (s *Store) SaveRun(lattice string, from, to int, res *track.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.Exec(`INSERT INTO runs
		(id, lattice, from_idx, to_idx, created_at, final_pos, final_energy, final_phase, steps, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, lattice, from, to, time.Now().UnixNano(),
		res.Final.Pos, res.Final.Ref.IonEk, res.Final.Ref.Phis,
		res.Steps, len(res.Warnings))
	if err != nil {
		return "", fmt.Errorf("beamsim: insert run: %w", err)
	}

	for _, rec := range res.History {
		var blob []byte
		blob, err = json.Marshal(rec.State)
		if err != nil {
			return "", fmt.Errorf("beamsim: encode snapshot %d: %w", rec.Index, err)
		}
		_, err = tx.Exec(`INSERT INTO snapshots (run_id, idx, name, pos, energy, phase, state)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, rec.Index, rec.Name, rec.Pos, rec.State.Ref.IonEk, rec.State.Ref.Phis, blob)
		if err != nil {
			return "", fmt.Errorf("beamsim: insert snapshot %d: %w", rec.Index, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns every stored run, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT id, lattice, from_idx, to_idx, created_at,
		final_pos, final_energy, final_phase, steps, warnings
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("beamsim: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun returns one run's summary and its snapshots in element order.
func (s *Store) LoadRun(id string) (*Run, []track.Record, error) {
	row := s.db.QueryRow(`SELECT id, lattice, from_idx, to_idx, created_at,
		final_pos, final_energy, final_phase, steps, warnings
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.Query(`SELECT idx, name, pos, state FROM snapshots
		WHERE run_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("beamsim: load snapshots: %w", err)
	}
	defer rows.Close()

	var recs []track.Record
	for rows.Next() {
		var rec track.Record
		var blob []byte
		if err := rows.Scan(&rec.Index, &rec.Name, &rec.Pos, &blob); err != nil {
			return nil, nil, fmt.Errorf("beamsim: scan snapshot: %w", err)
		}
		rec.State = &beam.State{}
		if err := json.Unmarshal(blob, rec.State); err != nil {
			return nil, nil, fmt.Errorf("beamsim: decode snapshot %d: %w", rec.Index, err)
		}
		recs = append(recs, rec)
	}
	return &r, recs, rows.Err()
}

// DeleteRun removes a run and its snapshots.
func (s *Store) DeleteRun(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM snapshots WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("beamsim: delete snapshots: %w", err)
	}
	var res sql.Result
	res, err = tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("beamsim: delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("%w: %s", ErrRunNotFound, id)
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var nanos int64
	err := row.Scan(&r.ID, &r.Lattice, &r.From, &r.To, &nanos,
		&r.FinalPos, &r.FinalEk, &r.FinalPhis, &r.Steps, &r.Warnings)
	if err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(0, nanos)
	return r, nil
}
