// Package record stores every simulated access in a SQLite database.
package record

import (
	"database/sql"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/csim/cache"
	"github.com/sarchlab/csim/replay"
)

// DefaultBatchSize is the number of access rows buffered before a flush.
const DefaultBatchSize = 10000

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	set_bits   INTEGER NOT NULL,
	ways       INTEGER NOT NULL,
	block_bits INTEGER NOT NULL,
	trace      TEXT NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 0,
	misses     INTEGER NOT NULL DEFAULT 0,
	evictions  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS accesses (
	run_id  TEXT NOT NULL,
	seq     INTEGER NOT NULL,
	step    INTEGER NOT NULL,
	op      TEXT NOT NULL,
	address INTEGER NOT NULL,
	size    INTEGER NOT NULL,
	outcome TEXT NOT NULL
);`

// Run identifies the simulation being recorded.
type Run struct {
	// ID names the run. A fresh xid is used when empty.
	ID       string
	Geometry cache.Geometry
	Trace    string
}

type accessRow struct {
	seq     uint64
	step    int
	op      string
	address uint64
	size    uint32
	outcome string
}

// Recorder is a replay observer that writes accesses to SQLite.
type Recorder struct {
	db        *sql.DB
	run       Run
	batchSize int

	pending []accessRow
	rows    uint64
	err     error
	closed  bool
}

// New opens (or creates) the database at path and registers the run.
func New(path string, run Run) (*Recorder, error) {
	if run.ID == "" {
		run.ID = xid.New().String()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create record tables in %s: %w", path, err)
	}

	_, err = db.Exec(
		`INSERT INTO runs (run_id, set_bits, ways, block_bits, trace) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Geometry.SetBits, run.Geometry.Ways, run.Geometry.BlockBits, run.Trace,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to register run %s: %w", run.ID, err)
	}

	r := &Recorder{
		db:        db,
		run:       run,
		batchSize: DefaultBatchSize,
	}

	atexit.Register(func() { _ = r.Close() })

	return r, nil
}

// RunID returns the ID of the recorded run.
func (r *Recorder) RunID() string {
	return r.run.ID
}

// SetBatchSize changes how many rows are buffered before a flush.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.batchSize = n
}

// Rows returns the number of access rows accepted so far.
func (r *Recorder) Rows() uint64 {
	return r.rows
}

// Observe buffers one row per cache access of the event.
func (r *Recorder) Observe(event replay.Event) {
	if r.err != nil || r.closed {
		return
	}

	for i, o := range event.Outcomes {
		r.pending = append(r.pending, accessRow{
			seq:     event.Seq,
			step:    i,
			op:      event.Record.Op.String(),
			address: event.Record.Address,
			size:    event.Record.Size,
			outcome: o.String(),
		})
		r.rows++
	}

	if len(r.pending) >= r.batchSize {
		r.err = r.Flush()
	}
}

// Flush writes the buffered rows in a single transaction.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO accesses (run_id, seq, step, op, address, size, outcome) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare access insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range r.pending {
		// SQLite integers are signed; addresses keep their bit pattern.
		_, err := stmt.Exec(r.run.ID, row.seq, row.step, row.op, int64(row.address), row.size, row.outcome)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert access %d: %w", row.seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accesses: %w", err)
	}

	r.pending = r.pending[:0]

	return nil
}

// FinishRun flushes pending rows and stores the final statistics of the run.
func (r *Recorder) FinishRun(stats cache.Statistics) error {
	if r.err != nil {
		return r.err
	}
	if err := r.Flush(); err != nil {
		return err
	}

	_, err := r.db.Exec(
		`UPDATE runs SET hits = ?, misses = ?, evictions = ? WHERE run_id = ?`,
		stats.Hits, stats.Misses, stats.Evictions, r.run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to store statistics of run %s: %w", r.run.ID, err)
	}

	return nil
}

// Err returns the first error hit while flushing in Observe.
func (r *Recorder) Err() error {
	return r.err
}

// Close flushes pending rows and closes the database. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	flushErr := r.Flush()
	closeErr := r.db.Close()

	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close record database: %w", closeErr)
	}
	return nil
}
