// Package recorder persists a bounded history of snapshots to SQLite for
// offline inspection without slowing the live pipeline.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"mediadash/protocol"

	_ "modernc.org/sqlite"
)

const (
	queueDepth = 64
	// trimEvery is how many inserts pass between history trims.
	trimEvery = 32
)

// Row is one recorded snapshot.
type Row struct {
	At       time.Time
	CPU      float64
	Mem      float64
	GPU      float64
	Title    string
	Artist   string
	Position int
	Duration int
	Playing  bool
}

// Recorder keeps at most maxRows snapshots in SQLite.
type Recorder struct {
	db      *sql.DB
	maxRows int
	queue   chan Row
	wg      sync.WaitGroup
	once    sync.Once

	written atomic.Uint64
	dropped atomic.Uint64
}

// NewRecorder opens (or creates) the SQLite database at path and ensures schema exists.
func NewRecorder(path string, maxRows int) (*Recorder, error) {
	if maxRows <= 0 {
		return nil, errors.New("recorder: max rows must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	if _, err := Preflight(path, 2*time.Second, log.Printf); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	r := &Recorder{
		db:      db,
		maxRows: maxRows,
		queue:   make(chan Row, queueDepth),
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS snapshot_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    observed_at INTEGER,
    cpu REAL,
    mem REAL,
    gpu REAL,
    title TEXT,
    artist TEXT,
    position INTEGER,
    duration INTEGER,
    playing INTEGER
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("recorder: schema: %w", err)
	}
	return nil
}

// Close flushes queued rows and closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
	return r.db.Close()
}

// Record queues the snapshot for insertion. It never blocks; when the
// writer falls behind the row is dropped.
func (r *Recorder) Record(at time.Time, s *protocol.Snapshot) {
	if r == nil || r.db == nil || s == nil {
		return
	}
	row := Row{At: at, CPU: s.CPU, Mem: s.Mem, GPU: s.GPU}
	if s.HasMedia {
		row.Title = s.Media.Title
		row.Artist = s.Media.Artist
		row.Position = s.Media.Position
		row.Duration = s.Media.Duration
		row.Playing = s.Media.Playing
	}
	select {
	case r.queue <- row:
	default:
		r.dropped.Add(1)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()
	pending := 0
	for row := range r.queue {
		if err := r.insert(row); err != nil {
			log.Printf("Recorder: failed to insert snapshot: %v", err)
			continue
		}
		r.written.Add(1)
		pending++
		if pending >= trimEvery {
			pending = 0
			r.trim()
		}
	}
	if pending > 0 {
		r.trim()
	}
}

func (r *Recorder) insert(row Row) error {
	_, err := r.db.Exec(`
INSERT INTO snapshot_records (
    observed_at, cpu, mem, gpu, title, artist, position, duration, playing
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.At.UTC().UnixMilli(),
		row.CPU,
		row.Mem,
		row.GPU,
		row.Title,
		row.Artist,
		row.Position,
		row.Duration,
		boolToInt(row.Playing),
	)
	return err
}

func (r *Recorder) trim() {
	_, err := r.db.Exec(`DELETE FROM snapshot_records WHERE id <= (SELECT MAX(id) FROM snapshot_records) - ?`, r.maxRows)
	if err != nil {
		log.Printf("Recorder: trim failed: %v", err)
	}
}

// Recent returns up to limit rows, newest first.
func (r *Recorder) Recent(limit int) ([]Row, error) {
	if r == nil || r.db == nil || limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.Query(`
SELECT observed_at, cpu, mem, gpu, title, artist, position, duration, playing
FROM snapshot_records ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recorder: query: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var row Row
		var at int64
		var playing int
		if err := rows.Scan(&at, &row.CPU, &row.Mem, &row.GPU, &row.Title, &row.Artist, &row.Position, &row.Duration, &playing); err != nil {
			return nil, fmt.Errorf("recorder: scan: %w", err)
		}
		row.At = time.UnixMilli(at).UTC()
		row.Playing = playing != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

// Stats reports rows written and rows dropped because the writer lagged.
func (r *Recorder) Stats() (written, dropped uint64) {
	if r == nil {
		return 0, 0
	}
	return r.written.Load(), r.dropped.Load()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
