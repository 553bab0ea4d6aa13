// Package audit persists policy-violation records so that bad-handle
// activity survives the offending process.
package audit

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/quark-os/quark/kernel"
)

var log = commonlog.GetLogger("quark.audit")

// recordQueueDepth bounds how many violation records may be waiting for the
// background writer before new ones are dropped.
const recordQueueDepth = 256

// Store is a SQLite-backed audit trail. It implements
// kernel.ViolationRecorder; records are handed to a background writer so the
// enforcement path never waits on storage.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex

	queue chan Record
	done  chan struct{}
}

// Open opens (creating if needed) the audit database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS violations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		process_koid INTEGER NOT NULL,
		process_name TEXT NOT NULL,
		violation TEXT NOT NULL,
		action TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating violations table: %w", err)
	}

	s := &Store{
		db:     db,
		dbPath: dbPath,
		queue:  make(chan Record, recordQueueDepth),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s, nil
}

// writeLoop drains queued violation records into the database.
func (s *Store) writeLoop() {
	defer close(s.done)
	for r := range s.queue {
		if err := s.Append(r); err != nil {
			log.Errorf("dropping violation record for %q: %s", r.ProcessName, err.Error())
		}
	}
}

// Close flushes queued records and closes the database connection.
func (s *Store) Close() error {
	if s.queue != nil {
		close(s.queue)
		<-s.done
		s.queue = nil
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record is one persisted violation.
type Record struct {
	ID          int64
	When        time.Time
	ProcessKoid kernel.Koid
	ProcessName string
	Violation   string
	Action      string
}

// Append persists one violation record.
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO violations (at, process_koid, process_name, violation, action) VALUES (?, ?, ?, ?, ?)",
		r.When.UTC().Format(time.RFC3339Nano), int64(r.ProcessKoid), r.ProcessName, r.Violation, r.Action,
	)
	if err != nil {
		return fmt.Errorf("appending violation: %w", err)
	}
	return nil
}

// RecordViolation implements kernel.ViolationRecorder. The record is queued
// for the background writer; if the queue is full it is logged and dropped,
// since the kernel's enforcement path must not block on storage.
func (s *Store) RecordViolation(rec kernel.ViolationRecord) {
	r := Record{
		When:        rec.When,
		ProcessKoid: rec.Process,
		ProcessName: rec.ProcessName,
		Violation:   rec.Violation.String(),
		Action:      rec.Action.String(),
	}
	select {
	case s.queue <- r:
	default:
		log.Errorf("audit queue full, dropping violation record for %q", rec.ProcessName)
	}
}

// Recent returns up to n most recent violations, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT id, at, process_koid, process_name, violation, action FROM violations ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("querying violations: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var at string
		var koid int64
		if err := rows.Scan(&r.ID, &at, &koid, &r.ProcessName, &r.Violation, &r.Action); err != nil {
			return nil, fmt.Errorf("scanning violation: %w", err)
		}
		r.ProcessKoid = kernel.Koid(koid)
		if t, parseErr := time.Parse(time.RFC3339Nano, at); parseErr == nil {
			r.When = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountForProcess returns how many violations a process has on record.
func (s *Store) CountForProcess(koid kernel.Koid) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM violations WHERE process_koid = ?", int64(koid)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting violations: %w", err)
	}
	return n, nil
}
