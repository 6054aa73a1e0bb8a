package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store is a durable SQLite-backed trace log.
// Uses WAL mode so a live trace can be inspected while recording.
type Store struct {
	db *sql.DB
}

// Open creates or opens a trace database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to trace database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection
	// avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one event. Implements Recorder.
// Appends are idempotent on seq: re-recording an already-stored event is a
// silent no-op, so crash recovery can replay from the last checkpoint.
func (s *Store) Record(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_events
		(seq, kind, element, flag, value, property, channel, transition, transition_id, progress, reason, table_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		ev.Seq,
		string(ev.Kind),
		ev.Element,
		ev.Flag,
		ev.Value,
		ev.Property,
		ev.Channel,
		ev.Transition,
		ev.TransitionID,
		ev.Progress,
		ev.Reason,
		ev.TableHash,
	)
	if err != nil {
		return fmt.Errorf("record trace event seq %d: %w", ev.Seq, err)
	}
	return nil
}

// Events returns the full trace in seq order.
func (s *Store) Events(ctx context.Context) ([]Event, error) {
	return s.query(ctx, `
		SELECT seq, kind, element, flag, value, property, channel, transition, transition_id, progress, reason, table_hash
		FROM trace_events ORDER BY seq
	`)
}

// EventsFor returns one element's events in seq order.
func (s *Store) EventsFor(ctx context.Context, elementID string) ([]Event, error) {
	return s.query(ctx, `
		SELECT seq, kind, element, flag, value, property, channel, transition, transition_id, progress, reason, table_hash
		FROM trace_events WHERE element = ? ORDER BY seq
	`, elementID)
}

// LastSeq returns the highest recorded sequence number, or 0 for an empty
// trace. Used to resume the logical clock after a restart.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM trace_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("read last seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// TableHash returns the table hash the trace was recorded against, taken
// from the first event that carries one. Empty for an empty trace.
func (s *Store) TableHash(ctx context.Context) (string, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT table_hash FROM trace_events
		WHERE table_hash != '' ORDER BY seq LIMIT 1
	`).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read table hash: %w", err)
	}
	return hash.String, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var kind string
		if err := rows.Scan(
			&ev.Seq, &kind, &ev.Element, &ev.Flag, &ev.Value,
			&ev.Property, &ev.Channel, &ev.Transition, &ev.TransitionID,
			&ev.Progress, &ev.Reason, &ev.TableHash,
		); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		ev.Kind = Kind(kind)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace events: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Memory is an in-process Recorder for tests, the scenario harness, and
// replay verification.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record appends one event. Implements Recorder. Never fails.
func (m *Memory) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded events in record order.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Reset discards all recorded events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
