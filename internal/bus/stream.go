// Package bus is the append-only event stream decoupling memory writes
// from their asynchronous enrichment. Entries are immutable once
// appended and consumed through a named group with explicit
// acknowledgment: an entry stays claimable until acked, so delivery is
// at-least-once and consumers must be idempotent.
package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

const EventMemoryIngested = "MEMORY_INGESTED"

// MemoryIngestedPayload is the data carried by a MEMORY_INGESTED entry.
type MemoryIngestedPayload struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// Event is one stream entry. The id is append-assigned and monotonic.
type Event struct {
	ID        int64
	Event     string
	Data      json.RawMessage
	CreatedAt time.Time
}

type Stream struct {
	db *sql.DB
	mu sync.Mutex
}

func NewStream(db *sql.DB) (*Stream, error) {
	s := &Stream{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stream) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stream_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS stream_groups (
			name TEXT PRIMARY KEY,
			last_acked INTEGER NOT NULL DEFAULT 0,
			pending_id INTEGER,
			claimed_at TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init stream schema: %w", err)
		}
	}
	return nil
}

// Publish appends an entry. It is fire-and-forget: a publish failure
// must never fail the caller's primary write, so errors are logged and
// swallowed here.
func (s *Stream) Publish(ctx context.Context, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[bus] publish marshal error: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stream_events (event, data, created_at) VALUES (?, ?, ?)`,
		event, string(data), time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		log.Printf("[bus] publish error: %v", err)
		return
	}
	log.Printf("[bus] published %s", event)
}

// EnsureGroup creates the consumer group cursor if it does not exist.
// A fresh group starts at id 0 and replays the whole stream.
func (s *Stream) EnsureGroup(ctx context.Context, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO stream_groups (name, last_acked) VALUES (?, 0)`, group)
	if err != nil {
		return fmt.Errorf("ensure group %s: %w", group, err)
	}
	return nil
}

// ReadGroup delivers the next entry for the group, blocking up to
// block. A crashed consumer's unacked entry is redelivered first. The
// claim is conditional on no entry being pending, so at most one
// consumer holds an entry at a time. Returns (nil, nil) when the wait
// times out with nothing to deliver.
func (s *Stream) ReadGroup(ctx context.Context, group string, block time.Duration) (*Event, error) {
	deadline := time.Now().Add(block)
	for {
		ev, err := s.tryRead(ctx, group)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			return ev, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := 200 * time.Millisecond
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (s *Stream) tryRead(ctx context.Context, group string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read group begin: %w", err)
	}
	defer tx.Rollback()

	var lastAcked int64
	var pending sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT last_acked, pending_id FROM stream_groups WHERE name = ?`, group).
		Scan(&lastAcked, &pending)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("read group: unknown group %s", group)
	}
	if err != nil {
		return nil, fmt.Errorf("read group cursor: %w", err)
	}

	if pending.Valid {
		// Redeliver the unacked entry.
		ev, err := s.fetchEvent(ctx, tx, pending.Int64)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("read group commit: %w", err)
		}
		return ev, nil
	}

	var nextID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM stream_events WHERE id > ? ORDER BY id LIMIT 1`, lastAcked).
		Scan(&nextID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read group next: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE stream_groups SET pending_id = ?, claimed_at = ?
		WHERE name = ? AND pending_id IS NULL
	`, nextID, time.Now().UTC().Format("2006-01-02 15:04:05"), group)
	if err != nil {
		return nil, fmt.Errorf("read group claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("read group claim affected: %w", err)
	}
	if affected != 1 {
		return nil, nil
	}

	ev, err := s.fetchEvent(ctx, tx, nextID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("read group commit: %w", err)
	}
	return ev, nil
}

func (s *Stream) fetchEvent(ctx context.Context, tx *sql.Tx, id int64) (*Event, error) {
	var ev Event
	var data, createdAt string
	err := tx.QueryRowContext(ctx,
		`SELECT id, event, data, created_at FROM stream_events WHERE id = ?`, id).
		Scan(&ev.ID, &ev.Event, &data, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("fetch event %d: %w", id, err)
	}
	ev.Data = json.RawMessage(data)
	if t, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
		ev.CreatedAt = t
	}
	return &ev, nil
}

// Ack acknowledges the delivered entry, advancing the group cursor.
// Only the currently pending entry can be acked.
func (s *Stream) Ack(ctx context.Context, group string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE stream_groups SET last_acked = ?, pending_id = NULL, claimed_at = NULL
		WHERE name = ? AND pending_id = ?
	`, id, group, id)
	if err != nil {
		return fmt.Errorf("ack %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ack affected: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("ack %d: entry not pending for group %s", id, group)
	}
	return nil
}
