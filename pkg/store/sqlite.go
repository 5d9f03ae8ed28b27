package store

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/nbd-wtf/go-nostr"
)

// SQLiteStore persists events to a SQLite database via jmoiron/sqlx and
// mattn/go-sqlite3, grounded on the teacher's own storage.go SQLite-backed
// persistence (internal/storage/storage.go in the original nophr tree, see
// DESIGN.md), generalized from "Khatru relay storage" into this SDK's own
// EventStore shape: one row per event, queried by decoding the stored JSON
// back into nostr.Event and filtering in Go rather than delegating to a
// relay framework's query planner.
type SQLiteStore struct {
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	pubkey TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	raw TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_pubkey ON events(pubkey);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
`

// NewSQLiteStore opens (creating if needed) a SQLite database at path and
// runs the schema migration.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveEvent(ctx context.Context, evt *nostr.Event) (SaveResult, error) {
	raw, err := sonic.Marshal(evt)
	if err != nil {
		return Rejected, fmt.Errorf("store: marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, pubkey, created_at, kind, raw) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		evt.ID, evt.PubKey, int64(evt.CreatedAt), evt.Kind, string(raw),
	)
	if err != nil {
		return Rejected, fmt.Errorf("store: insert event: %w", err)
	}
	return Saved, nil
}

func (s *SQLiteStore) HasEvent(ctx context.Context, id string) (PresenceResult, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM events WHERE id = ?`, id); err != nil {
		return PresenceNotExistent, fmt.Errorf("store: has event: %w", err)
	}
	if count > 0 {
		return PresenceSaved, nil
	}
	return PresenceNotExistent, nil
}

func (s *SQLiteStore) allMatching(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT raw FROM events ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []*nostr.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		var evt nostr.Event
		if err := sonic.UnmarshalString(raw, &evt); err != nil {
			continue
		}
		if filter.Matches(&evt) {
			out = append(out, &evt)
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return s.allMatching(ctx, filter)
}

func (s *SQLiteStore) CountEvents(ctx context.Context, filter nostr.Filter) (int64, error) {
	events, err := s.allMatching(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

func (s *SQLiteStore) QueryForReconciliation(ctx context.Context, filter nostr.Filter) ([]Item, error) {
	events, err := s.allMatching(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(events))
	for _, evt := range events {
		items = append(items, Item{ID: evt.ID, CreatedAt: evt.CreatedAt})
	}
	return items, nil
}

func (s *SQLiteStore) DeleteEvents(ctx context.Context, filter nostr.Filter) error {
	events, err := s.allMatching(ctx, filter)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete tx: %w", err)
	}
	defer tx.Rollback()
	for _, evt := range events {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, evt.ID); err != nil {
			return fmt.Errorf("store: delete event: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Wipe(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events`)
	if err != nil {
		return fmt.Errorf("store: wipe: %w", err)
	}
	return nil
}
