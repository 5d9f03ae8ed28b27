// Package store defines the EventStore capability interface spec.md §6
// describes ("a store capability is supplied") and ships three concrete
// implementations: an in-process MemoryStore, an EventstoreAdapter wrapping
// any github.com/fiatjaf/eventstore backend, and a SQLiteStore.
//
// The SDK itself is stateless; a store is only consulted by pkg/negentropy
// (to compute local reconciliation items) and, optionally, by an
// application that wants fetch_events results persisted across runs.
package store

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// SaveResult reports the outcome of SaveEvent, per spec.md §6.
type SaveResult int

const (
	Saved SaveResult = iota
	Rejected
)

// PresenceResult reports the outcome of HasEvent, per spec.md §6.
type PresenceResult int

const (
	PresenceSaved PresenceResult = iota
	PresenceDeleted
	PresenceNotExistent
)

// Item is the (id, created_at) pair pkg/negentropy reconciles over,
// per spec.md §4.7 ("local (event_id, created_at) items").
type Item struct {
	ID        string
	CreatedAt nostr.Timestamp
}

// EventStore is the pluggable persistence capability of spec.md §6. It is
// a capability interface (spec.md §9: "interfaces when the set is open").
type EventStore interface {
	SaveEvent(ctx context.Context, evt *nostr.Event) (SaveResult, error)
	HasEvent(ctx context.Context, id string) (PresenceResult, error)
	QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	CountEvents(ctx context.Context, filter nostr.Filter) (int64, error)
	QueryForReconciliation(ctx context.Context, filter nostr.Filter) ([]Item, error)
	DeleteEvents(ctx context.Context, filter nostr.Filter) error
	Wipe(ctx context.Context) error
}
