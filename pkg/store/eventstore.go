package store

import (
	"context"
	"fmt"

	"github.com/fiatjaf/eventstore"
	"github.com/nbd-wtf/go-nostr"
)

// EventstoreAdapter wraps any github.com/fiatjaf/eventstore backend (LMDB,
// Badger, Postgres, SQLite, ...) as an EventStore, grounded on the teacher's
// own NegentropyStore adapter shape (internal/sync/negentropy.go in the
// original nophr tree, see DESIGN.md), generalized from "khatru storage
// glue" into this SDK's own capability interface.
type EventstoreAdapter struct {
	backend eventstore.Store
}

// NewEventstoreAdapter wraps an already-initialized eventstore.Store.
func NewEventstoreAdapter(backend eventstore.Store) *EventstoreAdapter {
	return &EventstoreAdapter{backend: backend}
}

func (a *EventstoreAdapter) SaveEvent(ctx context.Context, evt *nostr.Event) (SaveResult, error) {
	if err := a.backend.SaveEvent(ctx, evt); err != nil {
		return Rejected, fmt.Errorf("store: eventstore save: %w", err)
	}
	return Saved, nil
}

func (a *EventstoreAdapter) HasEvent(ctx context.Context, id string) (PresenceResult, error) {
	ch, err := a.backend.QueryEvents(ctx, nostr.Filter{IDs: []string{id}, Limit: 1})
	if err != nil {
		return PresenceNotExistent, fmt.Errorf("store: eventstore query: %w", err)
	}
	for range ch {
		return PresenceSaved, nil
	}
	return PresenceNotExistent, nil
}

func (a *EventstoreAdapter) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	ch, err := a.backend.QueryEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("store: eventstore query: %w", err)
	}
	var out []*nostr.Event
	for evt := range ch {
		out = append(out, evt)
	}
	return out, nil
}

func (a *EventstoreAdapter) CountEvents(ctx context.Context, filter nostr.Filter) (int64, error) {
	events, err := a.QueryEvents(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

func (a *EventstoreAdapter) QueryForReconciliation(ctx context.Context, filter nostr.Filter) ([]Item, error) {
	events, err := a.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(events))
	for _, evt := range events {
		items = append(items, Item{ID: evt.ID, CreatedAt: evt.CreatedAt})
	}
	return items, nil
}

func (a *EventstoreAdapter) DeleteEvents(ctx context.Context, filter nostr.Filter) error {
	events, err := a.QueryEvents(ctx, filter)
	if err != nil {
		return err
	}
	for _, evt := range events {
		if err := a.backend.DeleteEvent(ctx, evt); err != nil {
			return fmt.Errorf("store: eventstore delete: %w", err)
		}
	}
	return nil
}

func (a *EventstoreAdapter) Wipe(ctx context.Context) error {
	return a.DeleteEvents(ctx, nostr.Filter{})
}
