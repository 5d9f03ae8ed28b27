package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// MemoryStore is the default EventStore: an in-process, mutex-guarded
// event map. It is always available and requires no external dependency,
// making it the zero-value-friendly default for a Relay/Pool that doesn't
// configure a Store.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*nostr.Event
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*nostr.Event)}
}

func (m *MemoryStore) SaveEvent(ctx context.Context, evt *nostr.Event) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.events[evt.ID]; ok && existing.CreatedAt >= evt.CreatedAt {
		return Rejected, nil
	}
	m.events[evt.ID] = evt
	return Saved, nil
}

func (m *MemoryStore) HasEvent(ctx context.Context, id string) (PresenceResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.events[id]; ok {
		return PresenceSaved, nil
	}
	return PresenceNotExistent, nil
}

func (m *MemoryStore) QueryEvents(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*nostr.Event, 0)
	for _, evt := range m.events {
		if filter.Matches(evt) {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountEvents(ctx context.Context, filter nostr.Filter) (int64, error) {
	events, err := m.QueryEvents(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(events)), nil
}

func (m *MemoryStore) QueryForReconciliation(ctx context.Context, filter nostr.Filter) ([]Item, error) {
	events, err := m.QueryEvents(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(events))
	for _, evt := range events {
		items = append(items, Item{ID: evt.ID, CreatedAt: evt.CreatedAt})
	}
	return items, nil
}

func (m *MemoryStore) DeleteEvents(ctx context.Context, filter nostr.Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, evt := range m.events {
		if filter.Matches(evt) {
			delete(m.events, id)
		}
	}
	return nil
}

func (m *MemoryStore) Wipe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string]*nostr.Event)
	return nil
}
