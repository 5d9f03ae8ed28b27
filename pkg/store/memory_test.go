package store_test

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/pkg/store"
)

func signedEvent(t *testing.T, kind int, content string, createdAt nostr.Timestamp) *nostr.Event {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{PubKey: pk, Kind: kind, Content: content, CreatedAt: createdAt}
	require.NoError(t, evt.Sign(sk))
	return evt
}

func TestMemoryStoreSaveAndHasEvent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	evt := signedEvent(t, 1, "hello", 100)

	res, err := s.SaveEvent(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, store.Saved, res)

	presence, err := s.HasEvent(ctx, evt.ID)
	require.NoError(t, err)
	require.Equal(t, store.PresenceSaved, presence)

	presence, err = s.HasEvent(ctx, "nonexistent")
	require.NoError(t, err)
	require.Equal(t, store.PresenceNotExistent, presence)
}

func TestMemoryStoreSaveEventRejectsOlderDuplicate(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	evt := &nostr.Event{PubKey: pk, Kind: 0, Content: "v1", CreatedAt: 200}
	require.NoError(t, evt.Sign(sk))

	res, err := s.SaveEvent(ctx, evt)
	require.NoError(t, err)
	require.Equal(t, store.Saved, res)

	// Same ID, same or older created_at: rejected, not overwritten.
	stale := *evt
	res, err = s.SaveEvent(ctx, &stale)
	require.NoError(t, err)
	require.Equal(t, store.Rejected, res)
}

func TestMemoryStoreQueryEventsFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	e1 := signedEvent(t, 1, "first", 100)
	e2 := signedEvent(t, 1, "second", 300)
	e3 := signedEvent(t, 0, "metadata", 200)

	for _, e := range []*nostr.Event{e1, e2, e3} {
		_, err := s.SaveEvent(ctx, e)
		require.NoError(t, err)
	}

	events, err := s.QueryEvents(ctx, nostr.Filter{Kinds: []int{1}})
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Descending created_at.
	require.Equal(t, e2.ID, events[0].ID)
	require.Equal(t, e1.ID, events[1].ID)
}

func TestMemoryStoreQueryEventsRespectsLimit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	for i := 0; i < 5; i++ {
		evt := signedEvent(t, 1, "note", nostr.Timestamp(100+i))
		_, err := s.SaveEvent(ctx, evt)
		require.NoError(t, err)
	}

	events, err := s.QueryEvents(ctx, nostr.Filter{Kinds: []int{1}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func TestMemoryStoreCountEvents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	for i := 0; i < 3; i++ {
		evt := signedEvent(t, 1, "note", nostr.Timestamp(100+i))
		_, err := s.SaveEvent(ctx, evt)
		require.NoError(t, err)
	}

	count, err := s.CountEvents(ctx, nostr.Filter{Kinds: []int{1}})
	require.NoError(t, err)
	require.EqualValues(t, 3, count)
}

func TestMemoryStoreQueryForReconciliation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	evt := signedEvent(t, 1, "note", 150)
	_, err := s.SaveEvent(ctx, evt)
	require.NoError(t, err)

	items, err := s.QueryForReconciliation(ctx, nostr.Filter{Kinds: []int{1}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, evt.ID, items[0].ID)
	require.Equal(t, evt.CreatedAt, items[0].CreatedAt)
}

func TestMemoryStoreDeleteEvents(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	e1 := signedEvent(t, 1, "keep", 100)
	e2 := signedEvent(t, 5, "delete-me", 200)
	for _, e := range []*nostr.Event{e1, e2} {
		_, err := s.SaveEvent(ctx, e)
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteEvents(ctx, nostr.Filter{Kinds: []int{5}}))

	presence, err := s.HasEvent(ctx, e2.ID)
	require.NoError(t, err)
	require.Equal(t, store.PresenceNotExistent, presence)

	presence, err = s.HasEvent(ctx, e1.ID)
	require.NoError(t, err)
	require.Equal(t, store.PresenceSaved, presence)
}

func TestMemoryStoreWipe(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	evt := signedEvent(t, 1, "note", 100)
	_, err := s.SaveEvent(ctx, evt)
	require.NoError(t, err)

	require.NoError(t, s.Wipe(ctx))

	count, err := s.CountEvents(ctx, nostr.Filter{})
	require.NoError(t, err)
	require.Zero(t, count)
}
