package gossip_test

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/pkg/gossip"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

func relayListEvent(t *testing.T, pubkey string, createdAt nostr.Timestamp, tags nostr.Tags) *nostr.Event {
	t.Helper()
	return &nostr.Event{PubKey: pubkey, Kind: 10002, CreatedAt: createdAt, Tags: tags}
}

func TestStoreUpdateRelayListReadWriteSplit(t *testing.T) {
	s := gossip.NewStore()
	pk := "author1"

	evt := relayListEvent(t, pk, 100, nostr.Tags{
		{"r", "wss://r1.example"},
		{"r", "wss://w1.example", "write"},
		{"r", "wss://r2.example", "read"},
	})
	s.UpdateRelayList(evt)

	list, ok := s.RelayList(pk)
	require.True(t, ok)
	require.Len(t, list.Read, 2) // unmarked + explicit read
	require.Len(t, list.Write, 2) // unmarked + explicit write
}

func TestStoreUpdateRelayListIgnoresOlderEvent(t *testing.T) {
	s := gossip.NewStore()
	pk := "author1"

	s.UpdateRelayList(relayListEvent(t, pk, 200, nostr.Tags{{"r", "wss://new.example"}}))
	s.UpdateRelayList(relayListEvent(t, pk, 100, nostr.Tags{{"r", "wss://old.example"}}))

	list, ok := s.RelayList(pk)
	require.True(t, ok)
	require.Len(t, list.Read, 1)
	require.Equal(t, "wss://new.example", string(list.Read[0]))
}

func TestStoreUpdateRelayListCapsEntries(t *testing.T) {
	s := gossip.NewStore()
	s.SetCap(2)
	pk := "author1"

	s.UpdateRelayList(relayListEvent(t, pk, 100, nostr.Tags{
		{"r", "wss://a.example"},
		{"r", "wss://b.example"},
		{"r", "wss://c.example"},
	}))

	list, ok := s.RelayList(pk)
	require.True(t, ok)
	require.Len(t, list.Read, 2)
}

func TestStoreUpdateInboxRelays(t *testing.T) {
	s := gossip.NewStore()
	pk := "author1"

	evt := &nostr.Event{PubKey: pk, Kind: 10050, CreatedAt: 100, Tags: nostr.Tags{
		{"relay", "wss://inbox.example"},
	}}
	s.UpdateInboxRelays(evt)

	inbox, ok := s.Inbox(pk)
	require.True(t, ok)
	require.Len(t, inbox.Relays, 1)
	require.Equal(t, "wss://inbox.example", string(inbox.Relays[0]))
}

func TestStoreIgnoresWrongKind(t *testing.T) {
	s := gossip.NewStore()
	s.UpdateRelayList(&nostr.Event{PubKey: "x", Kind: 1, CreatedAt: 100})
	_, ok := s.RelayList("x")
	require.False(t, ok)
}

func TestRouterReadRelaysForFallsBackWhenUnknown(t *testing.T) {
	router := gossip.NewRouter(gossip.NewStore(), gossip.DefaultOptions())
	_, ok := router.ReadRelaysFor("unknown-author", nil)
	require.False(t, ok)
}

func TestRouterReadRelaysForCapsAndDedupes(t *testing.T) {
	store := gossip.NewStore()
	pk := "author1"
	store.UpdateRelayList(relayListEvent(t, pk, 100, nostr.Tags{
		{"r", "wss://r1.example"},
		{"r", "wss://r2.example"},
		{"r", "wss://r3.example"},
		{"r", "wss://r4.example"},
	}))

	opts := gossip.DefaultOptions()
	opts.HintRelaysPerUser = 0
	opts.MostUsedRelaysPerUser = 0
	router := gossip.NewRouter(store, opts)

	urls, ok := router.ReadRelaysFor(pk, nil)
	require.True(t, ok)
	require.Len(t, urls, 3) // capped by ReadRelaysPerUser default of 3
}

func TestRouterWriteRelaysForRespectsAllowedRelays(t *testing.T) {
	store := gossip.NewStore()
	pk := "author1"
	store.UpdateRelayList(relayListEvent(t, pk, 100, nostr.Tags{
		{"r", "wss://allowed.example", "write"},
		{"r", "wss://blocked.example", "write"},
	}))

	opts := gossip.DefaultOptions()
	opts.AllowedRelays = []relayurl.RelayURL{"wss://allowed.example"}
	router := gossip.NewRouter(store, opts)

	urls, ok := router.WriteRelaysFor(pk)
	require.True(t, ok)
	require.Len(t, urls, 1)
	require.Equal(t, "wss://allowed.example", string(urls[0]))
}

func TestRouterRecordUsageFeedsMostUsed(t *testing.T) {
	store := gossip.NewStore()
	pk := "author1"
	store.UpdateRelayList(relayListEvent(t, pk, 100, nostr.Tags{
		{"r", "wss://r1.example"},
	}))

	opts := gossip.DefaultOptions()
	opts.ReadRelaysPerUser = 0
	opts.HintRelaysPerUser = 0
	opts.MostUsedRelaysPerUser = 1
	router := gossip.NewRouter(store, opts)
	router.RecordUsage("wss://most-used.example")

	urls, ok := router.ReadRelaysFor(pk, nil)
	require.True(t, ok)
	require.Contains(t, urls, relayurl.RelayURL("wss://most-used.example"))
}

func TestAuthorsInFilter(t *testing.T) {
	authors := gossip.AuthorsInFilter(nostr.Filter{Authors: []string{"a", "b"}})
	require.Equal(t, []string{"a", "b"}, authors)
}
