// Package gossip implements the per-author relay-preference router of
// spec.md §4.8: it ingests kind-10002 (NIP-65) and kind-10050 (NIP-17/NIP-65
// DM inbox) relay-list events and uses them to pick which relays to read
// from or write to for a given author.
//
// Grounded on internal/nostr/discovery.go and internal/nostr/relay_hints.go
// from the original nophr tree (GetOutboxRelays, GetInboxRelays,
// ParseRelayHints, BootstrapFromSeeds — see DESIGN.md), generalized from
// "operator's own relay list" (a single identity) to "per-author relay list
// for every author referenced in any filter or published event," and
// extended to also track kind-10050 InboxRelays, which the teacher does
// not need but spec.md §3/§4.8 requires.
package gossip

import (
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// DefaultPerAuthorCap is the per-list entry cap spec.md §3 names ("default
// 3 read, 3 write, 3 inbox"). Eviction is not required; the store bounds
// entries per author, not globally.
const DefaultPerAuthorCap = 3

// RelayList is one author's NIP-65 read/write relay set.
type RelayList struct {
	Read      []relayurl.RelayURL
	Write     []relayurl.RelayURL
	CreatedAt nostr.Timestamp
	LastCheck time.Time
}

// InboxRelays is one author's NIP-17/NIP-65 DM inbox relay set (kind 10050).
type InboxRelays struct {
	Relays    []relayurl.RelayURL
	CreatedAt nostr.Timestamp
	LastCheck time.Time
}

// Store is the per-author gossip cache of spec.md §3 "Gossip store".
type Store struct {
	mu     sync.RWMutex
	lists  map[string]RelayList
	inbox  map[string]InboxRelays
	cap    int
}

// NewStore builds an empty Store capped at DefaultPerAuthorCap entries per
// list; pass a different cap via SetCap.
func NewStore() *Store {
	return &Store{
		lists: make(map[string]RelayList),
		inbox: make(map[string]InboxRelays),
		cap:   DefaultPerAuthorCap,
	}
}

// SetCap overrides the per-author, per-list entry cap.
func (s *Store) SetCap(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cap = n
}

// UpdateRelayList ingests a kind-10002 event's "r" tags for its author,
// overwriting the prior entry only when created_at is newer, per spec.md
// §4.8 "Update".
func (s *Store) UpdateRelayList(evt *nostr.Event) {
	if evt.Kind != 10002 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.lists[evt.PubKey]; ok && existing.CreatedAt >= evt.CreatedAt {
		existing.LastCheck = time.Now()
		s.lists[evt.PubKey] = existing
		return
	}

	read, write := parseRelayListTags(evt.Tags)
	n := s.cap
	s.lists[evt.PubKey] = RelayList{
		Read:      capURLs(read, n),
		Write:     capURLs(write, n),
		CreatedAt: evt.CreatedAt,
		LastCheck: time.Now(),
	}
}

// UpdateInboxRelays ingests a kind-10050 event's "relay" tags for its
// author, per spec.md §4.8 "Update".
func (s *Store) UpdateInboxRelays(evt *nostr.Event) {
	if evt.Kind != 10050 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.inbox[evt.PubKey]; ok && existing.CreatedAt >= evt.CreatedAt {
		existing.LastCheck = time.Now()
		s.inbox[evt.PubKey] = existing
		return
	}

	var relays []relayurl.RelayURL
	for _, tag := range evt.Tags {
		if len(tag) >= 2 && tag[0] == "relay" {
			if u, err := relayurl.Parse(tag[1]); err == nil {
				relays = append(relays, u)
			}
		}
	}
	s.inbox[evt.PubKey] = InboxRelays{
		Relays:    capURLs(relays, s.cap),
		CreatedAt: evt.CreatedAt,
		LastCheck: time.Now(),
	}
}

// RelayList returns the stored list for pubkey, if any.
func (s *Store) RelayList(pubkey string) (RelayList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[pubkey]
	return l, ok
}

// Inbox returns the stored DM inbox relays for pubkey, if any.
func (s *Store) Inbox(pubkey string) (InboxRelays, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.inbox[pubkey]
	return l, ok
}

func parseRelayListTags(tags nostr.Tags) (read, write []relayurl.RelayURL) {
	for _, tag := range tags {
		if len(tag) < 2 || tag[0] != "r" {
			continue
		}
		u, err := relayurl.Parse(tag[1])
		if err != nil {
			continue
		}
		marker := ""
		if len(tag) >= 3 {
			marker = tag[2]
		}
		switch marker {
		case "read":
			read = append(read, u)
		case "write":
			write = append(write, u)
		default:
			read = append(read, u)
			write = append(write, u)
		}
	}
	return read, write
}

func capURLs(urls []relayurl.RelayURL, n int) []relayurl.RelayURL {
	if n <= 0 || len(urls) <= n {
		return urls
	}
	return urls[:n]
}
