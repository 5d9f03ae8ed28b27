package gossip

import (
	"sort"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// Options configures a Router's per-author relay counts, per spec.md §4.8
// "Query" with its stated defaults.
type Options struct {
	ReadRelaysPerUser      int
	WriteRelaysPerUser     int
	HintRelaysPerUser      int
	MostUsedRelaysPerUser  int
	AllowedRelays          []relayurl.RelayURL // nil means "no restriction"
}

// DefaultOptions mirrors spec.md §4.8's defaults (3, 3, 1, 1).
func DefaultOptions() Options {
	return Options{
		ReadRelaysPerUser:     3,
		WriteRelaysPerUser:    3,
		HintRelaysPerUser:     1,
		MostUsedRelaysPerUser: 1,
	}
}

// Router maintains per-author read/write/inbox relay hints (via Store) and
// selects relays for a send or subscribe operation, per spec.md §4.8.
type Router struct {
	Store *Store
	Opts  Options

	mu    sync.Mutex
	usage map[relayurl.RelayURL]int64
}

// NewRouter builds a Router over an existing Store.
func NewRouter(store *Store, opts Options) *Router {
	return &Router{Store: store, Opts: opts, usage: make(map[relayurl.RelayURL]int64)}
}

// IngestEvent feeds a kind-10002 or kind-10050 event to the backing Store;
// any other kind is ignored (spec.md §4.8 "Update").
func (r *Router) IngestEvent(evt *nostr.Event) {
	switch evt.Kind {
	case 10002:
		r.Store.UpdateRelayList(evt)
	case 10050:
		r.Store.UpdateInboxRelays(evt)
	}
}

// RecordUsage tracks that a read/write succeeded against url, feeding the
// most_used_relays_per_user augmentation of spec.md §4.8 step 2.
func (r *Router) RecordUsage(url relayurl.RelayURL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage[url]++
}

func (r *Router) mostUsed(n int) []relayurl.RelayURL {
	r.mu.Lock()
	defer r.mu.Unlock()
	type kv struct {
		url   relayurl.RelayURL
		count int64
	}
	kvs := make([]kv, 0, len(r.usage))
	for u, c := range r.usage {
		kvs = append(kvs, kv{u, c})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].count > kvs[j].count })
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]relayurl.RelayURL, 0, len(kvs))
	for _, kv := range kvs {
		out = append(out, kv.url)
	}
	return out
}

// ReadRelaysFor returns, for a single author, up to ReadRelaysPerUser read
// relays plus HintRelaysPerUser/MostUsedRelaysPerUser augmentation, subject
// to AllowedRelays filtering, per spec.md §4.8 steps 2-3. ok is false when
// the Router has no entry for pubkey, signaling the caller to fall back to
// capability-based selection (spec.md §4.8 step 4).
func (r *Router) ReadRelaysFor(pubkey string, hintURLs []relayurl.RelayURL) (urls []relayurl.RelayURL, ok bool) {
	list, found := r.Store.RelayList(pubkey)
	if !found {
		return nil, false
	}
	urls = capURLs(list.Read, r.Opts.ReadRelaysPerUser)
	urls = append(urls, capURLs(hintURLs, r.Opts.HintRelaysPerUser)...)
	urls = append(urls, r.mostUsed(r.Opts.MostUsedRelaysPerUser)...)
	return r.filterAllowed(dedupeURLs(urls)), true
}

// WriteRelaysFor returns, for a single author, up to WriteRelaysPerUser
// write relays, subject to AllowedRelays filtering. ok is false when the
// Router has no entry, signaling capability-based fallback.
func (r *Router) WriteRelaysFor(pubkey string) (urls []relayurl.RelayURL, ok bool) {
	list, found := r.Store.RelayList(pubkey)
	if !found {
		return nil, false
	}
	return r.filterAllowed(capURLs(list.Write, r.Opts.WriteRelaysPerUser)), true
}

// InboxRelaysFor returns the DM inbox relays for pubkey (kind 10050),
// subject to AllowedRelays filtering.
func (r *Router) InboxRelaysFor(pubkey string) (urls []relayurl.RelayURL, ok bool) {
	inbox, found := r.Store.Inbox(pubkey)
	if !found {
		return nil, false
	}
	return r.filterAllowed(inbox.Relays), true
}

// AuthorsInFilter extracts the author set a filter or event targets, per
// spec.md §4.8 step 1.
func AuthorsInFilter(filter nostr.Filter) []string {
	return filter.Authors
}

// HintRelaysInFilter extracts relay hints from a filter's "e"-tag-adjacent
// #e values when present; most filters carry none, in which case the
// caller's hint list is empty and HintRelaysPerUser contributes nothing.
func HintRelaysInFilter(filter nostr.Filter) []relayurl.RelayURL {
	var out []relayurl.RelayURL
	for _, raw := range filter.Tags["e"] {
		if u, err := relayurl.Parse(raw); err == nil {
			out = append(out, u)
		}
	}
	return out
}

func (r *Router) filterAllowed(urls []relayurl.RelayURL) []relayurl.RelayURL {
	if len(r.Opts.AllowedRelays) == 0 {
		return urls
	}
	allowed := make(map[relayurl.RelayURL]struct{}, len(r.Opts.AllowedRelays))
	for _, u := range r.Opts.AllowedRelays {
		allowed[u] = struct{}{}
	}
	out := urls[:0:0]
	for _, u := range urls {
		if _, ok := allowed[u]; ok {
			out = append(out, u)
		}
	}
	return out
}

func dedupeURLs(urls []relayurl.RelayURL) []relayurl.RelayURL {
	seen := make(map[relayurl.RelayURL]struct{}, len(urls))
	out := urls[:0:0]
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
