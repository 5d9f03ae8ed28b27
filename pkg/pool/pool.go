// Package pool implements the relay pool and gossip-aware fan-out/fan-in of
// spec.md §4.5/§4.6: a map of URL to Relay, broadcast selection by
// capability or explicit list, merged and deduplicated event streams, and a
// single notification bus.
//
// Grounded on internal/sync/engine.go's worker-pool and channel-fan-in
// shape from the original nophr tree (eventWorker, aggregateChan/eventChan,
// eventCache dedup — see DESIGN.md), generalized from "one operator's sync
// engine" into "N relays, fanned in behind one pool."
package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/sandwichfarm/nostr-sdk/pkg/cache"
	"github.com/sandwichfarm/nostr-sdk/pkg/gossip"
	"github.com/sandwichfarm/nostr-sdk/pkg/log"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/store"
	"github.com/sandwichfarm/nostr-sdk/pkg/transport"
)

// Options configures a Pool. Most fields are shared defaults handed to
// every Relay the pool creates via AddRelay.
type Options struct {
	RelayOptions relay.Options
	Transport    transport.Options
	Signer       relay.Signer
	Store        store.EventStore

	// NotificationChannelSize sizes every subscriber channel returned by
	// Notifications, per spec.md §4.5.
	NotificationChannelSize int

	// Gossip enables the gossip router of spec.md §4.8. Nil disables it;
	// reads/writes then always use capability-based selection.
	Gossip *gossip.Options

	// Cache dedups event ids on the pool notification bus before they reach
	// any subscriber, per spec.md §2's RelayPool row ("merges and
	// deduplicates events"). Nil builds a default in-process LRU; set this
	// to a cache.Redis instance (see pkg/cache) when running several SDK
	// instances behind a shared relay pool that need deduplication to hold
	// across processes, not just within one.
	Cache cache.SeenCache
}

// DefaultOptions returns sane pool-wide defaults layered on
// relay.DefaultOptions.
func DefaultOptions() Options {
	return Options{
		RelayOptions:            relay.DefaultOptions(),
		NotificationChannelSize: 4096,
	}
}

// Pool owns one Relay per URL, shared state handles (signer, store, gossip
// router), and the notification bus, per spec.md §9: "pool owns relays;
// relays receive a cheap, clonable handle to pool-shared state at
// construction — no back-pointer to the pool itself."
type Pool struct {
	opts Options
	log  zerolog.Logger

	relays *xsync.MapOf[relayurl.RelayURL, *Entry]

	gossipRouter *gossip.Router
	seenCache    cache.SeenCache

	bus *bus

	subsMu sync.Mutex
	subs   map[string]*subscription

	mu       sync.Mutex
	shutdown bool
}

// Entry is what the pool stores per relay: the Relay itself plus the
// goroutine cancel function draining its notifications into the pool bus.
type Entry struct {
	Relay      *relay.Relay
	Caps       *stats.Capabilities
	forwardCtx context.Context
	cancel     context.CancelFunc
}

// New builds an empty Pool. Call AddRelay to populate it.
func New(opts Options) *Pool {
	if opts.NotificationChannelSize <= 0 {
		opts.NotificationChannelSize = 4096
	}
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewLRU(5000)
	}

	p := &Pool{
		opts:      opts,
		log:       log.Component("pool"),
		relays:    xsync.NewMapOf[relayurl.RelayURL, *Entry](),
		bus:       newBus(opts.NotificationChannelSize),
		subs:      make(map[string]*subscription),
		seenCache: opts.Cache,
	}
	if opts.Gossip != nil {
		p.gossipRouter = gossip.NewRouter(gossip.NewStore(), *opts.Gossip)
	}
	return p
}

// AddRelay adds url to the pool with the given capability mask, optionally
// connecting immediately, per spec.md §6 ("add_relay(url, capabilities,
// connect?, options) -> bool (true if newly added)"). At most one
// transport exists per RelayUrl inside one pool (spec.md §3 invariant).
func (p *Pool) AddRelay(ctx context.Context, url relayurl.RelayURL, caps stats.Capability, connect bool, opts relay.Options) bool {
	if _, exists := p.relays.Load(url); exists {
		return false
	}

	tr := transport.New(p.opts.Transport)
	r := relay.New(url, tr, opts)
	if caps != 0 {
		r.Capabilities.Clear(stats.All)
		r.Capabilities.Set(caps)
	}
	if p.opts.Signer != nil {
		r.SetSigner(p.opts.Signer)
	}

	forwardCtx, cancel := context.WithCancel(context.Background())
	entry := &Entry{Relay: r, Caps: r.Capabilities, forwardCtx: forwardCtx, cancel: cancel}

	_, loaded := p.relays.LoadOrStore(url, entry)
	if loaded {
		cancel()
		return false
	}

	go p.forwardNotifications(forwardCtx, entry)

	if connect {
		r.Connect(ctx)
	}
	return true
}

// RemoveRelay disconnects and drops url from the pool if present.
func (p *Pool) RemoveRelay(url relayurl.RelayURL) {
	entry, ok := p.relays.LoadAndDelete(url)
	if !ok {
		return
	}
	entry.cancel()
	entry.Relay.Shutdown()
}

// ForceRemoveRelay is identical to RemoveRelay; the SDK has no pending-op
// bookkeeping that would make a "graceful" removal meaningfully different,
// since every pool call is already context-cancellable.
func (p *Pool) ForceRemoveRelay(url relayurl.RelayURL) {
	p.RemoveRelay(url)
}

// Connect connects every relay currently in the pool.
func (p *Pool) Connect(ctx context.Context) {
	p.relays.Range(func(_ relayurl.RelayURL, e *Entry) bool {
		e.Relay.Connect(ctx)
		return true
	})
}

// Disconnect disconnects every relay without removing it from the pool.
func (p *Pool) Disconnect() {
	p.relays.Range(func(_ relayurl.RelayURL, e *Entry) bool {
		e.Relay.Disconnect()
		return true
	})
}

// Shutdown performs orderly termination of every relay and closes the
// notification bus.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	p.mu.Unlock()

	p.subsMu.Lock()
	for _, sub := range p.subs {
		sub.cancel()
	}
	p.subs = make(map[string]*subscription)
	p.subsMu.Unlock()

	p.relays.Range(func(_ relayurl.RelayURL, e *Entry) bool {
		e.cancel()
		e.Relay.Shutdown()
		return true
	})
	p.bus.publish(Notification{Kind: NotifyShutdown})
	p.bus.closeAll()
	_ = p.seenCache.Close()
}

// RelayURLs returns every relay URL in the pool whose capability mask
// intersects caps (stats.All matches every relay regardless of flags),
// per spec.md §8's quantified invariant
// "relay_urls_with_any_cap(ALL).len() == relays.len()".
func (p *Pool) RelayURLs(caps stats.Capability) []relayurl.RelayURL {
	var out []relayurl.RelayURL
	p.relays.Range(func(url relayurl.RelayURL, e *Entry) bool {
		if caps == stats.All || e.Caps.HasAny(caps) {
			out = append(out, url)
		}
		return true
	})
	return out
}

// Len returns the number of relays the pool manages.
func (p *Pool) Len() int {
	return p.relays.Size()
}

// relayEntry looks up a single relay by URL.
func (p *Pool) relayEntry(url relayurl.RelayURL) (*Entry, bool) {
	return p.relays.Load(url)
}

// Relay exposes the underlying relay.Relay for url, for callers that need
// direct access (e.g. pkg/negentropy.Engine, which binds to one relay).
func (p *Pool) Relay(url relayurl.RelayURL) (*relay.Relay, bool) {
	e, ok := p.relays.Load(url)
	if !ok {
		return nil, false
	}
	return e.Relay, true
}

// selectTargets resolves the pool relays a send/subscribe call should hit,
// in the precedence order of spec.md §4.5: explicit URL list, then
// gossip-derived relays (handled by callers that know the author), then
// the capability mask.
func (p *Pool) selectTargets(explicit []relayurl.RelayURL, caps stats.Capability) []relayurl.RelayURL {
	if len(explicit) > 0 {
		return explicit
	}
	return p.RelayURLs(caps)
}

func (p *Pool) mustEntry(url relayurl.RelayURL) (*Entry, error) {
	e, ok := p.relays.Load(url)
	if !ok {
		return nil, fmt.Errorf("pool: unknown relay %s", url)
	}
	return e, nil
}
