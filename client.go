// Package nostrsdk is the unified client facade of spec.md §6: a single
// entry point over pkg/pool that also owns the signer and default options
// handed to every relay the pool creates.
//
// Grounded on the original nophr tree's internal/nostr/client.go, which
// wrapped relay discovery and storage behind one Client type; generalized
// here from "one site's nostr client" into a general-purpose SDK facade.
package nostrsdk

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/cache"
	"github.com/sandwichfarm/nostr-sdk/pkg/gossip"
	"github.com/sandwichfarm/nostr-sdk/pkg/negentropy"
	"github.com/sandwichfarm/nostr-sdk/pkg/pool"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/store"
	"github.com/sandwichfarm/nostr-sdk/pkg/transport"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// Options configures a Client. Zero value is valid; DefaultOptions fills in
// the rest of the defaults documented throughout spec.md §6.
type Options struct {
	RelayOptions relay.Options
	Transport    transport.Options
	Signer       relay.Signer
	Store        store.EventStore

	NotificationChannelSize int

	// Gossip enables the gossip router of spec.md §4.8. Nil disables it.
	Gossip *gossip.Options

	// Cache dedups event ids on the notification bus across relays. Nil
	// builds a default in-process LRU; see pkg/cache for a Redis-backed
	// alternative.
	Cache cache.SeenCache
}

// DefaultOptions mirrors pool.DefaultOptions with gossip enabled using its
// own defaults, since a Client is meant to be usable out of the box.
func DefaultOptions() Options {
	gossipOpts := gossip.DefaultOptions()
	return Options{
		RelayOptions:            relay.DefaultOptions(),
		NotificationChannelSize: 4096,
		Gossip:                  &gossipOpts,
	}
}

// Client is the single entry point over a Pool, presenting spec.md §6's
// full unit API.
type Client struct {
	pool *pool.Pool
	opts Options
}

// New builds a Client with no relays. Call AddRelay to populate it.
func New(opts Options) *Client {
	return &Client{
		pool: pool.New(pool.Options{
			RelayOptions:            opts.RelayOptions,
			Transport:               opts.Transport,
			Signer:                  opts.Signer,
			Store:                   opts.Store,
			NotificationChannelSize: opts.NotificationChannelSize,
			Gossip:                  opts.Gossip,
			Cache:                   opts.Cache,
		}),
		opts: opts,
	}
}

// Pool exposes the underlying Pool for callers that need pool-specific
// knobs not surfaced on Client directly.
func (c *Client) Pool() *pool.Pool { return c.pool }

// AddRelay adds url with caps, optionally connecting immediately, per
// spec.md §6 "add_relay(url, capabilities, connect?, options) -> bool".
func (c *Client) AddRelay(ctx context.Context, url relayurl.RelayURL, caps stats.Capability, connect bool) bool {
	return c.pool.AddRelay(ctx, url, caps, connect, c.opts.RelayOptions)
}

// AddRelayWithOptions is AddRelay with a per-relay options override.
func (c *Client) AddRelayWithOptions(ctx context.Context, url relayurl.RelayURL, caps stats.Capability, connect bool, opts relay.Options) bool {
	return c.pool.AddRelay(ctx, url, caps, connect, opts)
}

// RemoveRelay disconnects and drops url from the pool.
func (c *Client) RemoveRelay(url relayurl.RelayURL) { c.pool.RemoveRelay(url) }

// ForceRemoveRelay is RemoveRelay; see pool.Pool.ForceRemoveRelay.
func (c *Client) ForceRemoveRelay(url relayurl.RelayURL) { c.pool.ForceRemoveRelay(url) }

// Connect connects every relay in the pool.
func (c *Client) Connect(ctx context.Context) { c.pool.Connect(ctx) }

// Disconnect disconnects every relay without removing it.
func (c *Client) Disconnect() { c.pool.Disconnect() }

// Shutdown performs orderly termination of the whole client.
func (c *Client) Shutdown() { c.pool.Shutdown() }

// SendMsg broadcasts msg per spec.md §6.
func (c *Client) SendMsg(ctx context.Context, msg wire.ClientMessage, targets []relayurl.RelayURL, waitUntilSent time.Duration) (pool.Output[struct{}], error) {
	return c.pool.SendMsg(ctx, msg, targets, waitUntilSent)
}

// SendEvent publishes evt per spec.md §6.
func (c *Client) SendEvent(ctx context.Context, evt *nostr.Event, targets []relayurl.RelayURL) (pool.Output[string], error) {
	return c.pool.SendEvent(ctx, evt, targets)
}

// Subscribe opens filters under id across the pool, per spec.md §6
// "subscribe(id?, filters, auto_close?) -> SubscriptionId".
func (c *Client) Subscribe(ctx context.Context, id string, filters []nostr.Filter, autoClose relay.AutoClosePolicy, targets []relayurl.RelayURL) (<-chan relay.Activity, error) {
	return c.pool.Subscribe(ctx, id, filters, autoClose, targets)
}

// Unsubscribe closes one pool-level subscription.
func (c *Client) Unsubscribe(ctx context.Context, id string) { c.pool.Unsubscribe(ctx, id) }

// UnsubscribeAll closes every pool-level subscription.
func (c *Client) UnsubscribeAll(ctx context.Context) { c.pool.UnsubscribeAll(ctx) }

// FetchEvents collects the deduplicated union of events matching filters
// across the pool, per spec.md §6 "fetch_events(filter, timeout)".
func (c *Client) FetchEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) ([]*nostr.Event, error) {
	return c.pool.FetchEvents(ctx, filters, timeout)
}

// StreamEvents is FetchEvents's lazy, channel-based counterpart, per
// spec.md §6 "stream_events(filter, timeout) -> async stream".
func (c *Client) StreamEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) (<-chan *nostr.Event, error) {
	return c.pool.StreamEvents(ctx, filters, timeout)
}

// Sync runs negentropy reconciliation against the selected relays, per
// spec.md §6/§4.7.
func (c *Client) Sync(ctx context.Context, filter nostr.Filter, opts negentropy.Options, targets []relayurl.RelayURL) []pool.SyncResult {
	return c.pool.Sync(ctx, filter, opts, targets)
}

// Notifications returns a new receiver on the pool's broadcast bus, per
// spec.md §6 "notifications() -> broadcast receiver".
func (c *Client) Notifications() <-chan pool.Notification { return c.pool.Notifications() }

// Len returns the number of relays the client manages.
func (c *Client) Len() int { return c.pool.Len() }

// RelayURLs returns every relay URL whose capability mask intersects caps.
func (c *Client) RelayURLs(caps stats.Capability) []relayurl.RelayURL { return c.pool.RelayURLs(caps) }

// Relay exposes one underlying relay connection, for callers that need
// direct relay-level access.
func (c *Client) Relay(url relayurl.RelayURL) (*relay.Relay, bool) { return c.pool.Relay(url) }
