// Package relay implements one relay connection: the FSM and supervisor of
// spec.md §4.1, the subscription manager of §4.3, and the NIP-42
// authentication flow of §4.4. The goroutine shape is grounded on
// cuemby-warren/pkg/worker/worker.go's heartbeatLoop/stopCh model,
// generalized from "one manager connection" to "one relay connection."
package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"

	"github.com/sandwichfarm/nostr-sdk/pkg/log"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/transport"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// NotificationKind tags the variant carried on a Relay's notification
// channel, scoped to a single relay (the pool broadcasts the same shape
// across every relay it owns, see pkg/pool).
type NotificationKind int

const (
	NotifyMessage NotificationKind = iota
	NotifyEvent
	NotifyStatus
	NotifyAuthenticated
	NotifyShutdown
)

// Notification is what a Relay publishes on its outbound channel, mirroring
// the pool-level bus variants of spec.md §4.5.
type Notification struct {
	Kind   NotificationKind
	SubID  string
	Event  *nostr.Event
	Status State
	Err    error
}

// outboxItem is one pending outbound frame, FIFO-ordered by the writer task
// per spec.md §4.1 "Connected".
type outboxItem struct {
	frame []byte
	sent  chan struct{} // closed once handed to the socket, for wait_until_sent
}

// wsConn is the minimal surface this package needs from a websocket
// connection, satisfied by *websocket.Conn from coder/websocket.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Relay is the per-URL connection unit: Connect, Disconnect, Shutdown,
// SendMsg, SendEvent, Subscribe, Unsubscribe, UnsubscribeAll and
// Notifications. It has no sync, fetch or stream methods of its own;
// reconciliation is pkg/negentropy's Engine.Sync and fetching/streaming
// are pkg/pool's FetchEvents and StreamEvents.
type Relay struct {
	URL       relayurl.RelayURL
	Opts      Options
	Transport transport.Transport
	Filtering *Filtering

	Stats        *stats.Stats
	Capabilities *stats.Capabilities

	subs *SubscriptionTable
	auth *AuthHandler

	log zerolog.Logger

	state atomic.Int32 // State

	outbox chan outboxItem
	notify chan Notification

	mu                  sync.Mutex
	conn                wsConn
	connCancel          context.CancelFunc
	consecutiveFailures int
	lastPingNonce       atomic.Uint64
	lastActivityNano    atomic.Int64

	// wakeCh is signaled by any call that needs the socket while the relay
	// is Sleeping, per spec.md §4.1 "Sleeping": "Any user call that needs
	// the socket transitions to Connecting."
	wakeCh chan struct{}

	okWaiters map[string]chan wire.OKMsg
	okMu      sync.Mutex

	negFwd func(msg wire.RelayMessage)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Relay in the Initialized state. It does not dial; call
// Connect to start the supervisor.
func New(url relayurl.RelayURL, tr transport.Transport, opts Options) *Relay {
	var mask stats.Capability
	if opts.Read {
		mask |= stats.Read
	}
	if opts.Write {
		mask |= stats.Write
	}
	if opts.Ping {
		mask |= stats.Ping
	}

	r := &Relay{
		URL:          url,
		Opts:         opts,
		Transport:    tr,
		Filtering:    NewFiltering(ModeBlacklist),
		Stats:        &stats.Stats{},
		Capabilities: stats.NewCapabilities(mask),
		subs:         NewSubscriptionTable(),
		outbox:       make(chan outboxItem, 256),
		notify:       make(chan Notification, opts.NotificationChannelSize),
		okWaiters:    make(map[string]chan wire.OKMsg),
		stopCh:       make(chan struct{}),
		wakeCh:       make(chan struct{}, 1),
		log:          log.WithRelay("relay", url.String()),
	}
	r.auth = NewAuthHandler(url.String(), nil, false)
	r.state.Store(int32(StateInitialized))
	return r
}

// SetSigner wires a Signer for NIP-42 authentication.
func (r *Relay) SetSigner(s Signer) {
	r.auth = NewAuthHandler(r.URL.String(), s, r.Opts.AutomaticAuthentication && s != nil)
}

// State returns the relay's current FSM state.
func (r *Relay) State() State { return State(r.state.Load()) }

func (r *Relay) setState(s State) {
	r.state.Store(int32(s))
	r.emit(Notification{Kind: NotifyStatus, Status: s})
}

// emit is a non-blocking best-effort push to the notification channel, per
// spec.md §5's drop-on-lag backpressure policy.
func (r *Relay) emit(n Notification) {
	select {
	case r.notify <- n:
	default:
		r.log.Warn().Msg("notification channel full, dropping")
	}
}

// Notifications returns the relay's notification channel.
func (r *Relay) Notifications() <-chan Notification { return r.notify }

// touchActivity records that a frame was read or written just now, the
// clock sleep_when_idle measures against (spec.md §4.1 "Sleeping": "no
// activity has occurred for the configured timeout").
func (r *Relay) touchActivity() {
	r.lastActivityNano.Store(time.Now().UnixNano())
}

// lastActivity returns the last recorded activity time, or now if none has
// been recorded yet (so a freshly connected relay never looks idle).
func (r *Relay) lastActivity() time.Time {
	n := r.lastActivityNano.Load()
	if n == 0 {
		return time.Now()
	}
	return time.Unix(0, n)
}

// wake signals a sleeping relay's supervisor to resume connecting. It is
// best-effort and non-blocking; a relay that isn't sleeping ignores it.
func (r *Relay) wake() {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
}

// Subscriptions exposes the subscription table for the pool's reissue and
// introspection needs.
func (r *Relay) Subscriptions() *SubscriptionTable { return r.subs }
