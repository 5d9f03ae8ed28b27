package pool

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// NotificationKind tags the variant carried on the pool's notification bus,
// per spec.md §4.5: "Message(url, msg), Event(url, sub_id, event),
// RelayStatus(url, status), Authenticated(url), Shutdown".
type NotificationKind int

const (
	NotifyMessage NotificationKind = iota
	NotifyEvent
	NotifyRelayStatus
	NotifyAuthenticated
	NotifyShutdown
	// NotifyLagged reports that a subscriber fell behind and one or more
	// notifications were dropped, per spec.md §5's backpressure policy.
	NotifyLagged
)

// Notification is one item on the pool's broadcast bus.
type Notification struct {
	Kind   NotificationKind
	URL    relayurl.RelayURL
	SubID  string
	Event  *nostr.Event
	Status relay.State
	Lagged int
}

// forwardNotifications drains one relay's per-relay notification channel
// and republishes each item on the pool bus tagged with its URL, feeding
// kind-10002/10050 events to the gossip router along the way, per spec.md
// §4.8's "Update" step.
func (p *Pool) forwardNotifications(ctx context.Context, e *Entry) {
	url := e.Relay.URL
	ch := e.Relay.Notifications()
	for {
		select {
		case n, ok := <-ch:
			if !ok {
				return
			}
			switch n.Kind {
			case relay.NotifyMessage:
				p.bus.publish(Notification{Kind: NotifyMessage, URL: url})
			case relay.NotifyEvent:
				if p.gossipRouter != nil && n.Event != nil {
					p.gossipRouter.IngestEvent(n.Event)
				}
				if n.Event != nil {
					if dup, err := p.seenCache.MarkSeen(ctx, n.Event.ID); err == nil && dup {
						continue
					}
				}
				p.bus.publish(Notification{Kind: NotifyEvent, URL: url, SubID: n.SubID, Event: n.Event})
			case relay.NotifyStatus:
				p.bus.publish(Notification{Kind: NotifyRelayStatus, URL: url, Status: n.Status})
			case relay.NotifyAuthenticated:
				p.bus.publish(Notification{Kind: NotifyAuthenticated, URL: url})
			case relay.NotifyShutdown:
				p.bus.publish(Notification{Kind: NotifyRelayStatus, URL: url, Status: relay.StateTerminated})
			}
		case <-ctx.Done():
			return
		}
	}
}

// Notifications returns a new receiver on the pool's broadcast bus, per
// spec.md §6 "notifications() -> broadcast receiver". Every call gets its
// own channel so multiple consumers can each drain independently; a slow
// consumer misses notifications rather than stalling the others (spec.md
// §5's drop-on-lag policy). A NotifyLagged item reaches the consumer only
// when its channel has a free slot right after a drop (see bus.publish), so
// the absence of NotifyLagged does not mean nothing was dropped.
func (p *Pool) Notifications() <-chan Notification {
	return p.bus.subscribe()
}
