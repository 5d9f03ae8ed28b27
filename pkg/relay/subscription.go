package relay

import (
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// AutoClosePolicyKind selects how a subscription closes itself after EOSE,
// per spec.md §4.3.
type AutoClosePolicyKind int

const (
	// NoAutoClose marks a long-lived subscription: it is reissued after
	// every reconnect and ends only on explicit Unsubscribe or a CLOSED
	// from the relay.
	NoAutoClose AutoClosePolicyKind = iota
	ExitOnEose
	WaitForEventsAfterEose
	WaitDurationAfterEose
)

// AutoClosePolicy configures how and when a subscription self-terminates.
type AutoClosePolicy struct {
	Kind AutoClosePolicyKind
	// N is consulted for WaitForEventsAfterEose.
	N int
	// Duration is consulted for WaitDurationAfterEose.
	Duration time.Duration
}

// ActivityKind tags the variant carried on a Subscription's Activity channel.
type ActivityKind int

const (
	ActivityReceivedEvent ActivityKind = iota
	ActivityEose
	ActivityClosed
)

// Activity is one notification delivered on a subscription's activity
// channel (spec.md §4.3 "Activity channel").
type Activity struct {
	Kind   ActivityKind
	Event  *nostr.Event // set when Kind == ActivityReceivedEvent
	Reason string       // set when Kind == ActivityClosed
}

// Subscription is the per-relay record of spec.md §3 "Subscription record".
type Subscription struct {
	ID       string
	Filters  []nostr.Filter
	AutoClose AutoClosePolicy
	Activity chan Activity

	Timeout     time.Duration
	IdleTimeout time.Duration

	createdAt    time.Time
	lastActivity time.Time
	eoseSeen     bool
	eventsSinceEose int
}

// sendActivity is a non-blocking best-effort push to the activity channel;
// a subscriber who isn't draining it misses updates rather than stalling
// the reader task (consistent with spec.md §5's backpressure policy for
// the pool-level bus — the per-subscription channel is sized generously by
// the caller and is not expected to ever need this path in practice).
func (s *Subscription) sendActivity(a Activity) {
	if s.Activity == nil {
		return
	}
	select {
	case s.Activity <- a:
	default:
	}
}

// SubscriptionTable is the per-relay map of active subscription ID to
// record, guarded by a mutex per spec.md §5 ("hot paths briefly lock to
// insert/remove").
type SubscriptionTable struct {
	mu   sync.Mutex
	subs map[string]*Subscription
	// order preserves insertion order for reissue-on-reconnect (spec.md
	// §4.3 "in insertion order").
	order []string
}

func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{subs: make(map[string]*Subscription)}
}

// Insert registers a subscription. Returns an error of KindSubscriptionIDCollision
// if the ID is already active on this relay.
func (t *SubscriptionTable) Insert(sub *Subscription) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.subs[sub.ID]; exists {
		return NewError(KindSubscriptionIDCollision, "", errSubIDCollision(sub.ID))
	}
	sub.createdAt = time.Now()
	sub.lastActivity = sub.createdAt
	t.subs[sub.ID] = sub
	t.order = append(t.order, sub.ID)
	return nil
}

func (t *SubscriptionTable) Get(id string) (*Subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.subs[id]
	return s, ok
}

func (t *SubscriptionTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
	for i, sid := range t.order {
		if sid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// LongLived returns, in insertion order, every subscription without an
// auto-close policy — the set reissued after reconnect.
func (t *SubscriptionTable) LongLived() []*Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Subscription, 0, len(t.order))
	for _, id := range t.order {
		if s, ok := t.subs[id]; ok && s.AutoClose.Kind == NoAutoClose {
			out = append(out, s)
		}
	}
	return out
}

func (t *SubscriptionTable) All() []*Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Subscription, 0, len(t.order))
	for _, id := range t.order {
		if s, ok := t.subs[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (t *SubscriptionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

type subIDCollisionError string

func (e subIDCollisionError) Error() string { return "subscription id already active: " + string(e) }
func errSubIDCollision(id string) error     { return subIDCollisionError(id) }
