package pool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
)

// FetchEvents opens an ExitOnEose subscription for filters on every target
// relay, collects the union of matching events deduplicated by ID, and
// returns them sorted descending by created_at, ascending by id as a
// tie-breaker, per spec.md §4.6. When every filter shares one limit, the
// returned collection is capped at that size, dropping whichever events
// sort last (OverflowPolicy::Last); when the filters disagree on limit the
// result is unbounded.
func (p *Pool) FetchEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := p.collect(ctx, filters, timeout)
	if err != nil {
		return nil, err
	}

	sortEventsDesc(events)

	if limit, ok := sharedLimit(filters); ok && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// StreamEvents is identical in setup to FetchEvents but yields deduplicated
// events lazily on a channel that closes once every source subscription has
// auto-closed (spec.md §4.6).
func (p *Pool) StreamEvents(ctx context.Context, filters []nostr.Filter, timeout time.Duration) (<-chan *nostr.Event, error) {
	id := newSubID()
	activity, opened, err := p.subscribeCounted(ctx, id, filters, relay.AutoClosePolicy{Kind: relay.ExitOnEose}, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan *nostr.Event, p.opts.NotificationChannelSize)
	go func() {
		defer close(out)
		defer p.Unsubscribe(context.Background(), id)

		seen := make(map[string]struct{})
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		closed := 0
		for {
			select {
			case a, ok := <-activity:
				if !ok {
					return
				}
				switch a.Kind {
				case relay.ActivityReceivedEvent:
					if a.Event == nil {
						continue
					}
					if _, dup := seen[a.Event.ID]; dup {
						continue
					}
					seen[a.Event.ID] = struct{}{}
					select {
					case out <- a.Event:
					case <-ctx.Done():
						return
					}
				case relay.ActivityClosed:
					closed++
					if opened > 0 && closed >= opened {
						return
					}
				}
			case <-timer.C:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// collect drives one ExitOnEose subscription across the selected relays and
// gathers every distinct event observed before every relay's subscription
// closes or timeout elapses, whichever comes first.
func (p *Pool) collect(ctx context.Context, filters []nostr.Filter, timeout time.Duration) ([]*nostr.Event, error) {
	id := newSubID()
	activity, opened, err := p.subscribeCounted(ctx, id, filters, relay.AutoClosePolicy{Kind: relay.ExitOnEose}, nil)
	if err != nil {
		return nil, err
	}
	defer p.Unsubscribe(context.Background(), id)

	var mu sync.Mutex
	seen := make(map[string]*nostr.Event)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	closed := 0
	for {
		select {
		case a, ok := <-activity:
			if !ok {
				return eventValues(seen, &mu), nil
			}
			switch a.Kind {
			case relay.ActivityReceivedEvent:
				if a.Event != nil {
					mu.Lock()
					seen[a.Event.ID] = a.Event
					mu.Unlock()
				}
			case relay.ActivityClosed:
				closed++
				if opened > 0 && closed >= opened {
					return eventValues(seen, &mu), nil
				}
			}
		case <-timer.C:
			return eventValues(seen, &mu), nil
		case <-ctx.Done():
			return eventValues(seen, &mu), ctx.Err()
		}
	}
}

func eventValues(m map[string]*nostr.Event, mu *sync.Mutex) []*nostr.Event {
	mu.Lock()
	defer mu.Unlock()
	out := make([]*nostr.Event, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

// sortEventsDesc sorts by descending created_at, then ascending id, per
// spec.md §4.6 "Ordering and tie-breaking".
func sortEventsDesc(events []*nostr.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

// sharedLimit reports the limit every filter agrees on, if any.
func sharedLimit(filters []nostr.Filter) (int, bool) {
	if len(filters) == 0 {
		return 0, false
	}
	limit := filters[0].Limit
	if limit <= 0 {
		return 0, false
	}
	for _, f := range filters[1:] {
		if f.Limit != limit {
			return 0, false
		}
	}
	return limit, true
}

var subIDCounter atomic.Uint64

func newSubID() string {
	return fmt.Sprintf("fetch-%d", subIDCounter.Add(1))
}
