package pool

import (
	"context"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/gossip"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

// subscription is what the pool keeps per pool-level subscribe call: the
// forwarding goroutines' cancel func plus the merged activity channel handed
// back to the caller.
type subscription struct {
	cancel   context.CancelFunc
	Activity chan relay.Activity
}

// Subscribe opens filters under id on every selected relay (explicit
// targets, else gossip-derived read relays for the filters' authors, else
// every relay with READ capability) and registers a merged activity
// forwarder so ingress from any relay surfaces on a single channel, per
// spec.md §4.5 "subscribe": "The pool opens the subscription on each
// selected relay, assigning the same subscription ID, and registers a
// merged activity forwarder so that ingress from any relay surfaces under a
// single stream."
func (p *Pool) Subscribe(ctx context.Context, id string, filters []nostr.Filter, autoClose relay.AutoClosePolicy, targets []relayurl.RelayURL) (<-chan relay.Activity, error) {
	merged, _, err := p.subscribeCounted(ctx, id, filters, autoClose, targets)
	return merged, err
}

// subscribeCounted is Subscribe plus the number of relays the subscription
// actually opened against, so callers like FetchEvents/StreamEvents can
// tell when every source subscription has auto-closed (spec.md §4.6:
// "terminates when every source subscription has hit its auto-close")
// instead of always waiting out the caller-supplied timeout.
func (p *Pool) subscribeCounted(ctx context.Context, id string, filters []nostr.Filter, autoClose relay.AutoClosePolicy, targets []relayurl.RelayURL) (<-chan relay.Activity, int, error) {
	urls := p.resolveReadTargets(targets, filters)

	ctx, cancel := context.WithCancel(ctx)
	merged := make(chan relay.Activity, p.opts.NotificationChannelSize)

	var opened int
	for _, url := range urls {
		e, ok := p.relayEntry(url)
		if !ok {
			continue
		}
		perRelay := &relay.Subscription{
			ID:        id,
			Filters:   filters,
			AutoClose: autoClose,
			Activity:  make(chan relay.Activity, p.opts.NotificationChannelSize),
		}
		if err := e.Relay.Subscribe(ctx, perRelay); err != nil {
			p.log.Warn().Err(err).Str("relay", url.String()).Str("sub_id", id).Msg("subscribe failed on relay")
			continue
		}
		opened++
		go forwardActivity(ctx, perRelay.Activity, merged)
	}

	if opened == 0 {
		cancel()
		close(merged)
		return merged, 0, nil
	}

	p.subsMu.Lock()
	p.subs[id] = &subscription{cancel: cancel, Activity: merged}
	p.subsMu.Unlock()

	return merged, opened, nil
}

func forwardActivity(ctx context.Context, from <-chan relay.Activity, to chan<- relay.Activity) {
	for {
		select {
		case a, ok := <-from:
			if !ok {
				return
			}
			select {
			case to <- a:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// Unsubscribe closes id on every relay it was opened against and stops the
// merged forwarder.
func (p *Pool) Unsubscribe(ctx context.Context, id string) {
	p.subsMu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.subsMu.Unlock()
	if !ok {
		return
	}
	sub.cancel()

	p.relays.Range(func(_ relayurl.RelayURL, e *Entry) bool {
		e.Relay.Unsubscribe(ctx, id)
		return true
	})
}

// UnsubscribeAll closes every pool-level subscription.
func (p *Pool) UnsubscribeAll(ctx context.Context) {
	p.subsMu.Lock()
	ids := make([]string, 0, len(p.subs))
	for id, sub := range p.subs {
		sub.cancel()
		ids = append(ids, id)
	}
	p.subs = make(map[string]*subscription)
	p.subsMu.Unlock()

	p.relays.Range(func(_ relayurl.RelayURL, e *Entry) bool {
		for _, id := range ids {
			e.Relay.Unsubscribe(ctx, id)
		}
		return true
	})
}

// resolveReadTargets implements spec.md §4.8's precedence for read
// selection: explicit targets, then gossip-derived relays for the filters'
// authors (unioned across filters), then capability-based READ fallback.
func (p *Pool) resolveReadTargets(targets []relayurl.RelayURL, filters []nostr.Filter) []relayurl.RelayURL {
	if len(targets) > 0 {
		return targets
	}
	if p.gossipRouter == nil {
		return p.RelayURLs(stats.Read)
	}

	seen := make(map[relayurl.RelayURL]struct{})
	var urls []relayurl.RelayURL
	var anyHit bool
	for _, f := range filters {
		hints := gossip.HintRelaysInFilter(f)
		for _, author := range gossip.AuthorsInFilter(f) {
			relays, ok := p.gossipRouter.ReadRelaysFor(author, hints)
			if !ok {
				continue
			}
			anyHit = true
			for _, u := range relays {
				if _, dup := seen[u]; dup {
					continue
				}
				seen[u] = struct{}{}
				urls = append(urls, u)
			}
		}
	}
	if !anyHit {
		return p.RelayURLs(stats.Read)
	}
	return urls
}
