package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// SendMsg broadcasts msg to the selected relays, per spec.md §6
// "send_msg(msg).{broadcast | to(urls)}.{wait_until_sent(d)?}". With no
// explicit targets the capability mask is READ|WRITE (spec.md §4.5).
func (p *Pool) SendMsg(ctx context.Context, msg wire.ClientMessage, targets []relayurl.RelayURL, waitUntilSent time.Duration) (Output[struct{}], error) {
	urls := p.selectTargets(targets, stats.Read|stats.Write)
	out := newOutput(struct{}{})

	var wg sendWaitGroup
	for _, url := range urls {
		url := url
		e, ok := p.relayEntry(url)
		if !ok {
			continue
		}
		wg.Go(func() {
			if err := e.Relay.SendMsg(ctx, msg, waitUntilSent); err != nil {
				out.recordFailure(url, err)
				return
			}
			out.recordSuccess(url)
		})
	}
	wg.Wait()

	if !out.AnySuccess() && len(urls) > 0 {
		return out, fmt.Errorf("pool: send_msg failed on every target relay")
	}
	return out, nil
}

// SendEvent publishes evt, targeting (in precedence order per spec.md
// §4.5): the explicit targets argument, gossip-derived write relays for
// evt.PubKey, then every relay with WRITE capability.
func (p *Pool) SendEvent(ctx context.Context, evt *nostr.Event, targets []relayurl.RelayURL) (Output[string], error) {
	urls := targets
	if len(urls) == 0 && p.gossipRouter != nil {
		if gossipURLs, ok := p.gossipRouter.WriteRelaysFor(evt.PubKey); ok && len(gossipURLs) > 0 {
			urls = gossipURLs
		}
	}
	if len(urls) == 0 {
		urls = p.RelayURLs(stats.Write)
	}

	out := newOutput(evt.ID)

	var wg sendWaitGroup
	for _, url := range urls {
		url := url
		e, ok := p.relayEntry(url)
		if !ok {
			continue
		}
		wg.Go(func() {
			if err := e.Relay.SendEvent(ctx, evt); err != nil {
				out.recordFailure(url, err)
				return
			}
			if p.gossipRouter != nil {
				p.gossipRouter.RecordUsage(url)
			}
			out.recordSuccess(url)
		})
	}
	wg.Wait()

	if !out.AnySuccess() {
		return out, fmt.Errorf("pool: send_event failed on every target relay")
	}
	return out, nil
}

// sendWaitGroup runs a set of thunks concurrently and waits for all of
// them, a small local helper so send.go doesn't need an explicit
// sync.WaitGroup dance at every call site.
type sendWaitGroup struct {
	n    int
	done chan struct{}
}

func (w *sendWaitGroup) Go(fn func()) {
	if w.done == nil {
		w.done = make(chan struct{}, 64)
	}
	w.n++
	go func() {
		fn()
		w.done <- struct{}{}
	}()
}

func (w *sendWaitGroup) Wait() {
	for i := 0; i < w.n; i++ {
		<-w.done
	}
}
