package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/negentropy"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

// SyncResult is one relay's negentropy outcome, or its error if the relay
// doesn't support reconciliation or the session failed.
type SyncResult struct {
	URL    relayurl.RelayURL
	Result negentropy.Result
	Err    error
}

// Sync runs one negentropy reconciliation session per selected relay
// (explicit targets, else every relay with WRITE capability — reconciliation
// needs a relay this pool can both read from and publish diffs to), using
// this pool's Store as the local side and FetchEvents as the default
// opts.FetchEvents when the caller didn't provide one, per spec.md §4.7.
func (p *Pool) Sync(ctx context.Context, filter nostr.Filter, opts negentropy.Options, targets []relayurl.RelayURL) []SyncResult {
	urls := p.selectTargets(targets, stats.Write)
	if opts.FetchEvents == nil {
		opts.FetchEvents = func(ctx context.Context, ids []string) ([]*nostr.Event, error) {
			return p.FetchEvents(ctx, []nostr.Filter{{IDs: ids}}, opts.Timeout)
		}
	}

	results := make([]SyncResult, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		i, url := i, url
		e, ok := p.relayEntry(url)
		if !ok {
			results[i] = SyncResult{URL: url, Err: fmt.Errorf("pool: unknown relay %s", url)}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine := negentropy.New(e.Relay, p.opts.Store)
			subID := newSubID()
			res, err := engine.Sync(ctx, subID, filter, opts)
			results[i] = SyncResult{URL: url, Result: res, Err: err}
		}()
	}
	wg.Wait()
	return results
}
