package pool

import (
	"sync"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// Output aggregates a pool-level operation's per-relay outcome, per
// spec.md §7: a value plus the set of relays that succeeded and a map of
// the relays that failed to their error, per relay exactly once (spec.md
// §8's quantified invariant: "the Output<EventId> reports success XOR
// failure, never both"). recordSuccess/recordFailure are called
// concurrently from one goroutine per target relay, so the maps are
// guarded by mu.
type Output[T any] struct {
	Val     T
	Success map[relayurl.RelayURL]struct{}
	Failed  map[relayurl.RelayURL]error

	mu *sync.Mutex
}

func newOutput[T any](val T) Output[T] {
	return Output[T]{
		Val:     val,
		Success: make(map[relayurl.RelayURL]struct{}),
		Failed:  make(map[relayurl.RelayURL]error),
		mu:      &sync.Mutex{},
	}
}

func (o *Output[T]) recordSuccess(url relayurl.RelayURL) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Success[url] = struct{}{}
}

func (o *Output[T]) recordFailure(url relayurl.RelayURL, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Failed[url] = err
}

// AnySuccess reports whether at least one target relay succeeded, the
// bar spec.md §4.5 sets for a pool send to be considered Ok overall
// ("Partial success is not an error ... returns Ok as long as at least one
// target reports success; returns Err when all fail").
func (o *Output[T]) AnySuccess() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.Success) > 0
}
