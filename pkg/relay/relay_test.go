package relay_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/transport"
)

func newTestRelay(t *testing.T, mock *mockrelay.Relay, opts relay.Options) *relay.Relay {
	t.Helper()
	u, err := relayurl.Parse(mock.URL)
	require.NoError(t, err)
	tr := transport.New(transport.Options{})
	r := relay.New(u, tr, opts)
	t.Cleanup(r.Shutdown)
	return r
}

func waitForState(t *testing.T, r *relay.Relay, want relay.State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("relay never reached state %s, stuck at %s", want, r.State())
}

// Dial, publish, echo back: spec.md §8 scenario 1.
func TestDialPublishEchoBack(t *testing.T) {
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()

	opts := relay.DefaultOptions()
	r := newTestRelay(t, mock, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r.Connect(ctx)
	waitForState(t, r, relay.StateConnected, 2*time.Second)

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	evt := &nostr.Event{PubKey: pk, Kind: 1, Content: "hi", CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))

	require.NoError(t, r.SendEvent(ctx, evt))

	sub := &relay.Subscription{
		ID:        "sub1",
		Filters:   []nostr.Filter{{Kinds: []int{1}}},
		AutoClose: relay.AutoClosePolicy{Kind: relay.ExitOnEose},
		Activity:  make(chan relay.Activity, 16),
	}
	require.NoError(t, r.Subscribe(ctx, sub))

	var seen []*nostr.Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case a := <-sub.Activity:
			if a.Kind == relay.ActivityReceivedEvent {
				seen = append(seen, a.Event)
			}
			if a.Kind == relay.ActivityClosed {
				require.Len(t, seen, 1)
				require.Equal(t, evt.ID, seen[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for subscription to auto-close")
		}
	}
}

// Filter-mismatch banning: spec.md §8 scenario 4.
func TestFilterMismatchBanning(t *testing.T) {
	mock := mockrelay.New(mockrelay.Behavior{
		IgnoreFilters: true,
		OnEvent: func(evt *nostr.Event) ([]*nostr.Event, bool, string) {
			return nil, true, ""
		},
	})
	defer mock.Close()

	go func() {
		// Feed a stream of kind-0 events from random authors, as scenario 4
		// requires ("configured to emit random kind-0 events regardless of
		// the filter").
		for i := 0; i < 5; i++ {
			sk := nostr.GeneratePrivateKey()
			pk, _ := nostr.GetPublicKey(sk)
			evt := &nostr.Event{PubKey: pk, Kind: 0, Content: "{}", CreatedAt: nostr.Now()}
			_ = evt.Sign(sk)
			mock.BroadcastForTest(evt)
			time.Sleep(50 * time.Millisecond)
		}
	}()

	opts := relay.DefaultOptions()
	opts.VerifySubscriptions = true
	opts.BanRelayOnMismatch = true
	r := newTestRelay(t, mock, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.Connect(ctx)
	waitForState(t, r, relay.StateConnected, 2*time.Second)

	// A filter narrowed to one author the mock's random broadcasts will
	// never match, so the first delivered event is always a mismatch.
	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	sub := &relay.Subscription{
		ID:       "sub1",
		Filters:  []nostr.Filter{{Kinds: []int{0}, Authors: []string{pk}, Limit: 3}},
		Activity: make(chan relay.Activity, 16),
	}
	require.NoError(t, r.Subscribe(ctx, sub))

	waitForState(t, r, relay.StateBanned, 10*time.Second)
}
