package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

func TestPoolSubscribeMergesActivityAcrossRelays(t *testing.T) {
	p := newTestPool(t)
	m1 := mockrelay.New(mockrelay.Behavior{})
	defer m1.Close()
	m2 := mockrelay.New(mockrelay.Behavior{})
	defer m2.Close()

	addMockRelay(t, p, m1, stats.Read)
	addMockRelay(t, p, m2, stats.Read)
	waitPoolConnected(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	activity, err := p.Subscribe(ctx, "merged-sub", []nostr.Filter{{Kinds: []int{1}}}, relay.AutoClosePolicy{Kind: relay.NoAutoClose}, nil)
	require.NoError(t, err)

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{PubKey: pk, Kind: 1, Content: "from relay 1", CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))
	m1.BroadcastForTest(evt)

	deadline := time.After(3 * time.Second)
	for {
		select {
		case a := <-activity:
			if a.Kind == relay.ActivityReceivedEvent && a.Event.ID == evt.ID {
				p.Unsubscribe(ctx, "merged-sub")
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for merged subscription activity")
		}
	}
}

func TestPoolUnsubscribeAllClearsSubscriptions(t *testing.T) {
	p := newTestPool(t)
	m1 := mockrelay.New(mockrelay.Behavior{})
	defer m1.Close()

	addMockRelay(t, p, m1, stats.Read)
	waitPoolConnected(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.Subscribe(ctx, "sub-a", []nostr.Filter{{Kinds: []int{1}}}, relay.AutoClosePolicy{Kind: relay.NoAutoClose}, nil)
	require.NoError(t, err)

	p.UnsubscribeAll(ctx)
}
