package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/pool"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	p := pool.New(pool.DefaultOptions())
	t.Cleanup(p.Shutdown)
	return p
}

func addMockRelay(t *testing.T, p *pool.Pool, mock *mockrelay.Relay, caps stats.Capability) relayurl.RelayURL {
	t.Helper()
	u, err := relayurl.Parse(mock.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ok := p.AddRelay(ctx, u, caps, true, pool.DefaultOptions().RelayOptions)
	require.True(t, ok)
	return u
}

func TestPoolAddRelayRejectsDuplicate(t *testing.T) {
	p := newTestPool(t)
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()

	u := addMockRelay(t, p, mock, stats.Read|stats.Write)
	ctx := context.Background()
	ok := p.AddRelay(ctx, u, stats.Read, false, pool.DefaultOptions().RelayOptions)
	require.False(t, ok)
	require.Equal(t, 1, p.Len())
}

func TestPoolRelayURLsFiltersByCapability(t *testing.T) {
	p := newTestPool(t)
	m1 := mockrelay.New(mockrelay.Behavior{})
	defer m1.Close()
	m2 := mockrelay.New(mockrelay.Behavior{})
	defer m2.Close()

	readOnly := addMockRelay(t, p, m1, stats.Read)
	writeOnly := addMockRelay(t, p, m2, stats.Write)

	readURLs := p.RelayURLs(stats.Read)
	require.Contains(t, readURLs, readOnly)
	require.NotContains(t, readURLs, writeOnly)

	all := p.RelayURLs(stats.All)
	require.Len(t, all, 2)
}

func TestPoolSendEventBroadcastsToAllWriteRelays(t *testing.T) {
	p := newTestPool(t)
	m1 := mockrelay.New(mockrelay.Behavior{})
	defer m1.Close()
	m2 := mockrelay.New(mockrelay.Behavior{})
	defer m2.Close()

	addMockRelay(t, p, m1, stats.Write)
	addMockRelay(t, p, m2, stats.Write)

	waitPoolConnected(t, p)

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{PubKey: pk, Kind: 1, Content: "hi", CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := p.SendEvent(ctx, evt, nil)
	require.NoError(t, err)
	require.True(t, out.AnySuccess())
	require.Len(t, out.Success, 2)

	require.Len(t, m1.Events(), 1)
	require.Len(t, m2.Events(), 1)
}

func TestPoolFetchEventsDedupesAcrossRelays(t *testing.T) {
	p := newTestPool(t)
	m1 := mockrelay.New(mockrelay.Behavior{})
	defer m1.Close()
	m2 := mockrelay.New(mockrelay.Behavior{})
	defer m2.Close()

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{PubKey: pk, Kind: 1, Content: "shared", CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))
	m1.Seed(evt)
	m2.Seed(evt)

	addMockRelay(t, p, m1, stats.Read)
	addMockRelay(t, p, m2, stats.Read)
	waitPoolConnected(t, p)

	ctx := context.Background()
	events, err := p.FetchEvents(ctx, []nostr.Filter{{Kinds: []int{1}}}, 3*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, evt.ID, events[0].ID)
}

func waitPoolConnected(t *testing.T, p *pool.Pool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ready := true
		for _, url := range p.RelayURLs(stats.All) {
			r, ok := p.Relay(url)
			if !ok || r.State() != relay.StateConnected {
				ready = false
			}
		}
		if ready {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pool relays never connected")
}
