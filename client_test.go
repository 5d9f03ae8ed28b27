package nostrsdk_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	nostrsdk "github.com/sandwichfarm/nostr-sdk"
	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

func newTestClient(t *testing.T) *nostrsdk.Client {
	t.Helper()
	opts := nostrsdk.DefaultOptions()
	opts.Gossip = nil
	c := nostrsdk.New(opts)
	t.Cleanup(c.Shutdown)
	return c
}

func addClientRelay(t *testing.T, c *nostrsdk.Client, mock *mockrelay.Relay, caps stats.Capability) relayurl.RelayURL {
	t.Helper()
	u, err := relayurl.Parse(mock.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, c.AddRelay(ctx, u, caps, true))
	return u
}

func TestClientPublishAndFetch(t *testing.T) {
	c := newTestClient(t)
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()
	addClientRelay(t, c, mock, stats.Read|stats.Write)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r, ok := c.Relay(c.RelayURLs(stats.All)[0]); ok && r.State() == relay.StateConnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	sk := nostr.GeneratePrivateKey()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{PubKey: pk, Kind: 1, Content: "hello from client", CreatedAt: nostr.Now()}
	require.NoError(t, evt.Sign(sk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := c.SendEvent(ctx, evt, nil)
	require.NoError(t, err)
	require.True(t, out.AnySuccess())

	events, err := c.FetchEvents(ctx, []nostr.Filter{{Kinds: []int{1}}}, 3*time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, evt.ID, events[0].ID)
}

func TestClientLenAndRelayURLs(t *testing.T) {
	c := newTestClient(t)
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()
	addClientRelay(t, c, mock, stats.Read)

	require.Equal(t, 1, c.Len())
	require.Len(t, c.RelayURLs(stats.Read), 1)
	require.Len(t, c.RelayURLs(stats.Write), 0)
}
