package negentropy_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/negentropy"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
	"github.com/sandwichfarm/nostr-sdk/pkg/store"
	"github.com/sandwichfarm/nostr-sdk/pkg/transport"
)

func connectedRelay(t *testing.T, mock *mockrelay.Relay) *relay.Relay {
	t.Helper()
	u, err := relayurl.Parse(mock.URL)
	require.NoError(t, err)
	tr := transport.New(transport.Options{})
	r := relay.New(u, tr, relay.DefaultOptions())
	t.Cleanup(r.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.Connect(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == relay.StateConnected {
			return r
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("relay never connected")
	return nil
}

// A relay that replies NEG-ERR "unsupported" to NEG-OPEN surfaces
// ErrNotSupported, per spec.md §4.7 "Opening".
func TestSyncNotSupported(t *testing.T) {
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()

	r := connectedRelay(t, mock)
	engine := negentropy.New(r, store.NewMemoryStore())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := engine.Sync(ctx, "sync1", nostr.Filter{Kinds: []int{1}}, negentropy.Options{
		Direction: negentropy.Both,
		DryRun:    true,
		Timeout:   3 * time.Second,
	})
	require.ErrorIs(t, err, negentropy.ErrNotSupported)
}

// genEvent builds a signed kind-1 event with a distinct CreatedAt, so
// encodeFingerprint's (created_at, id) ordering is exercised across a
// realistic spread of timestamps rather than a pile of identical ones.
func genEvent(t *testing.T, sk string, createdAt nostr.Timestamp) *nostr.Event {
	t.Helper()
	pk, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	evt := &nostr.Event{
		PubKey:    pk,
		Kind:      1,
		Content:   "reconciliation fixture",
		CreatedAt: createdAt,
	}
	require.NoError(t, evt.Sign(sk))
	return evt
}

// TestSyncReconciliationScenario drives spec.md §8 scenario 6: 100 local
// events and 120 remote events sharing 80 in common, so the diff has
// have=20 (local-only) and need=40 (remote-only), and a dry-run direction
// of Both reports that diff without ever publishing or fetching events.
func TestSyncReconciliationScenario(t *testing.T) {
	sk := nostr.GeneratePrivateKey()

	localStore := store.NewMemoryStore()
	mock := mockrelay.New(mockrelay.Behavior{Negentropy: true})
	defer mock.Close()

	ctx := context.Background()
	base := nostr.Timestamp(1700000000)

	// 80 events shared by both sides.
	for i := 0; i < 80; i++ {
		evt := genEvent(t, sk, base+nostr.Timestamp(i))
		_, err := localStore.SaveEvent(ctx, evt)
		require.NoError(t, err)
		mock.Seed(evt)
	}
	// 20 events only the local store has.
	for i := 80; i < 100; i++ {
		evt := genEvent(t, sk, base+nostr.Timestamp(i))
		_, err := localStore.SaveEvent(ctx, evt)
		require.NoError(t, err)
	}
	// 40 events only the mock relay has.
	for i := 100; i < 140; i++ {
		evt := genEvent(t, sk, base+nostr.Timestamp(i))
		mock.Seed(evt)
	}

	require.Equal(t, 120, len(mock.Events()))

	r := connectedRelay(t, mock)
	engine := negentropy.New(r, localStore)

	syncCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := engine.Sync(syncCtx, "sync-scenario-6", nostr.Filter{Kinds: []int{1}}, negentropy.Options{
		Direction: negentropy.Both,
		DryRun:    true,
		Timeout:   3 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, result.HaveIDs, 20)
	require.Len(t, result.NeedIDs, 40)

	// DryRun must not have published or fetched anything: the relay's
	// store is untouched.
	require.Equal(t, 120, len(mock.Events()))
}
