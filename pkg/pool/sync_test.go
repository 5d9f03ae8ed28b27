package pool_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/internal/mockrelay"
	"github.com/sandwichfarm/nostr-sdk/pkg/negentropy"
	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
)

func TestPoolSyncReportsNotSupportedPerRelay(t *testing.T) {
	p := newTestPool(t)
	mock := mockrelay.New(mockrelay.Behavior{})
	defer mock.Close()

	addMockRelay(t, p, mock, stats.Read|stats.Write)
	waitPoolConnected(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := p.Sync(ctx, nostr.Filter{Kinds: []int{1}}, negentropy.Options{
		Direction: negentropy.Both,
		DryRun:    true,
		Timeout:   3 * time.Second,
	}, nil)

	require.Len(t, results, 1)
	require.ErrorIs(t, results[0].Err, negentropy.ErrNotSupported)
}
