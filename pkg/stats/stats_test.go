package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCapabilitiesSetClearHas(t *testing.T) {
	c := NewCapabilities(Read | Write)
	require.True(t, c.Has(Read))
	require.True(t, c.Has(Write))
	require.False(t, c.Has(Gossip))

	c.Set(Gossip)
	require.True(t, c.Has(Read | Write | Gossip))

	c.Clear(Write)
	require.False(t, c.Has(Write))
	require.True(t, c.HasAny(Read | Write))
}

func TestAverageLatencyRequiresMinSamples(t *testing.T) {
	var s Stats
	for i := 0; i < minLatencySamples-1; i++ {
		s.RecordLatency(10 * time.Millisecond)
	}
	_, ok := s.AverageLatency()
	require.False(t, ok)

	s.RecordLatency(10 * time.Millisecond)
	avg, ok := s.AverageLatency()
	require.True(t, ok)
	require.Equal(t, 10*time.Millisecond, avg)
}

func TestRecordConnectedStampsFirstOnce(t *testing.T) {
	var s Stats
	t1 := time.Now()
	s.RecordConnected(t1)
	t2 := t1.Add(time.Minute)
	s.RecordConnected(t2)

	require.Equal(t, t1.UnixNano(), s.FirstConnection().UnixNano())
	require.Equal(t, t2.UnixNano(), s.LastConnection().UnixNano())
	require.EqualValues(t, 2, s.SuccessCount.Load())
}
