package relayurl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNormalizesTrailingSlash(t *testing.T) {
	a, err := Parse("wss://relay.example.com/")
	require.NoError(t, err)

	b, err := Parse("wss://relay.example.com")
	require.NoError(t, err)

	require.True(t, Equal(a, b))
	require.Equal(t, "wss://relay.example.com", a.String())
}

func TestParseRejectsBadScheme(t *testing.T) {
	_, err := Parse("https://relay.example.com")
	require.Error(t, err)

	_, err = Parse("not a url at all \x7f")
	require.Error(t, err)
}

func TestParseIdempotentOnAlreadyNormalized(t *testing.T) {
	raw := "ws://127.0.0.1:8080"
	u, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, raw, u.String())
}

func TestIsOnion(t *testing.T) {
	onion := MustParse("ws://expyuzz4wqqyqhjn.onion")
	require.True(t, onion.IsOnion())

	clearnet := MustParse("wss://relay.damus.io")
	require.False(t, clearnet.IsOnion())
}
