package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/pkg/config"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsForZeroFields(t *testing.T) {
	path := writeConfig(t, `
relays:
  seeds:
    - "wss://relay.example.com"
  policy:
    read: true
    write: false
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	opts := cfg.RelayOptions()
	require.True(t, opts.Read)
	require.False(t, opts.Write)
	require.Equal(t, relay.DefaultOptions().RetryInterval, opts.RetryInterval)
	require.Equal(t, relay.DefaultOptions().IdleTimeout, opts.IdleTimeout)
}

func TestLoadOverridesNamedFields(t *testing.T) {
	path := writeConfig(t, `
relays:
  seeds:
    - "wss://relay.example.com/"
  policy:
    connection_mode: socks5
    retry_interval_ms: 2500
    notification_channel_size: 128
gossip:
  enabled: true
  read_relays_per_user: 5
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	opts := cfg.RelayOptions()
	require.Equal(t, relay.ConnectionSOCKS5, opts.ConnectionMode)
	require.Equal(t, 2500*time.Millisecond, opts.RetryInterval)
	require.Equal(t, 128, opts.NotificationChannelSize)

	gopts, enabled := cfg.GossipOptions()
	require.True(t, enabled)
	require.Equal(t, 5, gopts.ReadRelaysPerUser)

	urls := cfg.SeedURLs()
	require.Len(t, urls, 1)
	require.Equal(t, "wss://relay.example.com", urls[0].String())
}

func TestEnvOverridesRedisURL(t *testing.T) {
	path := writeConfig(t, `
caching:
  enabled: true
  engine: memory
`)
	t.Setenv("NOSTRSDK_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis", cfg.Caching.Engine)
	require.Equal(t, "redis://localhost:6379/0", cfg.Caching.RedisURL)
}

func TestGossipEnabledByDefault(t *testing.T) {
	path := writeConfig(t, `relays: {seeds: []}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, enabled := cfg.GossipOptions()
	require.True(t, enabled, "Default() mirrors nostrsdk.DefaultOptions(), which enables gossip")
}

func TestCacheOptionsDisabledByDefault(t *testing.T) {
	path := writeConfig(t, `relays: {seeds: []}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	c, err := cfg.CacheOptions()
	require.NoError(t, err)
	require.Nil(t, c, "caching.enabled defaults to false, callers fall back to their own default")
}

func TestCacheOptionsBuildsConfiguredEngine(t *testing.T) {
	path := writeConfig(t, `
caching:
  enabled: true
  engine: memory
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	c, err := cfg.CacheOptions()
	require.NoError(t, err)
	require.NotNil(t, c)
	t.Cleanup(func() { _ = c.Close() })

	alreadySeen, err := c.MarkSeen(context.Background(), "abc")
	require.NoError(t, err)
	require.False(t, alreadySeen)
	alreadySeen, err = c.MarkSeen(context.Background(), "abc")
	require.NoError(t, err)
	require.True(t, alreadySeen)
}

func TestGossipCanBeDisabled(t *testing.T) {
	path := writeConfig(t, `
gossip:
  enabled: false
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, enabled := cfg.GossipOptions()
	require.False(t, enabled)
}
