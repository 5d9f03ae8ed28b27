// Package config loads SDK-wide configuration from a YAML file with
// environment-variable overrides, grounded on internal/config/config.go in
// the teacher tree (Load/applyDefaults/applyEnvOverrides), adapted from
// "site/protocols/relays" keys to this SDK's Options/relay-policy keys
// (spec.md §6's configuration enumeration).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sandwichfarm/nostr-sdk/pkg/cache"
	"github.com/sandwichfarm/nostr-sdk/pkg/gossip"
	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// Relays is the YAML shape for a list of seed relay URLs and the shared
// policy applied to every one of them, mirroring the teacher's
// `Relays{Seeds, Policy}` struct.
type Relays struct {
	Seeds  []string     `yaml:"seeds"`
	Policy RelayPolicy  `yaml:"policy"`
}

// RelayPolicy carries spec.md §6's per-relay options table in YAML form.
type RelayPolicy struct {
	ConnectionMode          string `yaml:"connection_mode"`
	Read                    bool   `yaml:"read"`
	Write                   bool   `yaml:"write"`
	Ping                    bool   `yaml:"ping"`
	Reconnect               bool   `yaml:"reconnect"`
	RetryIntervalMs         int    `yaml:"retry_interval_ms"`
	AdjustRetryInterval     bool   `yaml:"adjust_retry_interval"`
	MaxAvgLatencyMs         int    `yaml:"max_avg_latency_ms"`
	VerifySubscriptions     bool   `yaml:"verify_subscriptions"`
	BanRelayOnMismatch      bool   `yaml:"ban_relay_on_mismatch"`
	NotificationChannelSize int    `yaml:"notification_channel_size"`
	SleepWhenIdle           bool   `yaml:"sleep_when_idle"`
	IdleTimeoutSec          int    `yaml:"idle_timeout_sec"`
	AutomaticAuthentication bool   `yaml:"automatic_authentication"`
}

// Caching mirrors the teacher's `Caching{Engine: memory|redis, RedisURL}`
// struct (internal/config/config.go), consumed by pkg/cache.
type Caching struct {
	Enabled  bool   `yaml:"enabled"`
	Engine   string `yaml:"engine"` // memory|redis
	RedisURL string `yaml:"redis_url"`
}

// Gossip mirrors spec.md §4.8's Query defaults.
type Gossip struct {
	Enabled               bool     `yaml:"enabled"`
	ReadRelaysPerUser     int      `yaml:"read_relays_per_user"`
	WriteRelaysPerUser    int      `yaml:"write_relays_per_user"`
	HintRelaysPerUser     int      `yaml:"hint_relays_per_user"`
	MostUsedRelaysPerUser int      `yaml:"most_used_relays_per_user"`
	AllowedRelays         []string `yaml:"allowed_relays"`
}

// Logging mirrors the teacher's `Logging{Level, Format}` struct.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text|json
}

// Config is the complete SDK-wide configuration document.
type Config struct {
	Relays  Relays  `yaml:"relays"`
	Caching Caching `yaml:"caching"`
	Gossip  Gossip  `yaml:"gossip"`
	Logging Logging `yaml:"logging"`
}

// Default returns a configuration with the same defaults as
// relay.DefaultOptions/gossip.DefaultOptions, for callers that want a
// starting point before applying a file.
func Default() *Config {
	opts := relay.DefaultOptions()
	gopts := gossip.DefaultOptions()
	return &Config{
		Relays: Relays{
			Policy: RelayPolicy{
				ConnectionMode:          "direct",
				Read:                    opts.Read,
				Write:                   opts.Write,
				Ping:                    opts.Ping,
				Reconnect:               opts.Reconnect,
				RetryIntervalMs:         int(opts.RetryInterval / time.Millisecond),
				AdjustRetryInterval:     opts.AdjustRetryInterval,
				VerifySubscriptions:     opts.VerifySubscriptions,
				BanRelayOnMismatch:      opts.BanRelayOnMismatch,
				NotificationChannelSize: opts.NotificationChannelSize,
				SleepWhenIdle:           opts.SleepWhenIdle,
				IdleTimeoutSec:          int(opts.IdleTimeout / time.Second),
				AutomaticAuthentication: opts.AutomaticAuthentication,
			},
		},
		Caching: Caching{Enabled: false, Engine: "memory"},
		Gossip: Gossip{
			Enabled:               true,
			ReadRelaysPerUser:     gopts.ReadRelaysPerUser,
			WriteRelaysPerUser:    gopts.WriteRelaysPerUser,
			HintRelaysPerUser:     gopts.HintRelaysPerUser,
			MostUsedRelaysPerUser: gopts.MostUsedRelaysPerUser,
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads and parses path, applies defaults for zero-valued fields, then
// applies environment-variable overrides, per the teacher's
// Load/applyDefaults/applyEnvOverrides sequence.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides mirrors the teacher's NOPHR_-prefixed override pattern,
// renamed to this SDK's own NOSTRSDK_ prefix.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NOSTRSDK_REDIS_URL"); v != "" {
		cfg.Caching.RedisURL = v
		cfg.Caching.Engine = "redis"
	}
	if v := os.Getenv("NOSTRSDK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("NOSTRSDK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("NOSTRSDK_RETRY_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Relays.Policy.RetryIntervalMs = n
		}
	}
}

// SeedURLs parses Relays.Seeds into relayurl.RelayURL, dropping (and
// skipping) any entry that fails to parse rather than failing Load itself.
func (c *Config) SeedURLs() []relayurl.RelayURL {
	out := make([]relayurl.RelayURL, 0, len(c.Relays.Seeds))
	for _, raw := range c.Relays.Seeds {
		u, err := relayurl.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

// RelayOptions converts the YAML policy into a relay.Options, layered on
// relay.DefaultOptions for any zero-valued duration/size field.
func (c *Config) RelayOptions() relay.Options {
	opts := relay.DefaultOptions()
	p := c.Relays.Policy

	opts.Read = p.Read
	opts.Write = p.Write
	opts.Ping = p.Ping
	opts.Reconnect = p.Reconnect
	opts.AdjustRetryInterval = p.AdjustRetryInterval
	opts.VerifySubscriptions = p.VerifySubscriptions
	opts.BanRelayOnMismatch = p.BanRelayOnMismatch
	opts.SleepWhenIdle = p.SleepWhenIdle
	opts.AutomaticAuthentication = p.AutomaticAuthentication

	if p.RetryIntervalMs > 0 {
		opts.RetryInterval = time.Duration(p.RetryIntervalMs) * time.Millisecond
	}
	if p.MaxAvgLatencyMs > 0 {
		opts.MaxAvgLatency = time.Duration(p.MaxAvgLatencyMs) * time.Millisecond
	}
	if p.NotificationChannelSize > 0 {
		opts.NotificationChannelSize = p.NotificationChannelSize
	}
	if p.IdleTimeoutSec > 0 {
		opts.IdleTimeout = time.Duration(p.IdleTimeoutSec) * time.Second
	}
	switch p.ConnectionMode {
	case "socks5":
		opts.ConnectionMode = relay.ConnectionSOCKS5
	case "tor":
		opts.ConnectionMode = relay.ConnectionTor
	default:
		opts.ConnectionMode = relay.ConnectionDirect
	}
	return opts
}

// CacheOptions builds the SeenCache the YAML caching block describes,
// mirroring RelayOptions/GossipOptions, and actually instantiating the
// engine it names (pkg/cache.New) instead of leaving it a declared-but-dead
// config surface. Returns (nil, nil) when caching is disabled, matching
// Pool/Client's nil-means-"use the default in-process LRU" convention.
func (c *Config) CacheOptions() (cache.SeenCache, error) {
	if !c.Caching.Enabled {
		return nil, nil
	}
	return cache.New(c.Caching.Engine, c.Caching.RedisURL, 0)
}

// GossipOptions converts the YAML gossip block into gossip.Options. Returns
// (opts, false) when gossip is disabled, mirroring Client/Pool's nil-means-
// disabled convention.
func (c *Config) GossipOptions() (gossip.Options, bool) {
	if !c.Gossip.Enabled {
		return gossip.Options{}, false
	}
	opts := gossip.DefaultOptions()
	if c.Gossip.ReadRelaysPerUser > 0 {
		opts.ReadRelaysPerUser = c.Gossip.ReadRelaysPerUser
	}
	if c.Gossip.WriteRelaysPerUser > 0 {
		opts.WriteRelaysPerUser = c.Gossip.WriteRelaysPerUser
	}
	if c.Gossip.HintRelaysPerUser > 0 {
		opts.HintRelaysPerUser = c.Gossip.HintRelaysPerUser
	}
	if c.Gossip.MostUsedRelaysPerUser > 0 {
		opts.MostUsedRelaysPerUser = c.Gossip.MostUsedRelaysPerUser
	}
	for _, raw := range c.Gossip.AllowedRelays {
		u, err := relayurl.Parse(raw)
		if err != nil {
			continue
		}
		opts.AllowedRelays = append(opts.AllowedRelays, u)
	}
	return opts, true
}
