package relay

import "time"

// ConnectionMode records a relay's configured connection mode. The
// transport does not read it: how a relay is dialed is set by
// transport.Options (pool.Options.Transport) for all relays of a pool.
type ConnectionMode int

const (
	ConnectionDirect ConnectionMode = iota
	ConnectionSOCKS5
	ConnectionTor
)

// Options enumerates every configuration row of spec.md §6's table, with
// the same defaults, exactly as SPEC_FULL.md §6 requires.
type Options struct {
	ConnectionMode ConnectionMode

	Read  bool
	Write bool
	Ping  bool

	Reconnect            bool
	RetryInterval         time.Duration
	AdjustRetryInterval   bool

	Limits Limits

	// MaxAvgLatency kicks the relay to Banned when set and exceeded; zero
	// disables the check ("none" in spec.md §6).
	MaxAvgLatency time.Duration

	VerifySubscriptions bool
	BanRelayOnMismatch  bool

	NotificationChannelSize int

	SleepWhenIdle bool
	IdleTimeout   time.Duration

	// DialTimeout bounds the transport handshake; not in the spec's table
	// directly but referenced throughout §4.1 ("configured dial timeout").
	DialTimeout time.Duration

	// PingInterval defaults to RetryInterval rounded up to at least 15s
	// when zero, per the Open Question resolution recorded in DESIGN.md.
	PingInterval time.Duration

	// AutomaticAuthentication enables the NIP-42 challenge-response flow
	// of spec.md §4.4.
	AutomaticAuthentication bool

	// WaitForAuthenticationTimeout bounds how long a send waits for an
	// Authenticated notification before retrying, per spec.md §4.4 and the
	// rust-nostr NIP42_AUTO_AUTHENTICATION default recorded in DESIGN.md.
	WaitForAuthenticationTimeout time.Duration
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() Options {
	return Options{
		ConnectionMode:               ConnectionDirect,
		Read:                         true,
		Write:                        true,
		Ping:                         true,
		Reconnect:                    true,
		RetryInterval:                10 * time.Second,
		AdjustRetryInterval:          true,
		Limits:                       DefaultLimits(),
		MaxAvgLatency:                0,
		VerifySubscriptions:          false,
		BanRelayOnMismatch:           false,
		NotificationChannelSize:      4096,
		SleepWhenIdle:                false,
		IdleTimeout:                  5 * time.Minute,
		DialTimeout:                  10 * time.Second,
		PingInterval:                 0,
		AutomaticAuthentication:      false,
		WaitForAuthenticationTimeout: 10 * time.Second,
	}
}

// effectivePingInterval resolves the Open Question: ping interval defaults
// to RetryInterval rounded up to at least 15s.
func (o Options) effectivePingInterval() time.Duration {
	if o.PingInterval > 0 {
		return o.PingInterval
	}
	if o.RetryInterval < 15*time.Second {
		return 15 * time.Second
	}
	return o.RetryInterval
}

const (
	maxRetryInterval       = 60 * time.Second
	retryIntervalGrowth    = 1.5
)

// nextRetryInterval implements the adjust_retry_interval Open Question
// resolution: 1.5x per consecutive failure, clamped to [base, 60s].
func nextRetryInterval(base time.Duration, consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return base
	}
	d := float64(base)
	for i := 0; i < consecutiveFailures; i++ {
		d *= retryIntervalGrowth
	}
	interval := time.Duration(d)
	if interval > maxRetryInterval {
		return maxRetryInterval
	}
	if interval < base {
		return base
	}
	return interval
}
