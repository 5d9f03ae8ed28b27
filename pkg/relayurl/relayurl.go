// Package relayurl normalizes and compares relay WebSocket URLs.
//
// A RelayURL is the canonical key used everywhere a relay is addressed: the
// pool's relay map, the gossip store, per-relay stats. Two URLs that only
// differ in a trailing slash must compare equal, per the data model
// invariant in spec.md §3.
package relayurl

import (
	"fmt"
	"net/url"
	"strings"
)

// RelayURL is a normalized ws:// or wss:// URL. The zero value is invalid;
// construct one with Parse.
type RelayURL string

// Parse validates and normalizes a relay URL: it strips a trailing slash
// and rejects any scheme other than ws/wss. Host casing is preserved, per
// the URL spec (spec.md §6).
func Parse(raw string) (RelayURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("relayurl: empty url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("relayurl: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("relayurl: unsupported scheme %q", u.Scheme)
	}

	if u.Host == "" {
		return "", fmt.Errorf("relayurl: missing host in %q", raw)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	u.Fragment = ""

	return RelayURL(u.String()), nil
}

// MustParse panics on an invalid URL; intended for constant test fixtures.
func MustParse(raw string) RelayURL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Equal reports whether two relay URLs are the same relay once normalized.
func Equal(a, b RelayURL) bool {
	return string(a) == string(b)
}

// String implements fmt.Stringer and the flag.Value/map-key convenience.
func (r RelayURL) String() string {
	return string(r)
}

// IsOnion reports whether the relay's host is a Tor .onion address, used by
// pkg/transport to route .onion relays through the Tor proxy.
func (r RelayURL) IsOnion() bool {
	u, err := url.Parse(string(r))
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}
