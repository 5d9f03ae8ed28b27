// Package transport dials the WebSocket connection a relay supervisor rides
// on, per spec.md §2/§6 connection modes: direct, via a user-supplied SOCKS5
// proxy, or via a local Tor proxy for .onion relays.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/net/proxy"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

// Mode selects how a relay URL is dialed.
type Mode int

const (
	// ModeDirect dials the relay's TCP/TLS endpoint with no proxy.
	ModeDirect Mode = iota
	// ModeSOCKS5 routes the dial through a user-supplied SOCKS5 proxy.
	ModeSOCKS5
	// ModeTor routes the dial through a local Tor SOCKS proxy, used
	// automatically for .onion relay hosts (spec.md §2 "embedded Tor" — this
	// SDK never embeds a Tor client binary; it only knows how to speak to
	// one already running locally, see DESIGN.md Open Question resolution).
	ModeTor
)

// DefaultTorProxyAddr is the conventional local Tor SOCKS port.
const DefaultTorProxyAddr = "127.0.0.1:9050"

// Transport dials a relay URL and returns an open websocket connection.
type Transport interface {
	Dial(ctx context.Context, url relayurl.RelayURL) (*websocket.Conn, error)
}

// Options configures how Transport routes connections.
type Options struct {
	// Mode picks the default routing strategy for non-onion relays.
	Mode Mode
	// SOCKS5Addr is the proxy address used when Mode is ModeSOCKS5.
	SOCKS5Addr string
	// TorProxyAddr is the local Tor SOCKS proxy address, used automatically
	// for any .onion relay URL regardless of Mode. Defaults to
	// DefaultTorProxyAddr when empty.
	TorProxyAddr string
	// HandshakeTimeout bounds the WebSocket upgrade handshake.
	HandshakeTimeout time.Duration
	// Header carries any additional HTTP headers to send during the
	// handshake (e.g. a NIP-42-adjacent Origin override for relays that
	// require it).
	Header http.Header
}

const defaultHandshakeTimeout = 15 * time.Second

type dialer struct {
	opts Options
}

// New builds a Transport from the given Options.
func New(opts Options) Transport {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.TorProxyAddr == "" {
		opts.TorProxyAddr = DefaultTorProxyAddr
	}
	return &dialer{opts: opts}
}

func (d *dialer) Dial(ctx context.Context, u relayurl.RelayURL) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.HandshakeTimeout)
	defer cancel()

	httpClient := &http.Client{Timeout: d.opts.HandshakeTimeout}

	switch {
	case u.IsOnion() || d.opts.Mode == ModeTor:
		nd, err := proxy.SOCKS5("tcp", d.opts.TorProxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("transport: tor dialer: %w", err)
		}
		httpClient.Transport = socks5RoundTripper(nd)

	case d.opts.Mode == ModeSOCKS5:
		if d.opts.SOCKS5Addr == "" {
			return nil, fmt.Errorf("transport: ModeSOCKS5 requires SOCKS5Addr")
		}
		nd, err := proxy.SOCKS5("tcp", d.opts.SOCKS5Addr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("transport: socks5 dialer: %w", err)
		}
		httpClient.Transport = socks5RoundTripper(nd)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPClient: httpClient,
		HTTPHeader: d.opts.Header,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", u, err)
	}
	return conn, nil
}

// socks5RoundTripper adapts a proxy.Dialer (which has no context-aware
// DialContext) into an *http.Transport usable by the websocket handshake's
// HTTP client.
func socks5RoundTripper(nd proxy.Dialer) *http.Transport {
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return nd.Dial(network, addr)
		},
	}
}
