package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// AuthHandler implements the NIP-42 challenge-response flow of spec.md
// §4.4: on an inbound AUTH challenge it builds and sends kind-22242 event
// signed over (relay URL, challenge); it also exposes Wait for the
// retry-once-after-auth-required policy.
type AuthHandler struct {
	relayURL string
	signer   Signer
	enabled  bool

	mu            sync.Mutex
	authenticated bool
	waiters       []chan struct{}
}

func NewAuthHandler(relayURL string, signer Signer, enabled bool) *AuthHandler {
	return &AuthHandler{relayURL: relayURL, signer: signer, enabled: enabled}
}

// BuildChallengeEvent constructs the unsigned NIP-42 auth event for a
// challenge string; kind 22242 per NIP-42, tags "relay" and "challenge".
func BuildChallengeEvent(relayURL, challenge string) *nostr.Event {
	return &nostr.Event{
		Kind:      22242,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags: nostr.Tags{
			{"relay", relayURL},
			{"challenge", challenge},
		},
	}
}

// HandleChallenge is invoked by the reader task on an inbound
// RelayAuthMsg. It returns the signed event to send as an AUTH frame, or
// an error if authentication isn't enabled/configured.
func (h *AuthHandler) HandleChallenge(ctx context.Context, challenge string) (*nostr.Event, error) {
	if !h.enabled || h.signer == nil {
		return nil, NewError(KindAuthenticationFailed, h.relayURL, fmt.Errorf("automatic authentication disabled"))
	}
	evt := BuildChallengeEvent(h.relayURL, challenge)
	pub, err := h.signer.PubKey(ctx)
	if err != nil {
		return nil, NewError(KindSigner, h.relayURL, err)
	}
	evt.PubKey = pub
	if err := h.signer.SignEvent(ctx, evt); err != nil {
		return nil, NewError(KindSigner, h.relayURL, err)
	}
	return evt, nil
}

// MarkAuthenticated records a successful OK for the auth event and wakes
// every goroutine blocked in Wait.
func (h *AuthHandler) MarkAuthenticated() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authenticated = true
	for _, w := range h.waiters {
		close(w)
	}
	h.waiters = nil
}

// Reset clears authenticated state, e.g. on reconnect.
func (h *AuthHandler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.authenticated = false
}

// Wait blocks until Authenticated fires or the timeout elapses, per
// spec.md §4.4's "waits up to wait_for_authentication_timeout for an
// Authenticated notification."
func (h *AuthHandler) Wait(ctx context.Context, timeout time.Duration) error {
	h.mu.Lock()
	if h.authenticated {
		h.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-time.After(timeout):
		return NewError(KindTimeout, h.relayURL, fmt.Errorf("timed out waiting for authentication"))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsAuthRequired reports whether an OK failure message carries NIP-42's
// "auth-required:" prefix.
func IsAuthRequired(message string) bool {
	return strings.HasPrefix(message, "auth-required")
}
