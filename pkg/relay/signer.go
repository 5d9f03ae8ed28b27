package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Signer is the pluggable capability interface spec.md §9 calls for
// ("dynamic dispatch ... signer ... interfaces when the set is open").
type Signer interface {
	PubKey(ctx context.Context) (string, error)
	SignEvent(ctx context.Context, evt *nostr.Event) error
}

// KeySigner is the default Signer, backed directly by go-nostr's own key
// and signing primitives — the external collaborator spec.md §1 names for
// "the specific cryptographic primitives."
type KeySigner struct {
	sk string
}

// NewKeySigner wraps a hex secret key.
func NewKeySigner(secretKeyHex string) *KeySigner {
	return &KeySigner{sk: secretKeyHex}
}

func (s *KeySigner) PubKey(ctx context.Context) (string, error) {
	return nostr.GetPublicKey(s.sk)
}

func (s *KeySigner) SignEvent(ctx context.Context, evt *nostr.Event) error {
	return evt.Sign(s.sk)
}
