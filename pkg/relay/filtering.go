package relay

import "github.com/nbd-wtf/go-nostr"

// FilterMode selects how Filtering.Allows interprets its configured sets,
// grounded on the rust-nostr `filtering.rs` allow/deny-mode switch (see
// DESIGN.md "Supplemented features").
type FilterMode int

const (
	// ModeBlacklist rejects only entries present in the deny sets.
	ModeBlacklist FilterMode = iota
	// ModeWhitelist accepts only entries present in the allow sets.
	ModeWhitelist
)

// Filtering is an allow/deny list over event IDs and author public keys,
// consulted on every inbound event (spec.md §2 "RelayFiltering"). Each
// Relay owns its own Filtering (New builds an empty blacklist); a pool does
// not share one instance across its relays.
type Filtering struct {
	Mode    FilterMode
	EventIDs map[string]struct{}
	Authors  map[string]struct{}
}

// NewFiltering builds an empty Filtering in the given mode.
func NewFiltering(mode FilterMode) *Filtering {
	return &Filtering{
		Mode:     mode,
		EventIDs: make(map[string]struct{}),
		Authors:  make(map[string]struct{}),
	}
}

// AddEventID and AddAuthor register an entry in the configured set (deny
// set in blacklist mode, allow set in whitelist mode).
func (f *Filtering) AddEventID(id string)     { f.EventIDs[id] = struct{}{} }
func (f *Filtering) AddAuthor(pubkey string)   { f.Authors[pubkey] = struct{}{} }
func (f *Filtering) RemoveEventID(id string)   { delete(f.EventIDs, id) }
func (f *Filtering) RemoveAuthor(pubkey string) { delete(f.Authors, pubkey) }

// Allows reports whether an inbound event passes the filter.
func (f *Filtering) Allows(evt *nostr.Event) bool {
	if f == nil {
		return true
	}
	_, idListed := f.EventIDs[evt.ID]
	_, authorListed := f.Authors[evt.PubKey]
	listed := idListed || authorListed

	switch f.Mode {
	case ModeWhitelist:
		return listed
	default: // ModeBlacklist
		return !listed
	}
}
