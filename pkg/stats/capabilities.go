// Package stats holds the atomic counters and capability flags the pool and
// supervisor consult on every hot path: how a relay is selected for
// broadcast (spec.md §3 "Relay capability set") and how its health is
// judged (spec.md §3 "Connection stats").
package stats

import "go.uber.org/atomic"

// Capability is a single bit in a relay's capability mask.
type Capability uint32

const (
	Read Capability = 1 << iota
	Write
	Ping
	Gossip
	Discovery

	// All ORs every defined capability together; used by the pool to
	// answer "how many relays does this pool manage at all" (spec.md §8
	// quantified invariant: relay_urls_with_any_cap(ALL).len() == relays.len()).
	All = Read | Write | Ping | Gossip | Discovery
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "READ"
	case Write:
		return "WRITE"
	case Ping:
		return "PING"
	case Gossip:
		return "GOSSIP"
	case Discovery:
		return "DISCOVERY"
	default:
		return "MIXED"
	}
}

// Capabilities is an atomically mutable bitset of Capability flags.
type Capabilities struct {
	bits atomic.Uint32
}

// NewCapabilities builds a Capabilities initialized to the given mask.
func NewCapabilities(mask Capability) *Capabilities {
	c := &Capabilities{}
	c.bits.Store(uint32(mask))
	return c
}

// Has reports whether every bit in mask is set.
func (c *Capabilities) Has(mask Capability) bool {
	return Capability(c.bits.Load())&mask == mask
}

// HasAny reports whether at least one bit in mask is set.
func (c *Capabilities) HasAny(mask Capability) bool {
	return Capability(c.bits.Load())&mask != 0
}

// Set atomically ORs mask into the capability set.
func (c *Capabilities) Set(mask Capability) {
	for {
		old := c.bits.Load()
		next := old | uint32(mask)
		if c.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Clear atomically clears every bit in mask.
func (c *Capabilities) Clear(mask Capability) {
	for {
		old := c.bits.Load()
		next := old &^ uint32(mask)
		if c.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Load returns the current capability mask.
func (c *Capabilities) Load() Capability {
	return Capability(c.bits.Load())
}
