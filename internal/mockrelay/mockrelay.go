// Package mockrelay is an in-process nostr relay used by this module's own
// tests (spec.md §8: "an in-process mock relay... exercised against the
// real connection/subscription/publish code paths"). It speaks just enough
// of the relay side of the wire protocol to drive pkg/relay, pkg/pool and
// pkg/negentropy end-to-end without a network.
package mockrelay

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/nbd-wtf/go-nostr"
)

// Behavior lets a test script the relay's handling of inbound frames beyond
// the default echo/OK/EOSE behavior.
type Behavior struct {
	// OnEvent, if set, replaces the default "store + OK true" handling of an
	// EVENT frame. Return the events to broadcast to matching subscribers
	// (nil to suppress) and whether to reply OK true.
	OnEvent func(evt *nostr.Event) (broadcast []*nostr.Event, ok bool, reason string)
	// RequireAuth, when true, answers every EVENT with OK false and every
	// REQ with CLOSED, both with an "auth-required: " reason, until the
	// connection sends any AUTH frame. The mock never issues a challenge and
	// neither checks nor acknowledges the AUTH event.
	RequireAuth bool
	// IgnoreFilters, when true, broadcasts matching REQ results regardless
	// of whether stored events actually match the filter (used to exercise
	// verify_subscriptions/ban_relay_on_mismatch in pkg/relay).
	IgnoreFilters bool
	// Negentropy, when true, makes NEG-OPEN reply with this relay's own
	// stored events matching the requested filter (encoded the same way
	// pkg/negentropy encodes its local fingerprint) instead of the default
	// NEG-ERR("unsupported") fallback, so tests can drive a real
	// reconciliation round-trip (spec.md §4.7, §8 scenario 6).
	Negentropy bool
}

// Relay is a minimal, single-process nostr relay backed by an
// httptest.Server, grounded on the supervisor/reader/writer shape this
// module's own pkg/relay client uses, mirrored here server-side.
type Relay struct {
	Server *httptest.Server
	URL    string

	behavior Behavior

	mu     sync.Mutex
	events []*nostr.Event
	conns  map[*conn]struct{}
}

type conn struct {
	ws            *websocket.Conn
	subs          map[string][]nostr.Filter
	authChallenge string
	authed        bool
}

// New starts a mock relay listening on an ephemeral local port.
func New(behavior Behavior) *Relay {
	r := &Relay{behavior: behavior, conns: make(map[*conn]struct{})}
	r.Server = httptest.NewServer(http.HandlerFunc(r.handle))
	r.URL = "ws" + r.Server.URL[len("http"):]
	return r
}

// Close tears down the relay's listener and every open connection.
func (r *Relay) Close() {
	r.mu.Lock()
	for c := range r.conns {
		_ = c.ws.Close(websocket.StatusNormalClosure, "relay closing")
	}
	r.mu.Unlock()
	r.Server.Close()
}

// BroadcastForTest pushes evt directly to every matching subscriber without
// storing it, standing in for a relay that emits events on its own
// initiative (used by tests that exercise verify_subscriptions/
// ban_relay_on_mismatch, where the relay's emissions never originate from a
// client EVENT frame).
func (r *Relay) BroadcastForTest(evt *nostr.Event) {
	r.broadcast(context.Background(), []*nostr.Event{evt})
}

// Seed pre-populates the relay's store with evt, as if a client had
// published it before any test connection was opened.
func (r *Relay) Seed(evt *nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns every event the relay has stored, in receipt order.
func (r *Relay) Events() []*nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*nostr.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Relay) handle(w http.ResponseWriter, req *http.Request) {
	ws, err := websocket.Accept(w, req, nil)
	if err != nil {
		return
	}
	c := &conn{ws: ws, subs: make(map[string][]nostr.Filter)}
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.conns, c)
		r.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := req.Context()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return
		}
		r.dispatch(ctx, c, data)
	}
}

func (r *Relay) dispatch(ctx context.Context, c *conn, data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
		return
	}
	var tag string
	_ = json.Unmarshal(frame[0], &tag)

	switch tag {
	case "EVENT":
		r.handleEvent(ctx, c, frame)
	case "REQ":
		r.handleReq(ctx, c, frame)
	case "CLOSE":
		if len(frame) >= 2 {
			var id string
			_ = json.Unmarshal(frame[1], &id)
			delete(c.subs, id)
		}
	case "AUTH":
		c.authed = true
	case "NEG-OPEN":
		r.handleNegOpen(ctx, c, frame)
	case "NEG-CLOSE":
	}
}

func (r *Relay) handleEvent(ctx context.Context, c *conn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var evt nostr.Event
	if err := json.Unmarshal(frame[1], &evt); err != nil {
		return
	}

	if r.behavior.RequireAuth && !c.authed {
		r.send(ctx, c, []any{"OK", evt.ID, false, "auth-required: please authenticate"})
		return
	}

	var broadcast []*nostr.Event
	ok, reason := true, ""
	if r.behavior.OnEvent != nil {
		broadcast, ok, reason = r.behavior.OnEvent(&evt)
	} else {
		r.mu.Lock()
		r.events = append(r.events, &evt)
		r.mu.Unlock()
		broadcast = []*nostr.Event{&evt}
	}

	r.send(ctx, c, []any{"OK", evt.ID, ok, reason})
	if len(broadcast) > 0 {
		r.broadcast(ctx, broadcast)
	}
}

func (r *Relay) handleReq(ctx context.Context, c *conn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var subID string
	_ = json.Unmarshal(frame[1], &subID)

	if r.behavior.RequireAuth && !c.authed {
		r.send(ctx, c, []any{"CLOSED", subID, "auth-required: please authenticate"})
		return
	}

	var filters []nostr.Filter
	for _, raw := range frame[2:] {
		var f nostr.Filter
		if err := json.Unmarshal(raw, &f); err == nil {
			filters = append(filters, f)
		}
	}
	c.subs[subID] = filters

	r.mu.Lock()
	stored := append([]*nostr.Event(nil), r.events...)
	r.mu.Unlock()

	for _, evt := range stored {
		if r.behavior.IgnoreFilters || matchesAny(evt, filters) {
			r.send(ctx, c, []any{"EVENT", subID, evt})
		}
	}
	r.send(ctx, c, []any{"EOSE", subID})
}

// handleNegOpen replies NEG-ERR("unsupported") by default, so clients
// exercise the fallback path of spec.md §4.7 "Opening". When
// Behavior.Negentropy is set it instead replies with its own stored events
// matching the requested filter, encoded the same way pkg/negentropy
// encodes its local fingerprint, followed by the empty NEG-MSG that
// signals the end of the exchange — enough of a real reconciliation peer
// to drive spec.md §8 scenario 6 end to end.
func (r *Relay) handleNegOpen(ctx context.Context, c *conn, frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var subID string
	_ = json.Unmarshal(frame[1], &subID)

	if !r.behavior.Negentropy {
		r.send(ctx, c, []any{"NEG-ERR", subID, "unsupported"})
		return
	}

	var filter nostr.Filter
	if len(frame) >= 3 {
		_ = json.Unmarshal(frame[2], &filter)
	}

	r.mu.Lock()
	stored := append([]*nostr.Event(nil), r.events...)
	r.mu.Unlock()

	var items []negItem
	for _, evt := range stored {
		if matchesAny(evt, []nostr.Filter{filter}) {
			items = append(items, negItem{id: evt.ID, createdAt: evt.CreatedAt})
		}
	}

	r.send(ctx, c, []any{"NEG-MSG", subID, encodeNegItems(items)})
	r.send(ctx, c, []any{"NEG-MSG", subID, ""})
}

// negItem is one (id, created_at) fingerprint record, mirroring
// pkg/negentropy's own item shape.
type negItem struct {
	id        string
	createdAt nostr.Timestamp
}

// encodeNegItems mirrors pkg/negentropy's encodeFingerprint: a hex string
// of 8-byte big-endian created_at followed by the 32-byte event id per
// item, sorted by (created_at, id) ascending. It is duplicated here rather
// than imported so this server-side mock has no compile-time dependency on
// the client-side engine it's exercising, the same separation the rest of
// this file keeps from pkg/relay's reader/writer/dispatch code.
func encodeNegItems(items []negItem) string {
	sort.Slice(items, func(i, j int) bool {
		if items[i].createdAt != items[j].createdAt {
			return items[i].createdAt < items[j].createdAt
		}
		return items[i].id < items[j].id
	})
	var b strings.Builder
	for _, it := range items {
		idBytes, err := hex.DecodeString(it.id)
		if err != nil || len(idBytes) != 32 {
			continue
		}
		var tsBuf [8]byte
		ts := uint64(it.createdAt)
		for i := 7; i >= 0; i-- {
			tsBuf[i] = byte(ts)
			ts >>= 8
		}
		b.WriteString(hex.EncodeToString(tsBuf[:]))
		b.WriteString(it.id)
	}
	return b.String()
}

func (r *Relay) broadcast(ctx context.Context, events []*nostr.Event) {
	r.mu.Lock()
	conns := make([]*conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		for subID, filters := range c.subs {
			for _, evt := range events {
				if r.behavior.IgnoreFilters || matchesAny(evt, filters) {
					r.send(ctx, c, []any{"EVENT", subID, evt})
				}
			}
		}
	}
}

func (r *Relay) send(ctx context.Context, c *conn, frame []any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_ = c.ws.Write(ctx, websocket.MessageText, data)
}

func matchesAny(evt *nostr.Event, filters []nostr.Filter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}
