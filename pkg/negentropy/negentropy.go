// Package negentropy implements the set-reconciliation protocol of
// spec.md §4.7: the client opens a reconciliation session over a filter,
// exchanges fingerprint messages with the relay, and accumulates the ids
// the local side has that the relay lacks (have_ids) and the ids the relay
// has that the local side lacks (need_ids), then optionally publishes or
// fetches the difference.
//
// Grounded on internal/sync/negentropy.go's capability-detection-then-
// fallback shape from the original nophr tree (NegentropySync,
// isNegentropyUnsupportedError, see DESIGN.md), but reimplemented directly
// against this SDK's own NEG-OPEN/NEG-MSG/NEG-CLOSE wire frames rather than
// delegated to go-nostr's nip77 package, since the reconciliation protocol
// itself is core scope per spec.md §1.
package negentropy

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/relay"
	"github.com/sandwichfarm/nostr-sdk/pkg/store"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// Direction selects which side of the diff gets acted on, per spec.md §4.7.
type Direction int

const (
	Up Direction = iota
	Down
	Both
)

// Batch sizes and backpressure watermarks named in spec.md §4.7.
const (
	UpBatch     = 50
	DownBatch   = 50
	UpHighWater = 100
	UpLowWater  = 20
)

// initialTimeout bounds how long Sync waits for the relay's first NEG-MSG
// (or a NEG-ERR "unsupported") before reporting ErrNotSupported.
const initialTimeout = 10 * time.Second

// ErrNotSupported is returned when the relay rejects NEG-OPEN or never
// replies inside initialTimeout, per spec.md §4.7 "Opening".
var ErrNotSupported = fmt.Errorf("negentropy: relay does not support set reconciliation")

// Progress is reported after each exchange batch, per spec.md §4.7
// "Progress".
type Progress struct {
	Total   int
	Current int
}

// Options configures one Sync call.
type Options struct {
	Direction   Direction
	DryRun      bool
	Timeout     time.Duration
	ProgressCh  chan<- Progress
	FetchEvents func(ctx context.Context, ids []string) ([]*nostr.Event, error)
}

// Result is what Sync returns: the ids only the local side had and the ids
// only the relay had, at the moment reconciliation completed.
type Result struct {
	HaveIDs []string
	NeedIDs []string
}

// Engine drives one-off reconciliation sessions against a single relay.
type Engine struct {
	relay *relay.Relay
	store store.EventStore
}

// New builds an Engine bound to a relay connection and a local store used
// to compute the initial fingerprint and to save fetched events.
func New(r *relay.Relay, s store.EventStore) *Engine {
	return &Engine{relay: r, store: s}
}

// Sync runs one reconciliation session for filter against e's relay,
// per spec.md §4.7's Opening/Exchange/Direction/Progress/Termination.
func (e *Engine) Sync(ctx context.Context, subID string, filter nostr.Filter, opts Options) (Result, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	localItems, err := e.store.QueryForReconciliation(ctx, filter)
	if err != nil {
		return Result{}, fmt.Errorf("negentropy: load local items: %w", err)
	}

	inbox := make(chan wire.RelayMessage, 64)
	e.relay.SetNegentropyForwarder(func(msg wire.RelayMessage) {
		select {
		case inbox <- msg:
		default:
		}
	})
	defer e.relay.SetNegentropyForwarder(nil)

	initial := encodeFingerprint(localItems)
	openMsg := wire.NegOpenMsg{SubID: subID, Filter: filter, InitialMsgHex: initial}
	if err := e.relay.SendMsg(ctx, openMsg, 0); err != nil {
		return Result{}, fmt.Errorf("negentropy: send NEG-OPEN: %w", err)
	}
	defer e.sendClose(subID)

	remote := make(map[string]nostr.Timestamp)
	local := itemsToMap(localItems)

	initCtx, initCancel := context.WithTimeout(ctx, initialTimeout)
	defer initCancel()

	first, err := waitMsg(initCtx, inbox)
	if err != nil {
		return Result{}, ErrNotSupported
	}
	if err := applyMessage(first, subID, remote); err != nil {
		return Result{}, err
	}

	for {
		done, err := e.step(ctx, subID, inbox, remote)
		if err != nil {
			return Result{}, err
		}
		if done {
			break
		}
	}

	haveIDs, needIDs := diff(local, remote)
	result := Result{HaveIDs: haveIDs, NeedIDs: needIDs}

	if err := e.actOnDiff(ctx, result, opts); err != nil {
		return result, err
	}
	return result, nil
}

// step waits for the next NEG-MSG/NEG-ERR and folds it into remote,
// reporting progress, and returns done=true once the relay has signaled
// the end of the exchange (an empty follow-up message).
func (e *Engine) step(ctx context.Context, subID string, inbox chan wire.RelayMessage, remote map[string]nostr.Timestamp) (bool, error) {
	select {
	case msg := <-inbox:
		if err := applyMessage(msg, subID, remote); err != nil {
			return false, err
		}
		if negMsg, ok := msg.(wire.NegMsgMsg); ok && negMsg.MsgHex == "" {
			return true, nil
		}
		return false, nil
	case <-ctx.Done():
		return false, fmt.Errorf("negentropy: %w", ctx.Err())
	}
}

func (e *Engine) sendClose(subID string) {
	_ = e.relay.SendMsg(context.Background(), wire.NegCloseMsg{SubID: subID}, 0)
}

// actOnDiff publishes haveIDs (Up) and/or fetches needIDs (Down), honoring
// DryRun and reporting batch progress, per spec.md §4.7.
func (e *Engine) actOnDiff(ctx context.Context, diff Result, opts Options) error {
	total := 0
	if opts.Direction == Up || opts.Direction == Both {
		total += len(diff.HaveIDs)
	}
	if opts.Direction == Down || opts.Direction == Both {
		total += len(diff.NeedIDs)
	}
	current := 0
	report := func(n int) {
		current += n
		if opts.ProgressCh != nil {
			select {
			case opts.ProgressCh <- Progress{Total: total, Current: current}:
			default:
			}
		}
	}

	if opts.DryRun {
		report(total)
		return nil
	}

	if opts.Direction == Up || opts.Direction == Both {
		if err := e.publishBatches(ctx, diff.HaveIDs, report); err != nil {
			return err
		}
	}
	if opts.Direction == Down || opts.Direction == Both {
		if err := e.fetchBatches(ctx, diff.NeedIDs, opts.FetchEvents, report); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) publishBatches(ctx context.Context, ids []string, report func(int)) error {
	inFlight := 0
	for i := 0; i < len(ids); i += UpBatch {
		end := i + UpBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		for _, id := range batch {
			evts, err := e.store.QueryEvents(ctx, nostr.Filter{IDs: []string{id}, Limit: 1})
			if err != nil || len(evts) == 0 {
				continue
			}
			if err := e.relay.SendEvent(ctx, evts[0]); err != nil {
				continue
			}
			inFlight++
			if inFlight >= UpHighWater {
				inFlight = UpLowWater
			}
		}
		report(len(batch))
	}
	return nil
}

func (e *Engine) fetchBatches(ctx context.Context, ids []string, fetch func(context.Context, []string) ([]*nostr.Event, error), report func(int)) error {
	if fetch == nil {
		report(len(ids))
		return nil
	}
	for i := 0; i < len(ids); i += DownBatch {
		end := i + DownBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		evts, err := fetch(ctx, batch)
		if err != nil {
			return fmt.Errorf("negentropy: fetch batch: %w", err)
		}
		for _, evt := range evts {
			_, _ = e.store.SaveEvent(ctx, evt)
		}
		report(len(batch))
	}
	return nil
}

func applyMessage(msg wire.RelayMessage, subID string, remote map[string]nostr.Timestamp) error {
	switch m := msg.(type) {
	case wire.NegMsgMsg:
		if m.SubID != subID {
			return nil
		}
		for id, ts := range decodeFingerprint(m.MsgHex) {
			remote[id] = ts
		}
		return nil
	case wire.NegErrMsg:
		if strings.Contains(strings.ToLower(m.Message), "unsupported") {
			return ErrNotSupported
		}
		return fmt.Errorf("negentropy: NEG-ERR: %s", m.Message)
	default:
		return nil
	}
}

func waitMsg(ctx context.Context, inbox chan wire.RelayMessage) (wire.RelayMessage, error) {
	select {
	case msg := <-inbox:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func itemsToMap(items []store.Item) map[string]nostr.Timestamp {
	m := make(map[string]nostr.Timestamp, len(items))
	for _, it := range items {
		m[it.ID] = it.CreatedAt
	}
	return m
}

// diff returns (haveIDs, needIDs): ids present locally but not remotely,
// and ids present remotely but not locally.
func diff(local, remote map[string]nostr.Timestamp) (haveIDs, needIDs []string) {
	for id := range local {
		if _, ok := remote[id]; !ok {
			haveIDs = append(haveIDs, id)
		}
	}
	for id := range remote {
		if _, ok := local[id]; !ok {
			needIDs = append(needIDs, id)
		}
	}
	sort.Strings(haveIDs)
	sort.Strings(needIDs)
	return haveIDs, needIDs
}

// encodeFingerprint and decodeFingerprint implement this SDK's own
// simplified item-list wire encoding for NEG-OPEN/NEG-MSG payloads: a
// hex string of concatenated 8-byte big-endian timestamps followed by the
// 32-byte event id, sorted by (created_at, id) ascending. This is not
// byte-compatible with the upstream negentropy range-fingerprint protocol.
func encodeFingerprint(items []store.Item) string {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt < items[j].CreatedAt
		}
		return items[i].ID < items[j].ID
	})
	var b strings.Builder
	for _, it := range items {
		idBytes, err := hex.DecodeString(it.ID)
		if err != nil || len(idBytes) != 32 {
			continue
		}
		var tsBuf [8]byte
		putUint64(tsBuf[:], uint64(it.CreatedAt))
		b.WriteString(hex.EncodeToString(tsBuf[:]))
		b.WriteString(it.ID)
	}
	return b.String()
}

func decodeFingerprint(msgHex string) map[string]nostr.Timestamp {
	out := make(map[string]nostr.Timestamp)
	const recordHexLen = 16 + 64 // 8-byte ts + 32-byte id, hex-encoded
	for i := 0; i+recordHexLen <= len(msgHex); i += recordHexLen {
		tsHex := msgHex[i : i+16]
		idHex := msgHex[i+16 : i+recordHexLen]
		tsBytes, err := hex.DecodeString(tsHex)
		if err != nil || len(tsBytes) != 8 {
			continue
		}
		out[idHex] = nostr.Timestamp(getUint64(tsBytes))
	}
	return out
}

func putUint64(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
