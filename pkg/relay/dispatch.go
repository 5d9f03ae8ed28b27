package relay

import (
	"context"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// dispatch routes one decoded relay frame to the subscription manager, the
// auth handler, or the OK-waiter table, per spec.md §4.1's reader-task
// responsibilities and §4.3's verification/ban-on-mismatch rule.
func (r *Relay) dispatch(ctx context.Context, msg wire.RelayMessage) {
	switch m := msg.(type) {
	case wire.RelayEventMsg:
		r.handleEvent(m)

	case wire.EOSEMsg:
		r.handleEose(m.SubID)

	case wire.ClosedMsg:
		r.handleClosed(m.SubID, m.Message)

	case wire.NoticeMsg:
		r.log.Info().Str("notice", m.Message).Msg("relay notice")

	case wire.OKMsg:
		r.handleOK(m)

	case wire.RelayAuthMsg:
		r.handleAuthChallenge(ctx, m.Challenge)

	case wire.RelayCountMsg, wire.NegMsgMsg, wire.NegErrMsg:
		r.emit(Notification{Kind: NotifyMessage})
		r.forwardNegentropy(msg)
	}
}

// negentropyForwarder receives NEG-MSG/NEG-ERR frames for the engine
// wired in via SetNegentropyForwarder; nil until pkg/negentropy attaches
// one (the relay has no compile-time dependency on pkg/negentropy, per
// spec.md §9's "no back-pointer" ownership rule).
type negentropyForwarder func(msg wire.RelayMessage)

func (r *Relay) forwardNegentropy(msg wire.RelayMessage) {
	r.mu.Lock()
	fwd := r.negFwd
	r.mu.Unlock()
	if fwd != nil {
		fwd(msg)
	}
}

// SetNegentropyForwarder wires a callback that receives every NEG-MSG and
// NEG-ERR frame this relay decodes, used by pkg/negentropy.Engine.
func (r *Relay) SetNegentropyForwarder(fn func(msg wire.RelayMessage)) {
	r.mu.Lock()
	r.negFwd = fn
	r.mu.Unlock()
}

func (r *Relay) handleEvent(m wire.RelayEventMsg) {
	sub, ok := r.subs.Get(m.SubID)
	if !ok {
		return // no active subscription, drop silently
	}
	if !r.Filtering.Allows(m.Event) {
		r.log.Debug().Str("event", m.Event.ID).Msg("event rejected by relay filtering")
		return
	}
	if r.Opts.VerifySubscriptions {
		if !matchesAny(sub.Filters, m.Event) {
			r.log.Warn().Str("sub", m.SubID).Msg("event failed subscription verification")
			if r.Opts.BanRelayOnMismatch {
				r.Ban()
			}
			return
		}
	}
	sub.lastActivity = time.Now()
	if sub.eoseSeen {
		sub.eventsSinceEose++
	}
	sub.sendActivity(Activity{Kind: ActivityReceivedEvent, Event: m.Event})
	r.emit(Notification{Kind: NotifyEvent, SubID: m.SubID, Event: m.Event})

	if sub.AutoClose.Kind == WaitForEventsAfterEose && sub.eoseSeen && sub.eventsSinceEose >= sub.AutoClose.N {
		r.closeSubscription(sub.ID, "auto-close: event count reached")
	}
}

func (r *Relay) handleEose(subID string) {
	sub, ok := r.subs.Get(subID)
	if !ok {
		return
	}
	sub.eoseSeen = true
	sub.sendActivity(Activity{Kind: ActivityEose})

	switch sub.AutoClose.Kind {
	case ExitOnEose:
		r.closeSubscription(subID, "auto-close: eose")
	case WaitDurationAfterEose:
		d := sub.AutoClose.Duration
		go func() {
			select {
			case <-time.After(d):
				r.closeSubscription(subID, "auto-close: duration elapsed")
			case <-r.stopCh:
			}
		}()
	}
}

func (r *Relay) handleClosed(subID, reason string) {
	if sub, ok := r.subs.Get(subID); ok {
		sub.sendActivity(Activity{Kind: ActivityClosed, Reason: reason})
	}
	r.subs.Remove(subID)
}

func (r *Relay) handleOK(m wire.OKMsg) {
	r.okMu.Lock()
	ch, ok := r.okWaiters[m.EventID]
	if ok {
		delete(r.okWaiters, m.EventID)
	}
	r.okMu.Unlock()
	if ok {
		ch <- m
		close(ch)
	}
}

func (r *Relay) handleAuthChallenge(ctx context.Context, challenge string) {
	evt, err := r.auth.HandleChallenge(ctx, challenge)
	if err != nil {
		r.log.Debug().Err(err).Msg("auth challenge received, not auto-authenticating")
		return
	}
	authMsg := wire.AuthMsg{Event: evt}
	frame, err := authMsg.MarshalFrame()
	if err != nil {
		return
	}
	waiter := r.registerOKWaiter(evt.ID)
	if err := r.enqueue(ctx, frame, nil); err != nil {
		return
	}
	go func() {
		select {
		case ok := <-waiter:
			if ok.OK {
				r.auth.MarkAuthenticated()
				r.emit(Notification{Kind: NotifyAuthenticated})
			}
		case <-time.After(r.Opts.WaitForAuthenticationTimeout):
		}
	}()
}

func (r *Relay) registerOKWaiter(eventID string) chan wire.OKMsg {
	ch := make(chan wire.OKMsg, 1)
	r.okMu.Lock()
	r.okWaiters[eventID] = ch
	r.okMu.Unlock()
	return ch
}

// matchesAny reports whether evt satisfies at least one filter in the set,
// per spec.md §4.3 "matched against the subscription's filter set."
func matchesAny(filters []nostr.Filter, evt *nostr.Event) bool {
	for _, f := range filters {
		if f.Matches(evt) {
			return true
		}
	}
	return false
}

func (r *Relay) closeSubscription(subID, reason string) {
	if sub, ok := r.subs.Get(subID); ok {
		sub.sendActivity(Activity{Kind: ActivityClosed, Reason: reason})
	}
	r.subs.Remove(subID)
	closeMsg := wire.CloseMsg{ID: subID}
	if frame, err := closeMsg.MarshalFrame(); err == nil {
		select {
		case r.outbox <- outboxItem{frame: frame}:
		default:
		}
	}
}
