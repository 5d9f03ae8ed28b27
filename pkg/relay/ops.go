package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// SendMsg enqueues an arbitrary client message on the writer's FIFO outbox,
// per spec.md §6 ("send_msg(msg)"). When wait is non-zero it blocks until
// the frame has been handed off to the socket (spec.md §9's Open Question:
// this SDK provides hand-off confirmation, not OS-buffer-flush confirmation).
func (r *Relay) SendMsg(ctx context.Context, msg wire.ClientMessage, wait time.Duration) error {
	// Sleeping is not a hard failure: enqueue below wakes the supervisor
	// back to Connecting and the frame waits in the outbox for it, per
	// spec.md §4.1 "Any user call that needs the socket transitions to
	// Connecting."
	if s := r.State(); s != StateConnected && s != StateSleeping {
		return NewError(KindNotConnected, r.URL.String(), fmt.Errorf("relay is %s", r.State()))
	}
	frame, err := msg.MarshalFrame()
	if err != nil {
		return NewError(KindMessageHandle, r.URL.String(), err)
	}

	var sent chan struct{}
	if wait > 0 {
		sent = make(chan struct{})
	}
	if err := r.enqueue(ctx, frame, sent); err != nil {
		return err
	}
	if sent == nil {
		return nil
	}
	select {
	case <-sent:
		return nil
	case <-time.After(wait):
		return NewError(KindTimeout, r.URL.String(), fmt.Errorf("wait_until_sent timed out"))
	}
}

// SendEvent publishes evt and waits for the relay's OK response, retrying
// exactly once if the first OK carries NIP-42's "auth-required:" reason and
// automatic authentication is enabled, per spec.md §4.4's auth race policy.
func (r *Relay) SendEvent(ctx context.Context, evt *nostr.Event) error {
	if !r.Capabilities.Has(stats.Write) {
		return NewError(KindWriteDisabled, r.URL.String(), fmt.Errorf("write capability disabled"))
	}
	if len(evt.Content) > r.Opts.Limits.MaxEventSize {
		return NewError(KindEventTooLarge, r.URL.String(), fmt.Errorf("event content exceeds max_event_size"))
	}
	if len(evt.Tags) > r.Opts.Limits.MaxTags {
		return NewError(KindTooManyTags, r.URL.String(), fmt.Errorf("event has too many tags"))
	}

	ok, err := r.publishOnce(ctx, evt)
	if err == nil {
		return nil
	}
	if ok && r.Opts.AutomaticAuthentication {
		if waitErr := r.auth.Wait(ctx, r.Opts.WaitForAuthenticationTimeout); waitErr != nil {
			return err
		}
		_, retryErr := r.publishOnce(ctx, evt)
		return retryErr
	}
	return err
}

// publishOnce sends evt and waits for its OK, returning (authRequired, err).
func (r *Relay) publishOnce(ctx context.Context, evt *nostr.Event) (authRequired bool, err error) {
	waiter := r.registerOKWaiter(evt.ID)
	msg := wire.EventMsg{Event: evt}
	frame, merr := msg.MarshalFrame()
	if merr != nil {
		return false, NewError(KindMessageHandle, r.URL.String(), merr)
	}
	if err := r.enqueue(ctx, frame, nil); err != nil {
		return false, err
	}

	select {
	case res := <-waiter:
		if res.OK {
			return false, nil
		}
		if res.AuthRequired() {
			return true, NewError(KindAuthRequired, r.URL.String(), fmt.Errorf("%s", res.Message))
		}
		return false, NewError(KindPolicy, r.URL.String(), fmt.Errorf("rejected: %s", res.Message))
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Subscribe registers sub, sends REQ, and returns the activity channel the
// caller should drain, per spec.md §4.3's Submit step: register locally
// before sending so the reader task can already find it.
func (r *Relay) Subscribe(ctx context.Context, sub *Subscription) error {
	if len(sub.Filters) == 0 {
		return NewError(KindEmptyFilters, r.URL.String(), fmt.Errorf("subscription has no filters"))
	}
	if !r.Capabilities.Has(stats.Read) {
		return NewError(KindReadDisabled, r.URL.String(), fmt.Errorf("read capability disabled"))
	}

	if err := r.subs.Insert(sub); err != nil {
		return err
	}

	msg := wire.ReqMsg{ID: sub.ID, Filters: sub.Filters}
	frame, err := msg.MarshalFrame()
	if err != nil {
		r.subs.Remove(sub.ID)
		return NewError(KindMessageHandle, r.URL.String(), err)
	}
	if err := r.enqueue(ctx, frame, nil); err != nil {
		r.subs.Remove(sub.ID)
		return err
	}

	if sub.Timeout > 0 {
		go r.watchTimeout(sub.ID, sub.Timeout, "auto-close: timeout")
	}
	if sub.IdleTimeout > 0 {
		go r.watchIdle(sub.ID, sub.IdleTimeout)
	}
	return nil
}

func (r *Relay) watchTimeout(subID string, d time.Duration, reason string) {
	select {
	case <-time.After(d):
		r.closeSubscription(subID, reason)
	case <-r.stopCh:
	}
}

func (r *Relay) watchIdle(subID string, d time.Duration) {
	ticker := time.NewTicker(d / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sub, ok := r.subs.Get(subID)
			if !ok {
				return
			}
			if time.Since(sub.lastActivity) >= d {
				r.closeSubscription(subID, "auto-close: idle_timeout")
				return
			}
		case <-r.stopCh:
			return
		}
	}
}

// Unsubscribe sends CLOSE (best-effort) and removes the subscription record.
func (r *Relay) Unsubscribe(ctx context.Context, id string) {
	r.closeSubscription(id, "unsubscribed")
}

// UnsubscribeAll closes every active subscription on this relay.
func (r *Relay) UnsubscribeAll(ctx context.Context) {
	for _, s := range r.subs.All() {
		r.closeSubscription(s.ID, "unsubscribe_all")
	}
}
