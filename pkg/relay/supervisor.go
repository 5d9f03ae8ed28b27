package relay

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/coder/websocket"

	"github.com/sandwichfarm/nostr-sdk/pkg/stats"
	"github.com/sandwichfarm/nostr-sdk/pkg/wire"
)

// Connect starts the supervisor goroutine, which owns the dial-retry loop
// and, once connected, the reader/writer/ping children, per spec.md §4.1
// and §9 ("task supervision ... on child failure, the supervisor moves to
// Disconnected and schedules reconnect").
func (r *Relay) Connect(ctx context.Context) {
	switch r.State() {
	case StateConnecting, StateConnected:
		return
	case StateSleeping:
		r.wake()
		return
	}
	r.setState(StatePending)
	r.wg.Add(1)
	go r.supervisorLoop(ctx)
}

func (r *Relay) supervisorLoop(parent context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		if r.State().Absorbing() {
			return
		}

		r.setState(StateConnecting)
		r.Stats.RecordAttempt()

		dialCtx, cancel := context.WithTimeout(parent, r.Opts.DialTimeout)
		conn, err := r.Transport.Dial(dialCtx, r.URL)
		cancel()

		if err != nil {
			r.consecutiveFailures++
			r.log.Warn().Err(err).Int("attempt", r.consecutiveFailures).Msg("dial failed")
			r.setState(StateDisconnected)

			if !r.Opts.Reconnect {
				r.setState(StateTerminated)
				return
			}
			wait := r.Opts.RetryInterval
			if r.Opts.AdjustRetryInterval {
				wait = nextRetryInterval(r.Opts.RetryInterval, r.consecutiveFailures)
			}
			select {
			case <-time.After(wait):
				continue
			case <-r.stopCh:
				return
			}
		}

		r.consecutiveFailures = 0
		r.Stats.RecordConnected(time.Now())
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		r.auth.Reset()
		r.touchActivity()
		r.setState(StateConnected)
		r.reissueLongLived(parent)

		idleExit := r.runConnection(parent)

		if r.State().Absorbing() {
			return
		}
		select {
		case <-r.stopCh:
			return
		default:
		}

		if idleExit {
			// Sleeping: spec.md §4.1 "the supervisor drops the transport
			// but retains subscriptions"; no timer-based reconnect here,
			// only a wake from a call that needs the socket.
			r.setState(StateSleeping)
			select {
			case <-r.wakeCh:
			case <-r.stopCh:
				return
			}
			continue
		}

		r.setState(StateDisconnected)
		select {
		case <-time.After(r.Opts.RetryInterval):
		case <-r.stopCh:
			return
		}
	}
}

// runConnection drives the reader, writer, ping, and (when sleep_when_idle
// is set) idle-watchdog children until the connection fails, goes idle, or
// a shutdown is requested, then returns so the supervisor can decide the
// next state. The returned idleExit is true when this call ended because
// the idle watchdog fired rather than a read error or shutdown, per
// spec.md §4.1 "Sleeping".
func (r *Relay) runConnection(parent context.Context) (idleExit bool) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	r.mu.Lock()
	r.connCancel = cancel
	r.mu.Unlock()

	done := make(chan struct{})
	var readerErr error

	go func() {
		readerErr = r.readerLoop(ctx)
		close(done)
	}()

	writerDone := make(chan struct{})
	go func() {
		r.writerLoop(ctx)
		close(writerDone)
	}()

	var pingDone chan struct{}
	if r.Capabilities.Has(stats.Ping) {
		pingDone = make(chan struct{})
		go func() {
			r.pingLoop(ctx)
			close(pingDone)
		}()
	}

	var idleDone chan struct{}
	if r.Opts.SleepWhenIdle && r.Opts.IdleTimeout > 0 {
		idleDone = make(chan struct{})
		go func() {
			defer close(idleDone)
			if r.idleWatch(ctx) {
				idleExit = true
				cancel()
			}
		}()
	}

	select {
	case <-done:
		if readerErr != nil {
			r.log.Warn().Err(readerErr).Msg("reader loop exited")
		}
	case <-r.stopCh:
	case <-ctx.Done():
	}
	cancel()
	<-writerDone
	if pingDone != nil {
		<-pingDone
	}
	if idleDone != nil {
		<-idleDone
	}
	r.closeConn()
	return idleExit
}

// idleWatch polls activity every quarter of IdleTimeout and reports true
// once IdleTimeout has elapsed with no read or write, per spec.md §4.1
// "Sleeping": "When sleep_when_idle is enabled and no activity has occurred
// for the configured timeout, the supervisor drops the transport but
// retains subscriptions."
func (r *Relay) idleWatch(ctx context.Context) bool {
	interval := r.Opts.IdleTimeout / 4
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if time.Since(r.lastActivity()) >= r.Opts.IdleTimeout {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (r *Relay) closeConn() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
}

// readerLoop reads frames, updates bytes_received, decodes them, and
// dispatches, per spec.md §4.1 "Connected".
func (r *Relay) readerLoop(ctx context.Context) error {
	for {
		_, data, err := r.conn.Read(ctx)
		if err != nil {
			return err
		}
		r.touchActivity()
		r.Stats.AddBytesReceived(len(data))

		if len(data) > r.Opts.Limits.MaxMessageLength {
			r.log.Warn().Int("size", len(data)).Msg("dropping oversized frame")
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			r.log.Warn().Err(err).Msg("decode error, dropping frame")
			continue
		}
		r.dispatch(ctx, msg)
	}
}

// writerLoop drains the outbox in FIFO order and writes frames to the
// socket, per spec.md §4.1 "Connected".
func (r *Relay) writerLoop(ctx context.Context) {
	for {
		select {
		case item := <-r.outbox:
			r.mu.Lock()
			conn := r.conn
			r.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, item.frame); err != nil {
				r.log.Warn().Err(err).Msg("write failed")
				return
			}
			r.touchActivity()
			r.Stats.AddBytesSent(len(item.frame))
			if item.sent != nil {
				close(item.sent)
			}
		case <-ctx.Done():
			return
		}
	}
}

// pingLoop sends a ping with a u64 nonce every ping_interval when the PING
// capability is set, per spec.md §4.1 "Ping/pong liveness". The nonce is
// only recorded in lastPingNonce: the ping frame carries an empty payload,
// no pong is matched against the nonce, and this loop never reports
// PongNotMatch. The recorded latency is the time the ping write takes; a
// failed write ends the loop.
func (r *Relay) pingLoop(ctx context.Context) {
	interval := r.Opts.effectivePingInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nonce, err := randomNonce()
			if err != nil {
				continue
			}
			r.lastPingNonce.Store(nonce)
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			start := time.Now()
			err = r.conn.Write(pingCtx, websocket.MessagePing, nil)
			cancel()
			if err != nil {
				r.log.Warn().Err(err).Msg("ping failed")
				return
			}
			r.Stats.RecordLatency(time.Since(start))
			if r.Opts.MaxAvgLatency > 0 {
				if avg, ok := r.Stats.AverageLatency(); ok && avg > r.Opts.MaxAvgLatency {
					r.log.Warn().Dur("avg_latency", avg).Msg("max_avg_latency exceeded, banning")
					r.Ban()
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func randomNonce() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

// reissueLongLived re-sends every long-lived subscription in insertion
// order after a (re)connect, per spec.md §4.3.
func (r *Relay) reissueLongLived(ctx context.Context) {
	for _, s := range r.subs.LongLived() {
		msg := wire.ReqMsg{ID: s.ID, Filters: s.Filters}
		frame, err := msg.MarshalFrame()
		if err != nil {
			continue
		}
		r.enqueue(ctx, frame, nil)
	}
}

// enqueue submits a frame to the writer's FIFO outbox, per spec.md §5
// ("submissions wait until capacity is available or fail with
// CantSendChannelMessage on shutdown").
func (r *Relay) enqueue(ctx context.Context, frame []byte, sent chan struct{}) error {
	if r.State() == StateSleeping {
		r.wake()
	}
	item := outboxItem{frame: frame, sent: sent}
	select {
	case r.outbox <- item:
		return nil
	case <-r.stopCh:
		return NewError(KindCantSendChannelMessage, r.URL.String(), fmt.Errorf("relay shutting down"))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect cancels the current connection's reader/writer/ping children
// and lets the supervisor decide whether to reconnect.
func (r *Relay) Disconnect() {
	r.mu.Lock()
	cancel := r.connCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown performs orderly termination: the supervisor and all children
// are stopped and the relay moves to Terminated.
func (r *Relay) Shutdown() {
	r.stopOnce.Do(func() {
		r.setState(StateTerminated)
		close(r.stopCh)
	})
	r.Disconnect()
	r.wg.Wait()
	r.emit(Notification{Kind: NotifyShutdown})
}

// Ban moves the relay to the absorbing Banned state and tears down the
// connection; no automatic transition leaves Banned.
func (r *Relay) Ban() {
	r.setState(StateBanned)
	r.Disconnect()
}
