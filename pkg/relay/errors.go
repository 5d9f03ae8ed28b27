package relay

import "fmt"

// ErrKind classifies every failure the connection FSM, subscription manager,
// and auth handler can raise, per spec.md §7's error taxonomy.
type ErrKind int

const (
	KindTransport ErrKind = iota
	KindSharedState
	KindPolicy
	KindMessageHandle
	KindEvent
	KindSigner
	KindNegentropy
	KindDatabase
	KindTimeout
	KindNotRepliedToPing
	KindPongNotMatch
	KindNotConnected
	KindNotReady
	KindTerminationRequest
	KindReceivedShutdown
	KindReadDisabled
	KindWriteDisabled
	KindNegentropyNotSupported
	KindRelayMessageTooLarge
	KindEventTooLarge
	KindTooManyTags
	KindEventExpired
	KindMaximumLatencyExceeded
	KindAuthenticationFailed
	KindPrematureExit
	KindEmptyFilters
	KindSubscriptionIDCollision
	KindAuthRequired
	KindCantSendChannelMessage
)

var kindNames = map[ErrKind]string{
	KindTransport:              "transport",
	KindSharedState:            "shared_state",
	KindPolicy:                 "policy",
	KindMessageHandle:          "message_handle",
	KindEvent:                  "event",
	KindSigner:                 "signer",
	KindNegentropy:             "negentropy",
	KindDatabase:               "database",
	KindTimeout:                "timeout",
	KindNotRepliedToPing:       "not_replied_to_ping",
	KindPongNotMatch:           "pong_not_match",
	KindNotConnected:           "not_connected",
	KindNotReady:               "not_ready",
	KindTerminationRequest:     "termination_request",
	KindReceivedShutdown:       "received_shutdown",
	KindReadDisabled:           "read_disabled",
	KindWriteDisabled:          "write_disabled",
	KindNegentropyNotSupported: "negentropy_not_supported",
	KindRelayMessageTooLarge:   "relay_message_too_large",
	KindEventTooLarge:          "event_too_large",
	KindTooManyTags:            "too_many_tags",
	KindEventExpired:           "event_expired",
	KindMaximumLatencyExceeded: "maximum_latency_exceeded",
	KindAuthenticationFailed:   "authentication_failed",
	KindPrematureExit:          "premature_exit",
	KindEmptyFilters:           "empty_filters",
	KindSubscriptionIDCollision: "subscription_id_collision",
	KindAuthRequired:           "auth_required",
	KindCantSendChannelMessage: "cant_send_channel_message",
}

func (k ErrKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is the SDK's error type: a Kind plus an optional relay URL and
// wrapped cause, so callers can use errors.Is/errors.As against Kind while
// still seeing the originating relay.
type Error struct {
	Kind    ErrKind
	RelayURL string
	Err     error
}

func (e *Error) Error() string {
	if e.RelayURL != "" {
		return fmt.Sprintf("%s: %s: %v", e.RelayURL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &Error{Kind: KindX}) match on Kind alone.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Kind == e.Kind
}

// NewError builds an *Error, wrapping err with fmt.Errorf("%w") semantics
// preserved via Unwrap.
func NewError(kind ErrKind, relayURL string, err error) *Error {
	return &Error{Kind: kind, RelayURL: relayURL, Err: err}
}
