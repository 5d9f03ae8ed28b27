// Package wire implements the Nostr relay wire protocol: JSON-array framed
// client and relay messages (spec.md §3, §4.2).
//
// Decoding is strict — an unrecognized leading tag is a protocol error, the
// frame is dropped and logged, never silently ignored. Size caps are
// enforced by the caller (pkg/relay) before Decode ever sees the bytes, per
// spec.md §4.2 ("Size caps apply before JSON parsing").
package wire

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/nbd-wtf/go-nostr"
	"github.com/tidwall/gjson"
)

// ClientMessage is the tagged union of frames the client sends upstream.
type ClientMessage interface {
	ClientTag() string
	MarshalFrame() ([]byte, error)
}

// RelayMessage is the tagged union of frames received from a relay.
type RelayMessage interface {
	RelayTag() string
}

// --- Client -> Relay ---------------------------------------------------

type EventMsg struct{ Event *nostr.Event }

func (EventMsg) ClientTag() string { return "EVENT" }
func (m EventMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([2]any{"EVENT", m.Event})
}

type ReqMsg struct {
	ID      string
	Filters []nostr.Filter
}

func (ReqMsg) ClientTag() string { return "REQ" }
func (m ReqMsg) MarshalFrame() ([]byte, error) {
	frame := make([]any, 0, len(m.Filters)+2)
	frame = append(frame, "REQ", m.ID)
	for _, f := range m.Filters {
		frame = append(frame, f)
	}
	return sonic.Marshal(frame)
}

type CountMsg struct {
	ID     string
	Filter nostr.Filter
}

func (CountMsg) ClientTag() string { return "COUNT" }
func (m CountMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([3]any{"COUNT", m.ID, m.Filter})
}

type CloseMsg struct{ ID string }

func (CloseMsg) ClientTag() string { return "CLOSE" }
func (m CloseMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([2]any{"CLOSE", m.ID})
}

type AuthMsg struct{ Event *nostr.Event }

func (AuthMsg) ClientTag() string { return "AUTH" }
func (m AuthMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([2]any{"AUTH", m.Event})
}

type NegOpenMsg struct {
	SubID         string
	Filter        nostr.Filter
	InitialMsgHex string
}

func (NegOpenMsg) ClientTag() string { return "NEG-OPEN" }
func (m NegOpenMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([4]any{"NEG-OPEN", m.SubID, m.Filter, m.InitialMsgHex})
}

type NegMsg struct {
	SubID  string
	MsgHex string
}

func (NegMsg) ClientTag() string { return "NEG-MSG" }
func (m NegMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([3]any{"NEG-MSG", m.SubID, m.MsgHex})
}

type NegCloseMsg struct{ SubID string }

func (NegCloseMsg) ClientTag() string { return "NEG-CLOSE" }
func (m NegCloseMsg) MarshalFrame() ([]byte, error) {
	return sonic.Marshal([2]any{"NEG-CLOSE", m.SubID})
}

// --- Relay -> Client ----------------------------------------------------

type RelayEventMsg struct {
	SubID string
	Event *nostr.Event
}

func (RelayEventMsg) RelayTag() string { return "EVENT" }

type OKMsg struct {
	EventID string
	OK      bool
	Message string
}

func (OKMsg) RelayTag() string { return "OK" }

// AuthRequired reports whether this OK carries NIP-42's "auth-required:"
// prefix (spec.md §4.4).
func (m OKMsg) AuthRequired() bool {
	return !m.OK && len(m.Message) >= 13 && m.Message[:13] == "auth-required"
}

type EOSEMsg struct{ SubID string }

func (EOSEMsg) RelayTag() string { return "EOSE" }

type ClosedMsg struct {
	SubID   string
	Message string
}

func (ClosedMsg) RelayTag() string { return "CLOSED" }

type NoticeMsg struct{ Message string }

func (NoticeMsg) RelayTag() string { return "NOTICE" }

type RelayAuthMsg struct{ Challenge string }

func (RelayAuthMsg) RelayTag() string { return "AUTH" }

type RelayCountMsg struct {
	SubID string
	Count int64
}

func (RelayCountMsg) RelayTag() string { return "COUNT" }

type NegMsgMsg struct {
	SubID  string
	MsgHex string
}

func (NegMsgMsg) RelayTag() string { return "NEG-MSG" }

type NegErrMsg struct {
	SubID   string
	Message string
}

func (NegErrMsg) RelayTag() string { return "NEG-ERR" }

// ErrUnknownTag is returned (wrapped) by Decode for any unrecognized tag.
type ErrUnknownTag struct{ Tag string }

func (e *ErrUnknownTag) Error() string { return fmt.Sprintf("wire: unknown message tag %q", e.Tag) }

// Decode parses a single inbound relay frame. The first array element (the
// tag) is sniffed with gjson before the remaining elements are unmarshaled,
// so a malformed or oversized payload for a tag we don't care about never
// pays the cost of a full decode.
func Decode(data []byte) (RelayMessage, error) {
	if len(data) == 0 || data[0] != '[' {
		return nil, fmt.Errorf("wire: frame is not a JSON array")
	}

	arr := gjson.ParseBytes(data).Array()
	if len(arr) < 1 {
		return nil, fmt.Errorf("wire: empty frame")
	}
	tag := arr[0].String()

	switch tag {
	case "EVENT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("wire: EVENT frame too short")
		}
		var evt nostr.Event
		if err := sonic.UnmarshalString(arr[2].Raw, &evt); err != nil {
			return nil, fmt.Errorf("wire: decode EVENT: %w", err)
		}
		return RelayEventMsg{SubID: arr[1].String(), Event: &evt}, nil

	case "OK":
		if len(arr) < 3 {
			return nil, fmt.Errorf("wire: OK frame too short")
		}
		msg := OKMsg{EventID: arr[1].String(), OK: arr[2].Bool()}
		if len(arr) > 3 {
			msg.Message = arr[3].String()
		}
		return msg, nil

	case "EOSE":
		if len(arr) < 2 {
			return nil, fmt.Errorf("wire: EOSE frame too short")
		}
		return EOSEMsg{SubID: arr[1].String()}, nil

	case "CLOSED":
		if len(arr) < 2 {
			return nil, fmt.Errorf("wire: CLOSED frame too short")
		}
		msg := ClosedMsg{SubID: arr[1].String()}
		if len(arr) > 2 {
			msg.Message = arr[2].String()
		}
		return msg, nil

	case "NOTICE":
		if len(arr) < 2 {
			return nil, fmt.Errorf("wire: NOTICE frame too short")
		}
		return NoticeMsg{Message: arr[1].String()}, nil

	case "AUTH":
		if len(arr) < 2 {
			return nil, fmt.Errorf("wire: AUTH frame too short")
		}
		return RelayAuthMsg{Challenge: arr[1].String()}, nil

	case "COUNT":
		if len(arr) < 3 {
			return nil, fmt.Errorf("wire: COUNT frame too short")
		}
		res := arr[2]
		var count int64
		if res.IsObject() {
			count = res.Get("count").Int()
		} else {
			count = res.Int()
		}
		return RelayCountMsg{SubID: arr[1].String(), Count: count}, nil

	case "NEG-MSG":
		if len(arr) < 3 {
			return nil, fmt.Errorf("wire: NEG-MSG frame too short")
		}
		return NegMsgMsg{SubID: arr[1].String(), MsgHex: arr[2].String()}, nil

	case "NEG-ERR":
		if len(arr) < 3 {
			return nil, fmt.Errorf("wire: NEG-ERR frame too short")
		}
		return NegErrMsg{SubID: arr[1].String(), Message: arr[2].String()}, nil

	default:
		return nil, &ErrUnknownTag{Tag: tag}
	}
}
