package wire

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

func TestEncodeReqMsg(t *testing.T) {
	msg := ReqMsg{ID: "sub1", Filters: []nostr.Filter{{Kinds: []int{1}}}}
	b, err := msg.MarshalFrame()
	require.NoError(t, err)
	require.Contains(t, string(b), `"REQ"`)
	require.Contains(t, string(b), `"sub1"`)
}

func TestDecodeEOSE(t *testing.T) {
	msg, err := Decode([]byte(`["EOSE","sub1"]`))
	require.NoError(t, err)
	eose, ok := msg.(EOSEMsg)
	require.True(t, ok)
	require.Equal(t, "sub1", eose.SubID)
}

func TestDecodeOKAuthRequired(t *testing.T) {
	msg, err := Decode([]byte(`["OK","abc",false,"auth-required: please authenticate"]`))
	require.NoError(t, err)
	ok, isOK := msg.(OKMsg)
	require.True(t, isOK)
	require.False(t, ok.OK)
	require.True(t, ok.AuthRequired())
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte(`["BOGUS","x"]`))
	require.Error(t, err)
	var tagErr *ErrUnknownTag
	require.ErrorAs(t, err, &tagErr)
	require.Equal(t, "BOGUS", tagErr.Tag)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, err := Decode([]byte(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestDecodeNegMessages(t *testing.T) {
	msg, err := Decode([]byte(`["NEG-MSG","sub1","aabbcc"]`))
	require.NoError(t, err)
	neg, ok := msg.(NegMsgMsg)
	require.True(t, ok)
	require.Equal(t, "aabbcc", neg.MsgHex)

	errMsg, err := Decode([]byte(`["NEG-ERR","sub1","unsupported"]`))
	require.NoError(t, err)
	ne, ok := errMsg.(NegErrMsg)
	require.True(t, ok)
	require.Equal(t, "unsupported", ne.Message)
}

func TestDecodeCountBothShapes(t *testing.T) {
	msg, err := Decode([]byte(`["COUNT","sub1",{"count":42}]`))
	require.NoError(t, err)
	c, ok := msg.(RelayCountMsg)
	require.True(t, ok)
	require.EqualValues(t, 42, c.Count)

	msg2, err := Decode([]byte(`["COUNT","sub1",7]`))
	require.NoError(t, err)
	c2 := msg2.(RelayCountMsg)
	require.EqualValues(t, 7, c2.Count)
}
