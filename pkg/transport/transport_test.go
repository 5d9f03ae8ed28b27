package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sandwichfarm/nostr-sdk/pkg/relayurl"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		c.Close(websocket.StatusNormalClosure, "")
	}))
}

func TestDialDirect(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	u, err := relayurl.Parse("ws" + srv.URL[len("http"):])
	require.NoError(t, err)

	tr := New(Options{Mode: ModeDirect, HandshakeTimeout: 2 * time.Second})
	conn, err := tr.Dial(context.Background(), u)
	require.NoError(t, err)
	defer conn.CloseNow()
}

func TestDialSOCKS5WithoutAddrFails(t *testing.T) {
	tr := New(Options{Mode: ModeSOCKS5})
	_, err := tr.Dial(context.Background(), relayurl.MustParse("wss://relay.example.com"))
	require.Error(t, err)
}
