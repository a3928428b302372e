package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBroadcaster_PublishTargetsSession(t *testing.T) {
	tabA, readerA, cleanupA := websocketConnPair(t)
	defer cleanupA()
	tabB, readerB, cleanupB := websocketConnPair(t)
	defer cleanupB()
	other, readerOther, cleanupOther := websocketConnPair(t)
	defer cleanupOther()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "a", SessionID: "s1", Conn: tabA})
	registry.Add(&Client{ID: "b", SessionID: "s1", Conn: tabB})
	registry.Add(&Client{ID: "c", SessionID: "s2", Conn: other})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	sent := broadcaster.Publish("s1", "a", EventMessageAppended, map[string]interface{}{"text": "hi"})
	assert.Equal(t, 1, sent)

	var event EventMessage
	require.NoError(t, readerB.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, readerB.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	assert.Equal(t, EventMessageAppended, event.Event)
	assert.Equal(t, "s1", event.Session)
	assert.NotZero(t, event.Seq)
	assert.NotZero(t, event.Timestamp)

	for _, conn := range []*websocket.Conn{readerA, readerOther} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err, "connection outside the audience must not receive the event")
	}
}

func TestEventBroadcaster_SequenceIncreases(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", SessionID: "s1", Conn: serverConn})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	broadcaster.Publish("s1", "", EventMessageAppended, nil)
	broadcaster.Publish("s1", "", EventConversationNew, nil)

	var first, second EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&first))
	require.NoError(t, clientConn.ReadJSON(&second))

	assert.Equal(t, EventMessageAppended, first.Event)
	assert.Equal(t, EventConversationNew, second.Event)
	assert.Greater(t, second.Seq, first.Seq)
}

func TestEventBroadcaster_NoAudience(t *testing.T) {
	broadcaster := NewEventBroadcaster(NewClientRegistry(), zerolog.Nop())
	assert.Equal(t, 0, broadcaster.Publish("nobody", "", EventMessageAppended, nil))
}

func websocketConnPair(t *testing.T) (*websocket.Conn, *websocket.Conn, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConnCh := make(chan *websocket.Conn, 1)
	errCh := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		serverConnCh <- conn
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	var serverConn *websocket.Conn
	select {
	case serverConn = <-serverConnCh:
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server websocket connection")
	}

	cleanup := func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
		srv.Close()
	}

	return serverConn, clientConn, cleanup
}
