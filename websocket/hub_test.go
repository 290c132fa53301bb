package websocket

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"gojuon-server/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, "connected", readMessage(t, conn)["type"])

	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))

	return msg
}

func TestHubPingPong(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dial(t, hub)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	require.Equal(t, "pong", readMessage(t, conn)["type"])
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(testLogger())

	first := dial(t, hub)
	second := dial(t, hub)

	require.Eventually(t, func() bool { return hub.Len() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(models.AssetEvent{Type: models.AssetChanged, Path: "app.js", Timestamp: 1})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		require.Equal(t, models.AssetChanged, msg["type"])
		require.Equal(t, "app.js", msg["path"])
	}
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dial(t, hub)

	require.Equal(t, 1, hub.Len())
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.Len() == 0 }, 5*time.Second, 10*time.Millisecond)

	// no clients left, must not panic
	hub.Broadcast(models.AssetEvent{Type: models.AssetRemoved, Path: "app.js"})
}

func TestHubClose(t *testing.T) {
	hub := NewHub(testLogger())
	conn := dial(t, hub)

	hub.Close()
	require.Zero(t, hub.Len())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
