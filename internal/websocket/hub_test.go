package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupHubServer(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(zap.NewNop())
	go hub.Run()

	engine := gin.New()
	engine.GET("/ws/status", ServeWS(hub))

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsWelcomeOnConnect(t *testing.T) {
	hub, conn := setupHubServer(t)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeConnected, msg.Type)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestHubBroadcastsStateChanges(t *testing.T) {
	hub, conn := setupHubServer(t)

	// 跳过欢迎消息
	readMessage(t, conn)

	hub.BroadcastState("homing")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeState, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "homing", data["state"])
}

func TestHubRemovesDisconnectedClient(t *testing.T) {
	hub, conn := setupHubServer(t)

	readMessage(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	conn.Close()

	assert.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
