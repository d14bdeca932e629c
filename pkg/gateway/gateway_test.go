package gateway_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/pkg/agent"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/gateway"
	"github.com/parleyhq/parley/pkg/session"
)

type echoProcessor struct{}

func (echoProcessor) ProcessMessage(_ context.Context, sessionID, text string, respond agent.RespondFunc) {
	respond(events.ChatResponse{
		BaseEvent: events.NewBase(events.ChatResponseEvent, sessionID),
		Message:   "echo: " + text,
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type frame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func dial(t *testing.T, store *session.Store) (*websocket.Conn, *httptest.Server) {
	t.Helper()

	server := gateway.NewServer(store, echoProcessor{}, testLogger())
	httpServer := httptest.NewServer(server)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		httpServer.Close()
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	return conn, httpServer
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	var f frame
	require.NoError(t, conn.ReadJSON(&f))

	return f
}

func TestGatewayWelcomeAndSessionLifecycle(t *testing.T) {
	store := session.NewStore(session.Config{}, nil, testLogger())
	conn, _ := dial(t, store)

	welcome := readFrame(t, conn)
	assert.Equal(t, "welcome", welcome.Type)
	assert.NotEmpty(t, welcome.SessionID)
	assert.Contains(t, welcome.Message, "What would you like to do?")

	assert.Equal(t, 1, store.Len())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return store.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "session must be deleted on disconnect")
}

func TestGatewayUserMessageRoundTrip(t *testing.T) {
	store := session.NewStore(session.Config{}, nil, testLogger())
	conn, _ := dial(t, store)

	welcome := readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":    "user_message",
		"content": "hello agent",
	}))

	response := readFrame(t, conn)
	assert.Equal(t, "chat_response", response.Type)
	assert.Equal(t, "echo: hello agent", response.Message)
	assert.Equal(t, welcome.SessionID, response.SessionID)
}

func TestGatewayPing(t *testing.T) {
	store := session.NewStore(session.Config{}, nil, testLogger())
	conn, _ := dial(t, store)

	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))

	pong := readFrame(t, conn)
	assert.Equal(t, "pong", pong.Type)
}

func TestGatewayBadFrame(t *testing.T) {
	store := session.NewStore(session.Config{}, nil, testLogger())
	conn, _ := dial(t, store)

	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame.Type)

	// the connection survives a malformed frame
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestGatewayUnknownFrameType(t *testing.T) {
	store := session.NewStore(session.Config{}, nil, testLogger())
	conn, _ := dial(t, store)

	readFrame(t, conn) // welcome

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe"}))

	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame.Type)
}
