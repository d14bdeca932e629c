// Package gateway is the conversational transport: a websocket endpoint
// where each connection owns exactly one session. Inbound frames are JSON
// {type, content}; outbound frames are the turn events emitted by the agent.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/pkg/agent"
	"github.com/parleyhq/parley/pkg/eventbus"
	"github.com/parleyhq/parley/pkg/events"
	"github.com/parleyhq/parley/pkg/session"
)

const (
	heartbeatInterval = 30 * time.Second
	writeTimeout      = 10 * time.Second
)

const welcomeMessage = "Welcome! I can help you:\n" +
	"1. Download douyin content and generate copy\n" +
	"2. Publish videos to douyin\n" +
	"3. Generate copy for any topic\n\n" +
	"What would you like to do?"

var welcomeCommands = []string{
	"publish my video to douyin",
	"download a douyin video and write travel copy",
	"generate copy about marketing videos",
}

// MessageProcessor handles one conversational turn. The agent satisfies
// this; tests substitute their own.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, sessionID, text string, respond agent.RespondFunc)
}

// Server upgrades HTTP connections to websockets and bridges them to the
// agent. One session is created per connection and deleted when the
// connection goes away.
type Server struct {
	store     *session.Store
	processor MessageProcessor
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu          sync.Mutex
	connections map[*connection]struct{}

	httpServer *http.Server
	stop       chan struct{}
	stopOnce   sync.Once
}

type connection struct {
	ws        *websocket.Conn
	sessionID string

	// writeMu serializes frames: turn events, pongs and heartbeat pings
	// come from different goroutines.
	writeMu sync.Mutex

	aliveMu sync.Mutex
	alive   bool
}

type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func NewServer(store *session.Store, processor MessageProcessor, logger *slog.Logger) *Server {
	return &Server{
		store:     store,
		processor: processor,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:      logger.With("module", "gateway"),
		connections: make(map[*connection]struct{}),
		stop:        make(chan struct{}),
	}
}

// Start listens on addr and sweeps zombie connections until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.heartbeatLoop()

	s.logger.Info("Gateway listening", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the heartbeat, closes every connection and shuts the
// listener down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.ws.Close()
	}
	s.mu.Unlock()

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)

		return
	}

	sessionID := uuid.New().String()

	if _, err := s.store.Create(sessionID); err != nil {
		s.logger.Error("Failed to create session for connection", "error", err)
		_ = ws.Close()

		return
	}

	conn := &connection{ws: ws, sessionID: sessionID, alive: true}

	ws.SetPongHandler(func(string) error {
		conn.markAlive()

		return nil
	})

	s.mu.Lock()
	s.connections[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Connection established", "session_id", sessionID)

	conn.send(s.logger, events.Welcome{
		BaseEvent:         events.NewBase(events.WelcomeEvent, sessionID),
		Message:           welcomeMessage,
		AvailableCommands: welcomeCommands,
	})

	s.readLoop(r.Context(), conn)
}

// readLoop processes inbound frames until the connection drops. Frames for
// one connection are handled strictly in order.
func (s *Server) readLoop(ctx context.Context, conn *connection) {
	defer s.closeConnection(conn)

	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Connection read failed", "session_id", conn.sessionID, "error", err)
			}

			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			conn.send(s.logger, events.TurnError{
				BaseEvent: events.NewBase(events.TurnErrorEvent, conn.sessionID),
				Message:   "Message processing failed, please retry.",
				Code:      "BAD_FRAME",
			})

			continue
		}

		switch frame.Type {
		case "user_message":
			s.processor.ProcessMessage(ctx, conn.sessionID, frame.Content, func(event eventbus.Event) {
				conn.send(s.logger, event)
			})
		case "ping":
			conn.send(s.logger, events.Pong{BaseEvent: events.NewBase(events.PongEvent, conn.sessionID)})
		default:
			conn.send(s.logger, events.TurnError{
				BaseEvent: events.NewBase(events.TurnErrorEvent, conn.sessionID),
				Message:   "Unknown message type.",
				Code:      "BAD_FRAME",
			})
		}
	}
}

func (s *Server) closeConnection(conn *connection) {
	s.mu.Lock()
	delete(s.connections, conn)
	s.mu.Unlock()

	_ = conn.ws.Close()
	s.store.Delete(conn.sessionID)
	s.logger.Info("Connection closed", "session_id", conn.sessionID)
}

// heartbeatLoop pings every connection on an interval and terminates the
// ones that never answered the previous ping.
func (s *Server) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweepConnections()
		}
	}
}

func (s *Server) sweepConnections() {
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.connections))

	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if !conn.consumeAlive() {
			s.logger.Info("Terminating zombie connection", "session_id", conn.sessionID)
			_ = conn.ws.Close()

			continue
		}

		conn.writeMu.Lock()
		err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		conn.writeMu.Unlock()

		if err != nil {
			_ = conn.ws.Close()
		}
	}
}

func (c *connection) send(logger *slog.Logger, event eventbus.Event) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))

	if err := c.ws.WriteJSON(event); err != nil {
		logger.Warn("Failed to write event", "session_id", c.sessionID, "event", event.GetType(), "error", err)
	}
}

func (c *connection) markAlive() {
	c.aliveMu.Lock()
	c.alive = true
	c.aliveMu.Unlock()
}

// consumeAlive returns the liveness flag and resets it for the next round.
func (c *connection) consumeAlive() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()

	alive := c.alive
	c.alive = false

	return alive
}
