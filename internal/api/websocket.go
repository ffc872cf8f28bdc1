package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/orchestrator"
)

// MessageType defines the kind of message exchanged on the session feed.
type MessageType string

const (
	// Client to server.
	MsgTypeStartScan MessageType = "StartScan"
	MsgTypeReset     MessageType = "Reset"

	// Server to client.
	MsgTypeSnapshot    MessageType = "SessionSnapshot"
	MsgTypeAccepted    MessageType = "ScanAccepted"
	MsgTypeSystemError MessageType = "SystemError"
)

// WSMessage defines the standardized structure for communication over the WebSocket.
type WSMessage struct {
	Type MessageType `json:"type"`
	// Data carries a snapshot outbound, or a map of parameters inbound.
	Data interface{} `json:"data,omitempty"`
	// Timestamp formatted as RFC3339.
	Timestamp string `json:"timestamp"`
	// RequestID correlates a client command with its reply.
	RequestID string `json:"request_id,omitempty"`
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 8192
	// Send buffer size
	sendChannelSize = 256
)

// wsClient is one websocket connection attached to a session.
type wsClient struct {
	log     *zap.Logger
	conn    *websocket.Conn
	session *orchestrator.Orchestrator
	send    chan WSMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(allowed, origin)
		},
	}
}

// handleSessionFeed streams snapshots of one session and accepts
// StartScan and Reset commands.
func (s *Server) handleSessionFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		session, err := s.sessions.Get(id)
		if err != nil {
			s.handlers.respondWithErr(w, err)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error.
			s.logger.Error("Failed to upgrade connection to WebSocket", zap.Error(err))
			return
		}
		s.logger.Info("Session feed connected", zap.String("session_id", id), zap.String("remoteAddr", r.RemoteAddr))

		client := &wsClient{
			log:     s.logger.With(zap.String("session_id", id)),
			conn:    conn,
			session: session,
			send:    make(chan WSMessage, sendChannelSize),
			done:    make(chan struct{}),
		}

		updates, unsubscribe := session.Subscribe()
		go client.forward(updates)
		go client.writePump()
		client.readPump()

		unsubscribe()
		client.stop()
		// A closed feed is the client navigating away.
		if session.CancelIfUnwatched() {
			s.logger.Info("Last session feed closed, scan abandoned", zap.String("session_id", id))
		}
		s.sessions.Touch(id)
		s.logger.Debug("Session feed finished", zap.String("session_id", id))
	}
}

// forward relays session snapshots to the write pump until the session or
// the connection goes away.
func (c *wsClient) forward(updates <-chan schemas.SessionSnapshot) {
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				c.stop()
				return
			}
			c.sendMessage(MsgTypeSnapshot, "", snap)
		case <-c.done:
			return
		}
	}
}

func (c *wsClient) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump reads client commands and keeps the read deadline fresh.
func (c *wsClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Failed to set initial read deadline", zap.Error(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("WebSocket closed unexpectedly", zap.Error(err))
			} else {
				c.log.Debug("WebSocket connection closed.")
			}
			return
		}
		c.processMessage(msg)
	}
}

// writePump owns all writes to the connection.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Error("Error writing JSON message to WebSocket", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsClient) processMessage(msg WSMessage) {
	switch msg.Type {
	case MsgTypeStartScan:
		data, _ := msg.Data.(map[string]interface{})
		req, err := mapToStruct[StartScanRequest](data)
		if err != nil {
			c.sendError(msg.RequestID, fmt.Sprintf("Invalid StartScan payload: %v", err))
			return
		}
		gen, err := c.session.StartScan(context.Background(), req.RepositoryURL, req.TeamID)
		if err != nil {
			c.sendError(msg.RequestID, err.Error())
			return
		}
		c.sendMessage(MsgTypeAccepted, msg.RequestID, map[string]interface{}{"generation": gen})

	case MsgTypeReset:
		c.session.Reset()

	default:
		c.log.Warn("Received unknown message type from client", zap.String("type", string(msg.Type)))
		c.sendError(msg.RequestID, fmt.Sprintf("Unknown or unsupported message type: %s", msg.Type))
	}
}

// sendMessage queues a message for the write pump, dropping it when the
// client is not keeping up.
func (c *wsClient) sendMessage(msgType MessageType, requestID string, data interface{}) {
	msg := WSMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: requestID,
	}
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		c.log.Error("WebSocket send buffer full, dropping message. Client may be unresponsive.",
			zap.String("type", string(msgType)))
	}
}

func (c *wsClient) sendError(requestID string, message string) {
	c.sendMessage(MsgTypeSystemError, requestID, map[string]interface{}{"error": message})
}
