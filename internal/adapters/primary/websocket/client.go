package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/infrastructure/logging"
)

// ClosePolicyViolated is sent when a client breaks the protocol or cannot keep up.
const ClosePolicyViolated = websocket.ClosePolicyViolation

// ClientConfig holds connection timing and limits.
type ClientConfig struct {
	// Time allowed to write a message to the peer.
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer.
	PongWait time.Duration
	// Send pings to peer with this period. Must be less than PongWait.
	PingPeriod time.Duration
	// Maximum message size allowed from peer.
	MaxMessageSize int64
	SendBufferSize int
	// Upper bound for handling a single inbound message.
	HandleTimeout time.Duration
}

// DefaultClientConfig returns the defaults used when fields are zero.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 16 << 10,
		SendBufferSize: 256,
		HandleTimeout:  15 * time.Second,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	d := DefaultClientConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = d.SendBufferSize
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = d.HandleTimeout
	}
	return c
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub     *Hub
	Gateway *Gateway
	Session *Session

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of encoded outbound messages.
	Send chan []byte

	// rooms is guarded by the hub's mutex.
	rooms map[uuid.UUID]struct{}

	// mu guards closed, the close frame and sends on Send.
	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a client for an authenticated connection.
func NewClient(hub *Hub, gateway *Gateway, conn *websocket.Conn, session *Session, cfg ClientConfig, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		Hub:     hub,
		Gateway: gateway,
		Session: session,
		Conn:    conn,
		Send:    make(chan []byte, cfg.SendBufferSize),
		rooms:   make(map[uuid.UUID]struct{}),
		cfg:     cfg,
		logger: logger.With(
			"conn_id", session.ConnID,
			"user_id", session.Actor.UserID.String(),
		),
	}
}

// enqueue queues an encoded message without blocking. It reports false when
// the buffer is full or the client is closed.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.closeSendWith(websocket.CloseGoingAway, "")
}

// closeSendWith closes the Send channel; the write pump then sends a close
// frame with the given code.
func (c *Client) closeSendWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.closeReason = reason
		close(c.Send)
	}
}

// closeWith writes the close frame immediately. The read pump closes the
// connection on return, so it cannot wait for the write pump.
func (c *Client) closeWith(code int, reason string) {
	c.closeSendWith(code, reason)
	deadline := time.Now().Add(c.cfg.WriteWait)
	if err := c.Conn.WriteControl(websocket.CloseMessage, c.closeFrame(), deadline); err != nil {
		c.logger.Debug("failed to send close message", "error", err)
	}
}

func (c *Client) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// ReadPump pumps messages from the websocket connection to the gateway.
// This method runs in its own goroutine.
func (c *Client) ReadPump(ctx context.Context) {
	ctx = logging.WithConnID(logging.WithUserID(ctx, c.Session.Actor.UserID.String()), c.Session.ConnID)

	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(ctx, c.logger, r)
		}
		// Disconnect tears membership down before the hub forgets the client.
		c.apply(ctx, c.Gateway.Disconnect(context.WithoutCancel(ctx), c.Session))
		c.Hub.Unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	// Pongs are handled on this goroutine, so the session is not shared.
	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		hbCtx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
		defer cancel()
		c.Gateway.Heartbeat(hbCtx, c.Session)
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("closing connection after non-text frame", "message_type", messageType)
			c.closeWith(ClosePolicyViolated, "text frames only")
			return
		}

		c.handleIncomingMessage(ctx, message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The channel was closed. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, c.closeFrame()); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// handleIncomingMessage decodes and dispatches one client frame.
func (c *Client) handleIncomingMessage(ctx context.Context, message []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type == "" {
		c.logger.Debug("malformed client message", "error", err)
		c.apply(ctx, c.Gateway.ErrorOutcome(ctx, "", errMalformedMessage(err)))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.HandleTimeout)
	defer cancel()

	c.apply(ctx, c.Gateway.Handle(ctx, c.Session, msg))
}

// apply routes the emits of an outcome to this client or to the room.
func (c *Client) apply(ctx context.Context, out Outcome) {
	for _, e := range out.Emits {
		payload, err := encodePayload(e.Payload)
		if err != nil {
			c.logger.Error("failed to encode payload", "type", e.Type, "error", err)
			continue
		}

		switch e.Scope {
		case ScopeSelf:
			data, err := encodeOutbound(e.EventID, e.Type, e.RequestID, payload)
			if err != nil {
				c.logger.Error("failed to encode message", "type", e.Type, "error", err)
				continue
			}
			if !c.enqueue(data) {
				c.logger.Warn("dropping reply, send buffer unavailable", "type", e.Type)
			}

		case ScopeRoom, ScopeRoomOthers:
			event := domain.RealtimeEvent{Type: e.Type, EventID: e.EventID, Payload: payload}
			if e.Scope == ScopeRoomOthers {
				event.ExcludeConnID = c.Session.ConnID
			}
			if err := c.Hub.Broadcast(context.WithoutCancel(ctx), event); err != nil {
				c.logger.Warn("room broadcast failed", "type", e.Type, "event_id", e.EventID, "error", err)
			}
		}
	}
}
