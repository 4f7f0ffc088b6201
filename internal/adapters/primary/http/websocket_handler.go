package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	mw "github.com/lorrc/event-updates-backend/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/event-updates-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// WebSocketConfig holds configuration for the WebSocket handler
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	AllowAllOrigins bool
	Client          wsAdapter.ClientConfig
}

// WebSocketHandler authenticates and upgrades WebSocket connections
type WebSocketHandler struct {
	hub      *wsAdapter.Hub
	gateway  *wsAdapter.Gateway
	verifier ports.IdentityVerifier
	upgrader websocket.Upgrader
	cfg      WebSocketConfig
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *wsAdapter.Hub,
	gateway *wsAdapter.Gateway,
	verifier ports.IdentityVerifier,
	cfg WebSocketConfig,
	logger *slog.Logger,
) *WebSocketHandler {
	handler := &WebSocketHandler{
		hub:      hub,
		gateway:  gateway,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger.With("handler", "websocket"),
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     handler.checkOrigin,
	}

	return handler
}

// checkOrigin accepts configured origins, including "*.example.com" wildcards.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if h.cfg.AllowAllOrigins {
		if origin != "" {
			h.logger.Debug("allowing websocket origin in development mode", "origin", origin)
		}
		return true
	}

	// No origin header (same-origin request or non-browser client)
	if origin == "" {
		return true
	}

	parsedOrigin, err := url.Parse(origin)
	if err != nil {
		h.logger.Warn("failed to parse websocket origin", "origin", origin, "error", err)
		return false
	}
	originHost := parsedOrigin.Host

	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.HasPrefix(allowed, "*.") {
			suffix := allowed[1:]
			if strings.HasSuffix(originHost, suffix) || originHost == allowed[2:] {
				return true
			}
			continue
		}
		if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host != "" {
			allowed = allowedURL.Host
		}
		if originHost == allowed {
			return true
		}
	}

	h.logger.Warn("websocket connection rejected due to origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr,
	)
	return false
}

// ServeHTTP authenticates the request and runs the connection until it
// closes. Invalid credentials are rejected before the upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := mw.ExtractToken(r, true)
	if token == "" {
		h.logger.WarnContext(r.Context(), "websocket connection rejected: missing token", "remote_addr", r.RemoteAddr)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing authentication token", Code: "UNAUTHORIZED"})
		return
	}

	actor, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket connection rejected: invalid token",
			"remote_addr", r.RemoteAddr,
			"error", err,
		)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an error response.
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection",
			"user_id", actor.UserID,
			"error", err,
		)
		return
	}

	session := wsAdapter.NewSession(uuid.NewString(), actor)
	client := wsAdapter.NewClient(h.hub, h.gateway, conn, session, h.cfg.Client, h.logger)
	h.hub.Register(client)

	h.logger.InfoContext(r.Context(), "websocket connection established",
		"conn_id", session.ConnID,
		"user_id", actor.UserID,
		"role", actor.Role,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	client.ReadPump(r.Context())
}
