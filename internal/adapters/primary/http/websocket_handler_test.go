package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsAdapter "github.com/lorrc/event-updates-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/memory"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/mocks"
)

func newTestWebSocketHandler(t *testing.T, verifier *mocks.MockIdentityVerifier, origins []string) (*WebSocketHandler, *wsAdapter.Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := wsAdapter.NewHub(memory.NewBroker(), testLogger)
	go func() { _ = hub.Run(ctx) }()

	gateway := wsAdapter.NewGateway(
		mocks.NewMockUpdateService(),
		memory.NewPresenceTracker(nil),
		hub,
		testLogger,
		wsAdapter.GatewayConfig{PresenceTTL: time.Minute},
		nil,
	)

	handler := NewWebSocketHandler(hub, gateway, verifier, WebSocketConfig{
		AllowedOrigins:  origins,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}, testLogger)
	return handler, hub
}

func TestWebSocketHandler_RejectsBeforeUpgrade(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		handler, _ := newTestWebSocketHandler(t, mocks.NewMockIdentityVerifier(), nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	})

	t.Run("invalid token", func(t *testing.T) {
		verifier := mocks.NewMockIdentityVerifier()
		verifier.On("Verify", "expired").Return(domain.Actor{}, apperrors.ErrUnauthorized)
		handler, _ := newTestWebSocketHandler(t, verifier, nil)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=expired", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		verifier.AssertExpectations(t)
	})
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	handler, _ := newTestWebSocketHandler(t, mocks.NewMockIdentityVerifier(),
		[]string{"https://app.example.com", "*.events.test"})

	cases := map[string]bool{
		"":                           true,
		"https://app.example.com":    true,
		"https://evil.example.com":   false,
		"https://live.events.test":   true,
		"https://events.test":        true,
		"https://notevents.test":     false,
		"http://[::1]:namedport/bad": false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		assert.Equal(t, want, handler.checkOrigin(req), origin)
	}
}

func TestWebSocketHandler_PingPong(t *testing.T) {
	actor := domain.Actor{UserID: uuid.New(), Role: domain.RoleAttendee}
	verifier := mocks.NewMockIdentityVerifier()
	verifier.On("Verify", "good").Return(actor, nil)

	handler, hub := newTestWebSocketHandler(t, verifier, nil)
	server := httptest.NewServer(handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=good"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteJSON(wsAdapter.InboundMessage{Type: wsAdapter.MsgPing, RequestID: "r1"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply wsAdapter.OutboundMessage
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, domain.EventPong, reply.Type)
	assert.Equal(t, "r1", reply.RequestID)
	assert.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, domain.EventError, reply.Type)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, wsAdapter.ClosePolicyViolated, closeErr.Code)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
