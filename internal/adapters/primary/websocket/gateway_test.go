package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/event-updates-backend/internal/adapters/secondary/memory"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/mocks"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	presenceTTL = 2 * time.Minute
	heartbeat   = 45 * time.Second
)

type fakeRooms struct {
	joins        []uuid.UUID
	leaves       []uuid.UUID
	stillPresent map[uuid.UUID]bool
}

func (f *fakeRooms) Join(_ *Session, eventID uuid.UUID) {
	f.joins = append(f.joins, eventID)
}

func (f *fakeRooms) Leave(_ *Session, eventID uuid.UUID) bool {
	f.leaves = append(f.leaves, eventID)
	return f.stillPresent[eventID]
}

type gatewayFixture struct {
	gw       *Gateway
	updates  *mocks.MockUpdateService
	presence *mocks.MockPresenceTracker
	rooms    *fakeRooms
	session  *Session
	event    *domain.Event
	now      time.Time
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()

	f := &gatewayFixture{
		updates:  mocks.NewMockUpdateService(),
		presence: mocks.NewMockPresenceTracker(),
		rooms:    &fakeRooms{stillPresent: map[uuid.UUID]bool{}},
		session:  NewSession("conn-1", domain.Actor{UserID: uuid.New(), Role: domain.RoleAttendee}),
		event:    &domain.Event{ID: uuid.New(), Slug: "summer-fest", OrganizerID: uuid.New()},
		now:      t0,
	}
	f.gw = NewGateway(f.updates, f.presence, f.rooms,
		slog.New(slog.NewTextHandler(io.Discard, nil)), GatewayConfig{PresenceTTL: presenceTTL, Heartbeat: heartbeat},
		func() time.Time { return f.now })

	t.Cleanup(func() {
		f.updates.AssertExpectations(t)
		f.presence.AssertExpectations(t)
	})
	return f
}

func (f *gatewayFixture) joined() {
	f.session.joined[f.event.ID] = f.event
}

func message(t *testing.T, msgType string, payload any) InboundMessage {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return InboundMessage{Type: msgType, RequestID: "req-1", Payload: raw}
}

func singleError(t *testing.T, out Outcome) domain.ErrorPayload {
	t.Helper()
	require.Len(t, out.Emits, 1)
	require.Equal(t, domain.EventError, out.Emits[0].Type)
	require.Equal(t, ScopeSelf, out.Emits[0].Scope)
	payload, ok := out.Emits[0].Payload.(domain.ErrorPayload)
	require.True(t, ok)
	return payload
}

func TestGateway_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("joins room and announces presence", func(t *testing.T) {
		f := newGatewayFixture(t)
		lastSeen := t0.Add(-time.Hour)
		userID := f.session.Actor.UserID

		f.updates.On("ValidateReader", ctx, domain.EventRef{Kind: domain.EventRefBySlug, Slug: "summer-fest"}, f.session.Actor).
			Return(f.event, nil)
		f.presence.On("LastSeen", ctx, f.event.ID, userID).Return(&lastSeen, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, userID, presenceTTL).Return(nil)
		f.presence.On("OnlineUsers", ctx, f.event.ID).Return([]uuid.UUID{userID, uuid.New()}, nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgJoinEvent, map[string]string{"eventId": "summer-fest"}))

		require.Len(t, out.Emits, 2)
		assert.Equal(t, ScopeSelf, out.Emits[0].Scope)
		assert.Equal(t, domain.EventJoined, out.Emits[0].Type)
		assert.Equal(t, "req-1", out.Emits[0].RequestID)
		assert.Equal(t, domain.JoinedPayload{EventID: f.event.ID.String(), OnlineCount: 2}, out.Emits[0].Payload)

		assert.Equal(t, ScopeRoomOthers, out.Emits[1].Scope)
		assert.Equal(t, domain.EventUserOnline, out.Emits[1].Type)
		assert.Equal(t, f.event.ID, out.Emits[1].EventID)

		assert.Equal(t, []uuid.UUID{f.event.ID}, f.rooms.joins)
		assert.Equal(t, lastSeen, f.session.baselines[f.event.ID])
		assert.ElementsMatch(t, []uuid.UUID{f.event.ID}, f.session.Joined())
	})

	t.Run("rejoin does not announce again", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.session.baselines[f.event.ID] = t0

		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).Return(f.event, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)
		f.presence.On("OnlineUsers", ctx, f.event.ID).Return(nil, errors.New("kv down"))

		out := f.gw.Handle(ctx, f.session, message(t, MsgJoinEvent, map[string]string{"eventId": f.event.ID.String()}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.JoinedPayload{EventID: f.event.ID.String(), OnlineCount: 1}, out.Emits[0].Payload)
		f.presence.AssertNotCalled(t, "LastSeen", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("reader check failure", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).Return(nil, apperrors.ErrAccessDenied)

		out := f.gw.Handle(ctx, f.session, message(t, MsgJoinEvent, map[string]string{"eventId": "summer-fest"}))

		payload := singleError(t, out)
		assert.Equal(t, "ACCESS_DENIED", payload.Code)
		assert.Equal(t, "req-1", payload.RequestID)
		assert.Empty(t, f.rooms.joins)
		assert.Empty(t, f.session.Joined())
	})

	t.Run("invalid event reference", func(t *testing.T) {
		f := newGatewayFixture(t)

		out := f.gw.Handle(ctx, f.session, message(t, MsgJoinEvent, map[string]string{"eventId": "Not A Slug!"}))

		assert.Equal(t, "VALIDATION_ERROR", singleError(t, out).Code)
	})
}

func TestGateway_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("last local connection goes offline", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.presence.On("MarkOffline", ctx, f.event.ID, f.session.Actor.UserID).Return(nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgLeaveEvent, map[string]string{"eventId": "summer-fest"}))

		require.Len(t, out.Emits, 2)
		assert.Equal(t, ScopeRoom, out.Emits[0].Scope)
		assert.Equal(t, domain.EventUserOff, out.Emits[0].Type)
		assert.Equal(t, ScopeSelf, out.Emits[1].Scope)
		assert.Equal(t, domain.EventLeft, out.Emits[1].Type)
		assert.Empty(t, f.session.Joined())
	})

	t.Run("another connection keeps the user online", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.rooms.stillPresent[f.event.ID] = true

		out := f.gw.Handle(ctx, f.session, message(t, MsgLeaveEvent, map[string]string{"eventId": f.event.ID.String()}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.EventLeft, out.Emits[0].Type)
		f.presence.AssertNotCalled(t, "MarkOffline", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not joined", func(t *testing.T) {
		f := newGatewayFixture(t)

		out := f.gw.Handle(ctx, f.session, message(t, MsgLeaveEvent, map[string]string{"eventId": "summer-fest"}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.LeftPayload{EventID: "summer-fest"}, out.Emits[0].Payload)
		assert.Empty(t, f.rooms.leaves)
	})
}

func TestGateway_Disconnect(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	other := &domain.Event{ID: uuid.New(), Slug: "other", OrganizerID: uuid.New()}
	f.joined()
	f.session.joined[other.ID] = other
	f.rooms.stillPresent[other.ID] = true

	f.presence.On("MarkOffline", ctx, f.event.ID, f.session.Actor.UserID).Return(errors.New("kv down"))

	out := f.gw.Disconnect(ctx, f.session)

	require.Len(t, out.Emits, 1)
	assert.Equal(t, ScopeRoom, out.Emits[0].Scope)
	assert.Equal(t, f.event.ID, out.Emits[0].EventID)
	assert.ElementsMatch(t, []uuid.UUID{f.event.ID, other.ID}, f.rooms.leaves)
	assert.Empty(t, f.session.Joined())
}

func TestGateway_Ping(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)
	f.joined()
	f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil).Once()

	out := f.gw.Handle(ctx, f.session, InboundMessage{Type: MsgPing})

	require.Len(t, out.Emits, 1)
	assert.Equal(t, domain.EventPong, out.Emits[0].Type)
	assert.Nil(t, out.Emits[0].Payload)
}

func TestGateway_Heartbeat(t *testing.T) {
	ctx := context.Background()

	t.Run("throttled to one refresh per interval", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil).Twice()

		f.gw.Heartbeat(ctx, f.session)
		f.now = f.now.Add(10 * time.Second)
		f.gw.Heartbeat(ctx, f.session)
		f.now = f.now.Add(heartbeat)
		f.gw.Heartbeat(ctx, f.session)
	})

	t.Run("no rooms means no refresh", func(t *testing.T) {
		f := newGatewayFixture(t)

		f.gw.Heartbeat(ctx, f.session)

		f.presence.AssertNotCalled(t, "MarkOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("keeps a silent client online past the ttl", func(t *testing.T) {
		now := t0
		clock := func() time.Time { return now }
		presence := memory.NewPresenceTracker(clock)
		event := &domain.Event{ID: uuid.New(), Slug: "summer-fest", OrganizerID: uuid.New()}
		session := NewSession("conn-1", domain.Actor{UserID: uuid.New(), Role: domain.RoleAttendee})
		session.joined[event.ID] = event
		gw := NewGateway(mocks.NewMockUpdateService(), presence, &fakeRooms{},
			slog.New(slog.NewTextHandler(io.Discard, nil)),
			GatewayConfig{PresenceTTL: presenceTTL, Heartbeat: heartbeat}, clock)

		require.NoError(t, presence.MarkOnline(ctx, event.ID, session.Actor.UserID, presenceTTL))

		// Transport pongs every 54s, no application pings.
		for i := 0; i < 5; i++ {
			now = now.Add(54 * time.Second)
			gw.Heartbeat(ctx, session)
		}

		online, err := presence.OnlineUsers(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{session.Actor.UserID}, online)
	})
}

func TestGateway_ReconnectFlush(t *testing.T) {
	ctx := context.Background()
	flushMsg := func(t *testing.T) InboundMessage {
		return message(t, MsgReconnectFlush, map[string]string{"eventId": "summer-fest"})
	}

	t.Run("emits backlog since session baseline", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		baseline := t0.Add(-10 * time.Minute)
		f.session.baselines[f.event.ID] = baseline
		missed := []*domain.Update{
			{ID: uuid.New(), EventID: f.event.ID, Content: "doors open", CreatedAt: t0.Add(-5 * time.Minute)},
			{ID: uuid.New(), EventID: f.event.ID, Content: "stage change", CreatedAt: t0.Add(-time.Minute)},
		}

		f.updates.On("ValidateReader", ctx, domain.EventRef{Kind: domain.EventRefBySlug, Slug: "summer-fest"}, f.session.Actor).Return(f.event, nil)
		f.updates.On("ListUpdatesSince", ctx, domain.EventRefFromID(f.event.ID), baseline, true).Return(missed, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.EventBacklog, out.Emits[0].Type)
		backlog, ok := out.Emits[0].Payload.(domain.BacklogPayload)
		require.True(t, ok)
		require.Len(t, backlog.Updates, 2)
		assert.Equal(t, missed[0].ID.String(), backlog.Updates[0].ID)
		assert.Equal(t, t0, f.session.baselines[f.event.ID])
	})

	t.Run("organizer sees unapproved backlog", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.session.Actor = domain.Actor{UserID: f.event.OrganizerID, Role: domain.RoleOrganizer}
		f.joined()
		f.session.baselines[f.event.ID] = t0.Add(-time.Minute)

		f.updates.On("ValidateReader", ctx, domain.EventRef{Kind: domain.EventRefBySlug, Slug: "summer-fest"}, f.session.Actor).Return(f.event, nil)
		f.updates.On("ListUpdatesSince", ctx, mock.Anything, mock.Anything, false).Return([]*domain.Update{}, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, f.event.OrganizerID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		assert.Empty(t, out.Emits)
	})

	t.Run("falls back to last seen when not joined", func(t *testing.T) {
		f := newGatewayFixture(t)
		lastSeen := t0.Add(-time.Hour)

		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).Return(f.event, nil)
		f.presence.On("LastSeen", ctx, f.event.ID, f.session.Actor.UserID).Return(&lastSeen, nil)
		f.updates.On("ListUpdatesSince", ctx, mock.Anything, lastSeen, true).Return([]*domain.Update{}, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		assert.Empty(t, out.Emits)
		assert.Equal(t, t0, f.session.baselines[f.event.ID])
	})

	t.Run("no baseline means no backlog", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.updates.On("ValidateReader", ctx, domain.EventRef{Kind: domain.EventRefBySlug, Slug: "summer-fest"}, f.session.Actor).Return(f.event, nil)
		f.presence.On("LastSeen", ctx, f.event.ID, f.session.Actor.UserID).Return(nil, nil)
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		assert.Empty(t, out.Emits)
		f.updates.AssertNotCalled(t, "ListUpdatesSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("query failure degrades to no backlog", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.session.baselines[f.event.ID] = t0.Add(-time.Minute)
		f.updates.On("ValidateReader", ctx, domain.EventRef{Kind: domain.EventRefBySlug, Slug: "summer-fest"}, f.session.Actor).Return(f.event, nil)
		f.updates.On("ListUpdatesSince", ctx, mock.Anything, mock.Anything, true).Return(nil, errors.New("db down"))
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		assert.Empty(t, out.Emits)
		// The baseline is kept so the next flush retries the same range.
		assert.Equal(t, t0.Add(-time.Minute), f.session.baselines[f.event.ID])
	})

	t.Run("rechecks read access for a joined room", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		f.session.baselines[f.event.ID] = t0.Add(-time.Minute)
		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).
			Return(nil, apperrors.ErrAccessDenied)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		payload := singleError(t, out)
		assert.Equal(t, "ACCESS_DENIED", payload.Code)
		f.updates.AssertNotCalled(t, "ListUpdatesSince", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.presence.AssertNotCalled(t, "MarkOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("pages through a backlog larger than one page", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		baseline := t0.Add(-time.Hour)
		f.session.baselines[f.event.ID] = baseline

		first := backlogPage(f.event.ID, baseline.Add(time.Second), domain.BacklogPageSize)
		last := first[len(first)-1]
		// The second page overlaps the first by the boundary update.
		second := append([]*domain.Update{last}, backlogPage(f.event.ID, last.CreatedAt.Add(time.Second), 3)...)

		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).Return(f.event, nil)
		f.updates.On("ListUpdatesSince", ctx, mock.Anything, baseline, true).Return(first, nil).Once()
		f.updates.On("ListUpdatesSince", ctx, mock.Anything, last.CreatedAt.Add(-time.Microsecond), true).Return(second, nil).Once()
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		require.Len(t, out.Emits, 1)
		backlog, ok := out.Emits[0].Payload.(domain.BacklogPayload)
		require.True(t, ok)
		assert.Len(t, backlog.Updates, domain.BacklogPageSize+3)
		assert.False(t, backlog.HasMore)
		assert.Equal(t, second[len(second)-1].ID.String(), backlog.Updates[len(backlog.Updates)-1].ID)
		assert.Equal(t, t0, f.session.baselines[f.event.ID])
	})

	t.Run("stops after the page cap and resumes from the last update", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.joined()
		baseline := t0.Add(-24 * time.Hour)
		f.session.baselines[f.event.ID] = baseline

		f.updates.On("ValidateReader", ctx, mock.Anything, f.session.Actor).Return(f.event, nil)
		since := baseline
		for i := 0; i < maxBacklogPages; i++ {
			page := backlogPage(f.event.ID, since.Add(time.Second), domain.BacklogPageSize)
			f.updates.On("ListUpdatesSince", ctx, mock.Anything, since, true).Return(page, nil).Once()
			since = page[len(page)-1].CreatedAt.Add(-time.Microsecond)
		}
		f.presence.On("MarkOnline", ctx, f.event.ID, f.session.Actor.UserID, presenceTTL).Return(nil)

		out := f.gw.Handle(ctx, f.session, flushMsg(t))

		require.Len(t, out.Emits, 1)
		backlog, ok := out.Emits[0].Payload.(domain.BacklogPayload)
		require.True(t, ok)
		assert.Len(t, backlog.Updates, maxBacklogPages*domain.BacklogPageSize)
		assert.True(t, backlog.HasMore)
		assert.Equal(t, since, f.session.baselines[f.event.ID])
	})
}

// backlogPage builds n approved updates one second apart starting at from.
func backlogPage(eventID uuid.UUID, from time.Time, n int) []*domain.Update {
	page := make([]*domain.Update, n)
	for i := range page {
		page[i] = &domain.Update{
			ID:        uuid.New(),
			EventID:   eventID,
			Content:   "update",
			CreatedAt: from.Add(time.Duration(i) * time.Second),
		}
	}
	return page
}

func TestGateway_CreateUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("replies to the sender", func(t *testing.T) {
		f := newGatewayFixture(t)
		created := &domain.Update{
			ID:         uuid.New(),
			EventID:    f.event.ID,
			Content:    "Doors open",
			Priority:   domain.PriorityHigh,
			Moderation: domain.Moderation{Status: domain.ModerationApproved},
			CreatedAt:  t0,
		}

		f.updates.On("CreateUpdate", ctx, mock.MatchedBy(func(p ports.CreateUpdateParams) bool {
			return p.ExcludeConnID == "conn-1" &&
				p.Content == "Doors open" &&
				p.Priority == domain.PriorityHigh &&
				p.EventRef.Slug == "summer-fest"
		})).Return(&ports.CreateUpdateResult{Update: created}, nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgCreateUpdate, map[string]any{
			"eventId":  "summer-fest",
			"content":  "Doors open",
			"priority": "high",
		}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.EventUpdate, out.Emits[0].Type)
		assert.Equal(t, f.event.ID, out.Emits[0].EventID)
		payload := out.Emits[0].Payload.(domain.UpdateEventPayload)
		assert.Equal(t, domain.ActionNew, payload.Action)
		assert.Equal(t, created.ID.String(), payload.Update.ID)
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.updates.On("CreateUpdate", ctx, mock.Anything).Return(nil, apperrors.NewRateLimitError(2*time.Minute))

		out := f.gw.Handle(ctx, f.session, message(t, MsgCreateUpdate, map[string]any{
			"eventId": "summer-fest",
			"content": "again",
		}))

		payload := singleError(t, out)
		assert.Equal(t, "RATE_LIMITED", payload.Code)
		assert.Equal(t, 120, payload.RetryAfter)
	})

	t.Run("invalid priority never reaches the service", func(t *testing.T) {
		f := newGatewayFixture(t)

		out := f.gw.Handle(ctx, f.session, message(t, MsgCreateUpdate, map[string]any{
			"eventId":  "summer-fest",
			"content":  "hello",
			"priority": "urgent",
		}))

		assert.Equal(t, "VALIDATION_ERROR", singleError(t, out).Code)
	})
}

func TestGateway_ReactAndRead(t *testing.T) {
	ctx := context.Background()
	updateID := uuid.New()

	t.Run("react", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.updates.On("React", ctx, updateID, f.session.Actor, domain.ReactionClap, "conn-1").Return(nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgReactUpdate, map[string]string{
			"updateId":     updateID.String(),
			"reactionType": "clap",
		}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.ReactionEventPayload{
			UpdateID:     updateID.String(),
			UserID:       f.session.Actor.UserID.String(),
			ReactionType: "clap",
		}, out.Emits[0].Payload)
	})

	t.Run("unknown reaction", func(t *testing.T) {
		f := newGatewayFixture(t)

		out := f.gw.Handle(ctx, f.session, message(t, MsgReactUpdate, map[string]string{
			"updateId":     updateID.String(),
			"reactionType": "meh",
		}))

		assert.Equal(t, "VALIDATION_ERROR", singleError(t, out).Code)
	})

	t.Run("mark read", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.updates.On("MarkRead", ctx, updateID, f.session.Actor).Return(nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgMarkRead, map[string]string{"updateId": updateID.String()}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.EventReadAck, out.Emits[0].Type)
	})

	t.Run("bad update id", func(t *testing.T) {
		f := newGatewayFixture(t)

		out := f.gw.Handle(ctx, f.session, message(t, MsgMarkRead, map[string]string{"updateId": "42"}))

		assert.Equal(t, "VALIDATION_ERROR", singleError(t, out).Code)
	})
}

func TestGateway_EditAndDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("edit", func(t *testing.T) {
		f := newGatewayFixture(t)
		updateID := uuid.New()
		edited := &domain.Update{ID: updateID, EventID: f.event.ID, Content: "fixed", CreatedAt: t0}

		f.updates.On("EditUpdate", ctx, mock.MatchedBy(func(p ports.EditUpdateParams) bool {
			return p.Edit.UpdateID == updateID && *p.Edit.Content == "fixed" && p.ExcludeConnID == "conn-1"
		})).Return(edited, nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgEditUpdate, map[string]string{
			"updateId": updateID.String(),
			"content":  "fixed",
		}))

		require.Len(t, out.Emits, 1)
		assert.Equal(t, domain.ActionEdited, out.Emits[0].Payload.(domain.UpdateEventPayload).Action)
	})

	t.Run("edit window expired", func(t *testing.T) {
		f := newGatewayFixture(t)
		f.updates.On("EditUpdate", ctx, mock.Anything).Return(nil, apperrors.NewEditWindowExpiredError(5*time.Minute))

		out := f.gw.Handle(ctx, f.session, message(t, MsgEditUpdate, map[string]string{
			"updateId": uuid.NewString(),
			"content":  "late",
		}))

		assert.Equal(t, "EDIT_WINDOW_EXPIRED", singleError(t, out).Code)
	})

	t.Run("delete", func(t *testing.T) {
		f := newGatewayFixture(t)
		update := &domain.Update{ID: uuid.New(), EventID: f.event.ID, Content: "bye", CreatedAt: t0.Add(-time.Hour)}

		f.updates.On("GetUpdate", ctx, update.ID, f.session.Actor).Return(update, nil)
		f.updates.On("RemoveUpdate", ctx, update.ID, f.session.Actor, "conn-1").Return(nil)

		out := f.gw.Handle(ctx, f.session, message(t, MsgDeleteUpdate, map[string]string{"updateId": update.ID.String()}))

		require.Len(t, out.Emits, 1)
		payload := out.Emits[0].Payload.(domain.UpdateEventPayload)
		assert.Equal(t, domain.ActionDeleted, payload.Action)
		require.NotNil(t, payload.Update.DeletedAt)
	})
}

func TestGateway_RequestUpdates(t *testing.T) {
	ctx := context.Background()
	f := newGatewayFixture(t)

	f.updates.On("ListUpdates", ctx, mock.Anything, f.session.Actor, domain.ListUpdatesParams{Limit: domain.DefaultListLimit}).
		Return([]*domain.Update{{ID: uuid.New(), EventID: f.event.ID, CreatedAt: t0}}, nil)

	out := f.gw.Handle(ctx, f.session, message(t, MsgRequestUpdates, map[string]string{"eventId": "summer-fest"}))

	require.Len(t, out.Emits, 1)
	assert.Equal(t, domain.EventUpdateList, out.Emits[0].Type)
	list := out.Emits[0].Payload.(domain.UpdateListPayload)
	assert.Equal(t, "summer-fest", list.EventID)
	assert.Len(t, list.Updates, 1)

	out = f.gw.Handle(ctx, f.session, message(t, MsgRequestUpdates, map[string]string{
		"eventId": "summer-fest",
		"before":  "last tuesday",
	}))
	assert.Equal(t, "VALIDATION_ERROR", singleError(t, out).Code)
}

func TestGateway_UnknownMessage(t *testing.T) {
	f := newGatewayFixture(t)

	out := f.gw.Handle(context.Background(), f.session, InboundMessage{Type: "shout", RequestID: "r"})

	payload := singleError(t, out)
	assert.Equal(t, "BAD_REQUEST", payload.Code)
	assert.Equal(t, "r", payload.RequestID)
}
