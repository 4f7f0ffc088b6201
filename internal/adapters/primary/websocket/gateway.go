package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/adapters/primary/validation"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// Scope selects who receives an emitted message.
type Scope int

const (
	// ScopeSelf targets only the connection that sent the message.
	ScopeSelf Scope = iota
	// ScopeRoom targets every connection in the event room.
	ScopeRoom
	// ScopeRoomOthers targets the event room except the sending connection.
	ScopeRoomOthers
)

// Emit is one outbound message produced by a handler.
type Emit struct {
	Scope     Scope
	EventID   uuid.UUID
	Type      domain.EventType
	RequestID string
	Payload   any
}

// Outcome is everything a handler wants sent as a result of one message.
type Outcome struct {
	Emits []Emit
}

func (o *Outcome) add(e Emit) {
	o.Emits = append(o.Emits, e)
}

// Rooms manages local room membership for connections.
type Rooms interface {
	Join(s *Session, eventID uuid.UUID)
	// Leave removes the connection from the room and reports whether the same
	// user still holds another local connection in it.
	Leave(s *Session, eventID uuid.UUID) bool
}

// Session is the per-connection state. It is owned by the connection's read
// loop and must not be shared.
type Session struct {
	ConnID string
	Actor  domain.Actor

	joined    map[uuid.UUID]*domain.Event
	baselines map[uuid.UUID]time.Time

	// lastRefresh is when presence was last refreshed for every joined room.
	lastRefresh time.Time
}

// NewSession creates an authenticated session with no joined rooms.
func NewSession(connID string, actor domain.Actor) *Session {
	return &Session{
		ConnID:    connID,
		Actor:     actor,
		joined:    make(map[uuid.UUID]*domain.Event),
		baselines: make(map[uuid.UUID]time.Time),
	}
}

// Joined returns the ids of the rooms the session is in.
func (s *Session) Joined() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s.joined))
	for id := range s.joined {
		ids = append(ids, id)
	}
	return ids
}

// lookup finds a joined event by id or slug.
func (s *Session) lookup(ref domain.EventRef) (*domain.Event, bool) {
	if ref.Kind == domain.EventRefByID {
		event, ok := s.joined[ref.ID]
		return event, ok
	}
	for _, event := range s.joined {
		if event.Slug == ref.Slug {
			return event, true
		}
	}
	return nil, false
}

// maxBacklogPages bounds how many pages one reconnect:flush replays.
const maxBacklogPages = 5

// Gateway dispatches typed client messages to the update service and presence
// tracker. It performs no I/O on the connection itself.
type Gateway struct {
	updates     ports.UpdateService
	presence    ports.PresenceTracker
	rooms       Rooms
	logger      *slog.Logger
	presenceTTL time.Duration
	heartbeat   time.Duration
	now         func() time.Time
}

// GatewayConfig holds presence timing.
type GatewayConfig struct {
	// PresenceTTL is how long an online entry lives without a refresh.
	PresenceTTL time.Duration
	// Heartbeat is the minimum interval between transport-driven presence
	// refreshes. Zero means half the TTL.
	Heartbeat time.Duration
}

// NewGateway creates a gateway. A nil clock defaults to time.Now.
func NewGateway(
	updates ports.UpdateService,
	presence ports.PresenceTracker,
	rooms Rooms,
	logger *slog.Logger,
	cfg GatewayConfig,
	now func() time.Time,
) *Gateway {
	if now == nil {
		now = time.Now
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 || heartbeat >= cfg.PresenceTTL {
		heartbeat = cfg.PresenceTTL / 2
	}
	return &Gateway{
		updates:     updates,
		presence:    presence,
		rooms:       rooms,
		logger:      logger.With("component", "websocket_gateway"),
		presenceTTL: cfg.PresenceTTL,
		heartbeat:   heartbeat,
		now:         now,
	}
}

// Handle processes one inbound message. Failures are reported to the sender
// as an error message; Handle itself never fails.
func (g *Gateway) Handle(ctx context.Context, s *Session, msg InboundMessage) Outcome {
	var (
		out Outcome
		err error
	)

	switch msg.Type {
	case MsgJoinEvent:
		out, err = g.join(ctx, s, msg)
	case MsgLeaveEvent:
		out, err = g.leave(ctx, s, msg)
	case MsgPing:
		out = g.ping(ctx, s, msg)
	case MsgReconnectFlush:
		out, err = g.flush(ctx, s, msg)
	case MsgCreateUpdate:
		out, err = g.createUpdate(ctx, s, msg)
	case MsgReactUpdate:
		out, err = g.react(ctx, s, msg)
	case MsgMarkRead:
		out, err = g.markRead(ctx, s, msg)
	case MsgEditUpdate:
		out, err = g.editUpdate(ctx, s, msg)
	case MsgDeleteUpdate:
		out, err = g.deleteUpdate(ctx, s, msg)
	case MsgRequestUpdates:
		out, err = g.requestUpdates(ctx, s, msg)
	default:
		err = apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Unknown message type: "+msg.Type)
	}

	if err != nil {
		return g.ErrorOutcome(ctx, msg.RequestID, err)
	}
	return out
}

// Disconnect leaves every joined room. Only room-scoped emits are returned.
func (g *Gateway) Disconnect(ctx context.Context, s *Session) Outcome {
	var out Outcome
	for _, id := range s.Joined() {
		g.leaveRoom(ctx, s, id, &out)
	}
	return out
}

// ErrorOutcome reports err to the sender.
func (g *Gateway) ErrorOutcome(ctx context.Context, requestID string, err error) Outcome {
	appErr := apperrors.AsAppError(err)
	if appErr.StatusCode >= 500 {
		g.logger.ErrorContext(ctx, "websocket request failed", "request_id", requestID, "error", err)
	} else {
		g.logger.DebugContext(ctx, "websocket request rejected", "code", appErr.Code, "error", err)
	}

	return Outcome{Emits: []Emit{{
		Scope:     ScopeSelf,
		Type:      domain.EventError,
		RequestID: requestID,
		Payload: domain.ErrorPayload{
			Code:       appErr.Code,
			Message:    appErr.Message,
			RequestID:  requestID,
			RetryAfter: appErr.RetryAfterSeconds(),
		},
	}}}
}

func (g *Gateway) join(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[eventPayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	ref, err := validation.ParseEventRef("eventId", p.EventID)
	if err != nil {
		return Outcome{}, err
	}

	event, err := g.updates.ValidateReader(ctx, ref, s.Actor)
	if err != nil {
		return Outcome{}, err
	}

	_, rejoin := s.joined[event.ID]
	if _, ok := s.baselines[event.ID]; !ok {
		// Must be read before MarkOnline overwrites it.
		if last, err := g.presence.LastSeen(ctx, event.ID, s.Actor.UserID); err != nil {
			g.logger.WarnContext(ctx, "failed to read last seen", "event_id", event.ID, "error", err)
		} else if last != nil {
			s.baselines[event.ID] = *last
		}
	}

	g.rooms.Join(s, event.ID)
	s.joined[event.ID] = event

	if err := g.presence.MarkOnline(ctx, event.ID, s.Actor.UserID, g.presenceTTL); err != nil {
		g.logger.WarnContext(ctx, "failed to mark online", "event_id", event.ID, "error", err)
	}

	onlineCount := 1
	if online, err := g.presence.OnlineUsers(ctx, event.ID); err != nil {
		g.logger.WarnContext(ctx, "failed to count online users", "event_id", event.ID, "error", err)
	} else if len(online) > 0 {
		onlineCount = len(online)
	}

	var out Outcome
	out.add(Emit{
		Scope:     ScopeSelf,
		EventID:   event.ID,
		Type:      domain.EventJoined,
		RequestID: msg.RequestID,
		Payload:   domain.JoinedPayload{EventID: event.ID.String(), OnlineCount: onlineCount},
	})
	if !rejoin {
		out.add(Emit{
			Scope:   ScopeRoomOthers,
			EventID: event.ID,
			Type:    domain.EventUserOnline,
			Payload: domain.PresencePayload{EventID: event.ID.String(), UserID: s.Actor.UserID.String()},
		})
	}
	return out, nil
}

func (g *Gateway) leave(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[eventPayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	ref, err := validation.ParseEventRef("eventId", p.EventID)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	event, ok := s.lookup(ref)
	if !ok {
		out.add(Emit{
			Scope:     ScopeSelf,
			Type:      domain.EventLeft,
			RequestID: msg.RequestID,
			Payload:   domain.LeftPayload{EventID: ref.String()},
		})
		return out, nil
	}

	g.leaveRoom(ctx, s, event.ID, &out)
	out.add(Emit{
		Scope:     ScopeSelf,
		EventID:   event.ID,
		Type:      domain.EventLeft,
		RequestID: msg.RequestID,
		Payload:   domain.LeftPayload{EventID: event.ID.String()},
	})
	return out, nil
}

func (g *Gateway) leaveRoom(ctx context.Context, s *Session, eventID uuid.UUID, out *Outcome) {
	delete(s.joined, eventID)
	if g.rooms.Leave(s, eventID) {
		return
	}

	if err := g.presence.MarkOffline(ctx, eventID, s.Actor.UserID); err != nil {
		g.logger.WarnContext(ctx, "failed to mark offline", "event_id", eventID, "error", err)
	}
	out.add(Emit{
		Scope:   ScopeRoom,
		EventID: eventID,
		Type:    domain.EventUserOff,
		Payload: domain.PresencePayload{EventID: eventID.String(), UserID: s.Actor.UserID.String()},
	})
}

func (g *Gateway) ping(ctx context.Context, s *Session, msg InboundMessage) Outcome {
	g.refreshPresence(ctx, s)
	return Outcome{Emits: []Emit{{Scope: ScopeSelf, Type: domain.EventPong, RequestID: msg.RequestID}}}
}

// Heartbeat refreshes presence for the joined rooms when the transport shows
// the connection is alive. Refreshes are throttled to one per heartbeat interval.
func (g *Gateway) Heartbeat(ctx context.Context, s *Session) {
	if len(s.joined) == 0 || g.now().Sub(s.lastRefresh) < g.heartbeat {
		return
	}
	g.refreshPresence(ctx, s)
}

func (g *Gateway) refreshPresence(ctx context.Context, s *Session) {
	for id := range s.joined {
		if err := g.presence.MarkOnline(ctx, id, s.Actor.UserID, g.presenceTTL); err != nil {
			g.logger.WarnContext(ctx, "failed to refresh presence", "event_id", id, "error", err)
		}
	}
	s.lastRefresh = g.now()
}

func (g *Gateway) flush(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[eventPayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	ref, err := validation.ParseEventRef("eventId", p.EventID)
	if err != nil {
		return Outcome{}, err
	}

	// Read access is checked on every flush, joined or not.
	event, err := g.updates.ValidateReader(ctx, ref, s.Actor)
	if err != nil {
		return Outcome{}, err
	}

	since, haveBaseline := s.baselines[event.ID]
	if !haveBaseline {
		if last, err := g.presence.LastSeen(ctx, event.ID, s.Actor.UserID); err != nil {
			g.logger.WarnContext(ctx, "failed to read last seen", "event_id", event.ID, "error", err)
		} else if last != nil {
			since, haveBaseline = *last, true
		}
	}

	// Taken before the query so nothing created during it is skipped next time.
	next := g.now()

	var out Outcome
	if haveBaseline {
		updates, cursor, complete, err := g.backlog(ctx, event.ID, since, !s.Actor.CanAuthor(event))
		if err != nil {
			g.logger.WarnContext(ctx, "backlog query failed", "event_id", event.ID, "error", err)
			next = since
		} else {
			if !complete {
				next = cursor
			}
			if len(updates) > 0 {
				out.add(Emit{
					Scope:     ScopeSelf,
					EventID:   event.ID,
					Type:      domain.EventBacklog,
					RequestID: msg.RequestID,
					Payload: domain.BacklogPayload{
						EventID: event.ID.String(),
						Updates: domain.NewUpdateSnapshots(updates),
						HasMore: !complete,
					},
				})
			}
		}
	}

	if err := g.presence.MarkOnline(ctx, event.ID, s.Actor.UserID, g.presenceTTL); err != nil {
		g.logger.WarnContext(ctx, "failed to mark online", "event_id", event.ID, "error", err)
	}
	s.baselines[event.ID] = next

	return out, nil
}

// backlog pages through updates created after since, up to
// maxBacklogPages pages. Pages overlap by one microsecond so updates sharing
// a timestamp across a page boundary are not skipped; duplicates are dropped.
// When complete is false, cursor is where the next flush must resume.
func (g *Gateway) backlog(ctx context.Context, eventID uuid.UUID, since time.Time, onlyApproved bool) (updates []*domain.Update, cursor time.Time, complete bool, err error) {
	seen := make(map[uuid.UUID]struct{})
	cursor = since

	for page := 0; page < maxBacklogPages; page++ {
		batch, err := g.updates.ListUpdatesSince(ctx, domain.EventRefFromID(eventID), cursor, onlyApproved)
		if err != nil {
			if len(updates) == 0 {
				return nil, since, false, err
			}
			g.logger.WarnContext(ctx, "backlog page failed", "event_id", eventID, "error", err)
			return updates, cursor, false, nil
		}

		for _, u := range batch {
			if _, dup := seen[u.ID]; dup {
				continue
			}
			seen[u.ID] = struct{}{}
			updates = append(updates, u)
		}

		if len(batch) < domain.BacklogPageSize {
			return updates, cursor, true, nil
		}
		cursor = batch[len(batch)-1].CreatedAt.Add(-time.Microsecond)
	}
	return updates, cursor, false, nil
}

func (g *Gateway) createUpdate(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[createUpdatePayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	ref, err := validation.ParseEventRef("eventId", p.EventID)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}

	result, err := g.updates.CreateUpdate(ctx, p.ToParams(ref, s.Actor, s.ConnID))
	if err != nil {
		return Outcome{}, err
	}

	return selfUpdate(msg, result.Update, domain.ActionNew), nil
}

func (g *Gateway) react(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[reactPayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	updateID, err := validation.ParseUUID("updateId", p.UpdateID)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}

	reaction := domain.ReactionType(p.ReactionType)
	if err := g.updates.React(ctx, updateID, s.Actor, reaction, s.ConnID); err != nil {
		return Outcome{}, err
	}

	return Outcome{Emits: []Emit{{
		Scope:     ScopeSelf,
		Type:      domain.EventReaction,
		RequestID: msg.RequestID,
		Payload: domain.ReactionEventPayload{
			UpdateID:     updateID.String(),
			UserID:       s.Actor.UserID.String(),
			ReactionType: string(reaction),
		},
	}}}, nil
}

func (g *Gateway) markRead(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[updatePayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	updateID, err := validation.ParseUUID("updateId", p.UpdateID)
	if err != nil {
		return Outcome{}, err
	}

	if err := g.updates.MarkRead(ctx, updateID, s.Actor); err != nil {
		return Outcome{}, err
	}

	return Outcome{Emits: []Emit{{
		Scope:     ScopeSelf,
		Type:      domain.EventReadAck,
		RequestID: msg.RequestID,
		Payload:   domain.ReadAckPayload{UpdateID: updateID.String()},
	}}}, nil
}

func (g *Gateway) editUpdate(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[editUpdatePayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	updateID, err := validation.ParseUUID("updateId", p.UpdateID)
	if err != nil {
		return Outcome{}, err
	}
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}

	edited, err := g.updates.EditUpdate(ctx, ports.EditUpdateParams{
		Edit:          p.ToEdit(updateID),
		Actor:         s.Actor,
		ExcludeConnID: s.ConnID,
	})
	if err != nil {
		return Outcome{}, err
	}

	return selfUpdate(msg, edited, domain.ActionEdited), nil
}

func (g *Gateway) deleteUpdate(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[updatePayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	updateID, err := validation.ParseUUID("updateId", p.UpdateID)
	if err != nil {
		return Outcome{}, err
	}

	// The room broadcast skips this connection, so the sender gets the
	// deleted snapshot directly.
	update, err := g.updates.GetUpdate(ctx, updateID, s.Actor)
	if err != nil {
		return Outcome{}, err
	}
	if err := g.updates.RemoveUpdate(ctx, updateID, s.Actor, s.ConnID); err != nil {
		return Outcome{}, err
	}

	deletedAt := g.now().UTC()
	update.DeletedAt = &deletedAt
	return selfUpdate(msg, update, domain.ActionDeleted), nil
}

func (g *Gateway) requestUpdates(ctx context.Context, s *Session, msg InboundMessage) (Outcome, error) {
	p, err := validation.DecodePayload[requestUpdatesPayload](msg.Payload)
	if err != nil {
		return Outcome{}, err
	}
	ref, err := validation.ParseEventRef("eventId", p.EventID)
	if err != nil {
		return Outcome{}, err
	}

	params := domain.ListUpdatesParams{Limit: p.Limit}
	if p.Before != "" {
		before, err := validation.ParseTimestamp(p.Before)
		if err != nil {
			return Outcome{}, apperrors.NewValidationError(err, "Invalid before timestamp",
				map[string]interface{}{"before": []string{"Must be an RFC 3339 timestamp"}})
		}
		params.Before = &before
	}
	params.Normalize()

	updates, err := g.updates.ListUpdates(ctx, ref, s.Actor, params)
	if err != nil {
		return Outcome{}, err
	}

	eventID := ref.ID
	if event, ok := s.lookup(ref); ok {
		eventID = event.ID
	}
	return Outcome{Emits: []Emit{{
		Scope:     ScopeSelf,
		EventID:   eventID,
		Type:      domain.EventUpdateList,
		RequestID: msg.RequestID,
		Payload: domain.UpdateListPayload{
			EventID: ref.String(),
			Updates: domain.NewUpdateSnapshots(updates),
		},
	}}}, nil
}

func selfUpdate(msg InboundMessage, update *domain.Update, action domain.UpdateAction) Outcome {
	return Outcome{Emits: []Emit{{
		Scope:     ScopeSelf,
		EventID:   update.EventID,
		Type:      domain.EventUpdate,
		RequestID: msg.RequestID,
		Payload: domain.UpdateEventPayload{
			Action: action,
			Update: domain.NewUpdateSnapshot(update),
		},
	}}}
}

// encodePayload marshals an emit payload. A nil payload encodes to nothing.
func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
