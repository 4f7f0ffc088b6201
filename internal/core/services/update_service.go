package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// BacklogLimit bounds one page of missed updates. Callers page by passing
// the last returned CreatedAt as the next since.
const BacklogLimit = domain.BacklogPageSize

// UpdateServiceDeps groups the collaborators of UpdateService.
type UpdateServiceDeps struct {
	Updates     ports.UpdateRepository
	Engagement  ports.EngagementRepository
	Events      ports.EventDirectory
	Queue       ports.FallbackQueue
	Limiter     ports.RateLimiter
	Broadcaster ports.EventBroadcaster
	TxManager   ports.TransactionManager
	Metrics     *Metrics
	Logger      *slog.Logger
	Clock       func() time.Time
	EditWindow  time.Duration
}

// UpdateService implements business logic for event updates
type UpdateService struct {
	updates     ports.UpdateRepository
	engagement  ports.EngagementRepository
	events      ports.EventDirectory
	queue       ports.FallbackQueue
	limiter     ports.RateLimiter
	broadcaster ports.EventBroadcaster
	txManager   ports.TransactionManager
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	editWindow  time.Duration
}

var _ ports.UpdateService = (*UpdateService)(nil)

// NewUpdateService creates a new update service
func NewUpdateService(deps UpdateServiceDeps) *UpdateService {
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	window := deps.EditWindow
	if window <= 0 {
		window = domain.EditWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UpdateService{
		updates:     deps.Updates,
		engagement:  deps.Engagement,
		events:      deps.Events,
		queue:       deps.Queue,
		limiter:     deps.Limiter,
		broadcaster: deps.Broadcaster,
		txManager:   deps.TxManager,
		metrics:     deps.Metrics,
		logger:      logger.With("component", "update_service"),
		now:         now,
		editWindow:  window,
	}
}

// ValidateOrganizer resolves the event and checks the actor may author updates for it.
func (s *UpdateService) ValidateOrganizer(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error) {
	event, err := s.events.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !actor.CanAuthor(event) {
		return nil, fmt.Errorf("%w: not the organizer of this event", apperrors.ErrAccessDenied)
	}
	return event, nil
}

// ValidateReader resolves the event and checks the actor may read its updates.
// Ticket ownership is looked up on every call.
func (s *UpdateService) ValidateReader(ctx context.Context, ref domain.EventRef, actor domain.Actor) (*domain.Event, error) {
	event, err := s.events.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if actor.CanAuthor(event) {
		return event, nil
	}

	hasTicket, err := s.events.HasTicket(ctx, event.ID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("check ticket ownership: %w", err)
	}
	if !hasTicket {
		return nil, fmt.Errorf("%w: no ticket for this event", apperrors.ErrAccessDenied)
	}
	return event, nil
}

// CreateUpdate handles the use case for broadcasting a new update
func (s *UpdateService) CreateUpdate(ctx context.Context, params ports.CreateUpdateParams) (*ports.CreateUpdateResult, error) {
	// 1. Authorization
	event, err := s.ValidateOrganizer(ctx, params.EventRef, params.Actor)
	if err != nil {
		return nil, err
	}

	// Organizer posts are approved on creation; only admins choose a status.
	if params.Moderation != nil && !params.Actor.IsAdmin() {
		return nil, apperrors.ErrModerationAdminOnly
	}

	// 2. Rate limit per (organizer, event)
	if err := s.checkRate(ctx, OpCreateUpdate, params.Actor.UserID.String()+":"+event.ID.String()); err != nil {
		return nil, err
	}

	// 3. Build and validate the domain entity
	update, err := domain.NewUpdate(domain.UpdateParams{
		EventID:     event.ID,
		OrganizerID: params.Actor.UserID,
		Content:     params.Content,
		MediaURLs:   params.MediaURLs,
		Priority:    params.Priority,
		Moderation:  params.Moderation,
	}, s.now())
	if err != nil {
		return nil, err
	}
	if params.Moderation != nil && params.Actor.IsAdmin() {
		reviewer := params.Actor.UserID
		reviewedAt := update.CreatedAt
		update.Moderation.ReviewedBy = &reviewer
		update.Moderation.ReviewedAt = &reviewedAt
	}

	// 4. Persist. This is the only step whose failure fails the call.
	created, err := s.updates.Create(ctx, update)
	if err != nil {
		return nil, err
	}
	s.metrics.updatePersisted(ctx)

	// 5. Best-effort delivery, detached from the caller's cancellation.
	report := ports.DeliveryReport{Live: ports.DeliverySkipped, Fallback: ports.DeliverySkipped}
	if created.IsApproved() {
		deliveryCtx := context.WithoutCancel(ctx)
		report.Live = s.broadcastUpdate(deliveryCtx, created, domain.ActionNew, params.ExcludeConnID)
		report.Fallback, report.Targets = s.enqueueFallback(deliveryCtx, created)
	}

	s.logger.InfoContext(ctx, "update created",
		"update_id", created.ID,
		"event_id", created.EventID,
		"persisted", true,
		"live_delivery", report.Live,
		"fallback_delivery", report.Fallback,
		"fallback_targets", report.Targets,
	)

	return &ports.CreateUpdateResult{Update: created, Delivery: report}, nil
}

// GetUpdate returns a single update visible to the actor.
func (s *UpdateService) GetUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.Update, error) {
	update, err := s.updates.GetByID(ctx, updateID)
	if err != nil {
		return nil, err
	}
	if update.IsDeleted() {
		return nil, apperrors.ErrUpdateNotFound
	}

	event, err := s.ValidateReader(ctx, domain.EventRefFromID(update.EventID), actor)
	if err != nil {
		return nil, err
	}

	// Unapproved updates are hidden from attendees entirely.
	if !update.IsApproved() && !actor.CanAuthor(event) {
		return nil, apperrors.ErrUpdateNotFound
	}
	return update, nil
}

// ListUpdates returns updates newest first. Attendees only ever see approved updates.
func (s *UpdateService) ListUpdates(ctx context.Context, ref domain.EventRef, actor domain.Actor, params domain.ListUpdatesParams) ([]*domain.Update, error) {
	event, err := s.ValidateReader(ctx, ref, actor)
	if err != nil {
		return nil, err
	}

	params.Normalize()
	if !actor.CanAuthor(event) {
		params.OnlyApproved = true
	}

	return s.updates.ListByEvent(ctx, event.ID, params)
}

// ListUpdatesSince returns updates created strictly after since in ascending
// order. An unresolvable event yields an empty result.
func (s *UpdateService) ListUpdatesSince(ctx context.Context, ref domain.EventRef, since time.Time, onlyApproved bool) ([]*domain.Update, error) {
	event, err := s.events.Resolve(ctx, ref)
	if err != nil {
		if errors.Is(err, apperrors.ErrEventNotFound) {
			return []*domain.Update{}, nil
		}
		return nil, err
	}

	return s.updates.ListSince(ctx, event.ID, since, onlyApproved, BacklogLimit)
}

// MarkRead records that the actor has read the update. Repeated calls are no-ops.
func (s *UpdateService) MarkRead(ctx context.Context, updateID uuid.UUID, actor domain.Actor) error {
	update, err := s.GetUpdate(ctx, updateID, actor)
	if err != nil {
		return err
	}

	_, err = s.engagement.MarkRead(ctx, &domain.ReadReceipt{
		UpdateID: update.ID,
		UserID:   actor.UserID,
		ReadAt:   s.now().UTC(),
	})
	return err
}

// React sets the actor's reaction to an update. The latest reaction wins.
func (s *UpdateService) React(ctx context.Context, updateID uuid.UUID, actor domain.Actor, reaction domain.ReactionType, excludeConnID string) error {
	if !reaction.IsValid() {
		return apperrors.ErrInvalidReaction
	}

	update, err := s.GetUpdate(ctx, updateID, actor)
	if err != nil {
		return err
	}

	if err := s.checkRate(ctx, OpReaction, actor.UserID.String()); err != nil {
		return err
	}

	if err := s.engagement.UpsertReaction(ctx, &domain.Reaction{
		UpdateID:     update.ID,
		UserID:       actor.UserID,
		ReactionType: reaction,
		CreatedAt:    s.now().UTC(),
	}); err != nil {
		return err
	}

	s.broadcast(context.WithoutCancel(ctx), domain.EventReaction, update.EventID, domain.ReactionEventPayload{
		UpdateID:     update.ID.String(),
		UserID:       actor.UserID.String(),
		ReactionType: string(reaction),
	}, excludeConnID)

	return nil
}

// ReactionSummary counts reactions per type for an update.
func (s *UpdateService) ReactionSummary(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.ReactionSummary, error) {
	update, err := s.GetUpdate(ctx, updateID, actor)
	if err != nil {
		return nil, err
	}

	counts, err := s.engagement.ReactionCounts(ctx, update.ID)
	if err != nil {
		return nil, err
	}

	summary := &domain.ReactionSummary{UpdateID: update.ID, Counts: make(map[domain.ReactionType]int, len(domain.AllReactionTypes))}
	for _, t := range domain.AllReactionTypes {
		summary.Counts[t] = counts[t]
		summary.Total += counts[t]
	}
	return summary, nil
}

// EditUpdate applies a partial edit. Non-admins are bound by the edit window
// and may not touch moderation.
func (s *UpdateService) EditUpdate(ctx context.Context, params ports.EditUpdateParams) (*domain.Update, error) {
	if err := params.Edit.Validate(); err != nil {
		return nil, err
	}

	var (
		edited      *domain.Update
		wasApproved bool
	)

	err := s.withTx(ctx, func(ctx context.Context) error {
		update, err := s.loadForManage(ctx, params.Edit.UpdateID, params.Actor)
		if err != nil {
			return err
		}

		now := s.now()
		if !params.Actor.IsAdmin() {
			if !update.WithinEditWindow(now, s.editWindow) {
				return apperrors.NewEditWindowExpiredError(s.editWindow)
			}
			if params.Edit.Moderation != nil {
				return apperrors.ErrModerationAdminOnly
			}
		}

		wasApproved = update.IsApproved()
		if err := update.ApplyEdit(params.Edit, params.Actor.UserID, now); err != nil {
			return err
		}

		edited, err = s.updates.Save(ctx, update)
		return err
	})
	if err != nil {
		return nil, err
	}

	deliveryCtx := context.WithoutCancel(ctx)
	switch {
	case edited.IsApproved() && !wasApproved:
		// First time attendees can see it: treat as a new update for delivery.
		live := s.broadcastUpdate(deliveryCtx, edited, domain.ActionNew, params.ExcludeConnID)
		fallback, targets := s.enqueueFallback(deliveryCtx, edited)
		s.logger.InfoContext(ctx, "update approved",
			"update_id", edited.ID,
			"live_delivery", live,
			"fallback_delivery", fallback,
			"fallback_targets", targets,
		)
	case edited.IsApproved():
		s.broadcastUpdate(deliveryCtx, edited, domain.ActionEdited, params.ExcludeConnID)
	case wasApproved:
		// No longer visible to attendees.
		s.broadcastUpdate(deliveryCtx, edited, domain.ActionDeleted, params.ExcludeConnID)
	}

	return edited, nil
}

// RemoveUpdate soft deletes an update. There is no time window.
func (s *UpdateService) RemoveUpdate(ctx context.Context, updateID uuid.UUID, actor domain.Actor, excludeConnID string) error {
	var removed *domain.Update

	err := s.withTx(ctx, func(ctx context.Context) error {
		update, err := s.loadForManage(ctx, updateID, actor)
		if err != nil {
			return err
		}
		if err := update.MarkDeleted(s.now()); err != nil {
			return err
		}
		removed, err = s.updates.Save(ctx, update)
		return err
	})
	if err != nil {
		return err
	}

	if removed.IsApproved() {
		s.broadcastUpdate(context.WithoutCancel(ctx), removed, domain.ActionDeleted, excludeConnID)
	}
	return nil
}

// loadForManage locks the update and checks the actor may change it.
func (s *UpdateService) loadForManage(ctx context.Context, updateID uuid.UUID, actor domain.Actor) (*domain.Update, error) {
	update, err := s.updates.GetByIDForUpdate(ctx, updateID)
	if err != nil {
		return nil, err
	}
	if update.IsDeleted() {
		return nil, apperrors.ErrUpdateNotFound
	}

	if _, err := s.ValidateOrganizer(ctx, domain.EventRefFromID(update.EventID), actor); err != nil {
		return nil, err
	}
	return update, nil
}

func (s *UpdateService) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txManager == nil {
		return fn(ctx)
	}
	return s.txManager.WithTransaction(ctx, fn)
}

// checkRate fails open when the counter store is unavailable.
func (s *UpdateService) checkRate(ctx context.Context, operation, key string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Allow(ctx, operation, key)
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing call",
			"operation", operation,
			"error", err,
		)
		return nil
	}
	if !decision.Allowed {
		return apperrors.NewRateLimitError(decision.RetryAfter)
	}
	return nil
}

func (s *UpdateService) broadcastUpdate(ctx context.Context, update *domain.Update, action domain.UpdateAction, excludeConnID string) ports.DeliveryOutcome {
	outcome := s.broadcast(ctx, domain.EventUpdate, update.EventID, domain.UpdateEventPayload{
		Action: action,
		Update: domain.NewUpdateSnapshot(update),
	}, excludeConnID)
	s.metrics.liveDelivered(ctx, outcome)
	return outcome
}

func (s *UpdateService) broadcast(ctx context.Context, eventType domain.EventType, eventID uuid.UUID, payload any, excludeConnID string) ports.DeliveryOutcome {
	if s.broadcaster == nil {
		return ports.DeliverySkipped
	}

	event, err := newRealtimeEvent(eventType, eventID, payload, excludeConnID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build realtime event", "error", err)
		return ports.DeliveryFailed
	}

	if err := s.broadcaster.Broadcast(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "live broadcast failed",
			"type", eventType,
			"event_id", eventID,
			"error", err,
		)
		return ports.DeliveryFailed
	}
	return ports.DeliveryOK
}

// enqueueFallback never returns an error: queue health must not affect the author.
func (s *UpdateService) enqueueFallback(ctx context.Context, update *domain.Update) (ports.DeliveryOutcome, int) {
	if s.queue == nil {
		return ports.DeliverySkipped, 0
	}

	targets, err := s.events.ListTicketHolders(ctx, update.EventID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to compute fallback targets",
			"update_id", update.ID,
			"error", err,
		)
		s.metrics.fallbackEnqueued(ctx, ports.DeliveryFailed)
		return ports.DeliveryFailed, 0
	}
	if len(targets) == 0 {
		s.metrics.fallbackEnqueued(ctx, ports.DeliverySkipped)
		return ports.DeliverySkipped, 0
	}

	now := s.now().UTC()
	job := &domain.FallbackJob{
		ID:      uuid.New(),
		EventID: update.EventID,
		Payload: domain.FallbackPayload{
			Update:        domain.NewUpdateSnapshot(update),
			TargetUserIDs: targets,
		},
		NextRunAt: now,
		CreatedAt: now,
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue fallback job",
			"update_id", update.ID,
			"targets", len(targets),
			"error", err,
		)
		s.metrics.fallbackEnqueued(ctx, ports.DeliveryFailed)
		return ports.DeliveryFailed, len(targets)
	}

	s.metrics.fallbackEnqueued(ctx, ports.DeliveryOK)
	return ports.DeliveryOK, len(targets)
}
