package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/event-updates-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/event-updates-backend/internal/adapters/primary/validation"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// UpdateHandler handles HTTP requests for event updates
type UpdateHandler struct {
	updateService ports.UpdateService
	errorHandler  *ErrorHandler
	logger        *slog.Logger
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(
	updateService ports.UpdateService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *UpdateHandler {
	return &UpdateHandler{
		updateService: updateService,
		errorHandler:  errorHandler,
		logger:        logger.With("handler", "update"),
	}
}

// RegisterRoutes sets up the routing for all update endpoints.
func (h *UpdateHandler) RegisterRoutes(r chi.Router) {
	r.Route("/events/{eventId}/updates", func(r chi.Router) {
		r.Get("/", h.HandleListUpdates)
		r.Post("/", h.HandleCreateUpdate)
	})

	r.Route("/updates/{updateId}", func(r chi.Router) {
		r.Get("/", h.HandleGetUpdate)
		r.Patch("/", h.HandleEditUpdate)
		r.Delete("/", h.HandleDeleteUpdate)
		r.Get("/reactions", h.HandleReactionSummary)
		r.Post("/reactions", h.HandleReact)
		r.Post("/read", h.HandleMarkRead)
	})
}

// --- Response DTOs ---

// CreatedUpdateDTO is the response to a successful create.
type CreatedUpdateDTO struct {
	ID       string                `json:"id"`
	Update   domain.UpdateSnapshot `json:"update"`
	Delivery DeliveryDTO           `json:"delivery"`
}

// DeliveryDTO reports delivery separately from persistence.
type DeliveryDTO struct {
	Live     string `json:"live"`
	Fallback string `json:"fallback"`
	Targets  int    `json:"targets"`
}

// ReactionSummaryDTO is the response for reaction counts.
type ReactionSummaryDTO struct {
	UpdateID string         `json:"updateId"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
}

func toReactionSummaryDTO(summary *domain.ReactionSummary) ReactionSummaryDTO {
	counts := make(map[string]int, len(domain.AllReactionTypes))
	for _, rt := range domain.AllReactionTypes {
		counts[string(rt)] = summary.Counts[rt]
	}
	return ReactionSummaryDTO{
		UpdateID: summary.UpdateID.String(),
		Counts:   counts,
		Total:    summary.Total,
	}
}

// --- Handlers ---

// HandleCreateUpdate handles POST /events/{eventId}/updates
func (h *UpdateHandler) HandleCreateUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	ref, err := validation.ParseEventRef("eventId", chi.URLParam(r, "eventId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[validation.CreateUpdateRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	result, err := h.updateService.CreateUpdate(r.Context(), req.ToParams(ref, actor, ""))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteCreated(w, CreatedUpdateDTO{
		ID:     result.Update.ID.String(),
		Update: domain.NewUpdateSnapshot(result.Update),
		Delivery: DeliveryDTO{
			Live:     string(result.Delivery.Live),
			Fallback: string(result.Delivery.Fallback),
			Targets:  result.Delivery.Targets,
		},
	})
}

// HandleListUpdates handles GET /events/{eventId}/updates
func (h *UpdateHandler) HandleListUpdates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	ref, err := validation.ParseEventRef("eventId", chi.URLParam(r, "eventId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	params, err := validation.ParseListParams(r.URL.Query())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	params.OnlyApproved = validation.ParseBoolQueryParam(r, "approvedOnly", false)

	updates, err := h.updateService.ListUpdates(r.Context(), ref, actor, params)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, domain.NewUpdateSnapshots(updates))
}

// HandleGetUpdate handles GET /updates/{updateId}
func (h *UpdateHandler) HandleGetUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	update, err := h.updateService.GetUpdate(r.Context(), updateID, actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, domain.NewUpdateSnapshot(update))
}

// HandleEditUpdate handles PATCH /updates/{updateId}
func (h *UpdateHandler) HandleEditUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[validation.EditUpdateRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	edited, err := h.updateService.EditUpdate(r.Context(), ports.EditUpdateParams{
		Edit:  req.ToEdit(updateID),
		Actor: actor,
	})
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, domain.NewUpdateSnapshot(edited))
}

// HandleDeleteUpdate handles DELETE /updates/{updateId}
func (h *UpdateHandler) HandleDeleteUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if HandleError(w, r, h.updateService.RemoveUpdate(r.Context(), updateID, actor, ""), h.errorHandler) {
		return
	}

	WriteSuccess(w, nil)
}

// HandleReact handles POST /updates/{updateId}/reactions
func (h *UpdateHandler) HandleReact(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	req, err := validation.DecodeAndValidate[validation.ReactRequest](r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if HandleError(w, r, req.Validate(), h.errorHandler) {
		return
	}

	err = h.updateService.React(r.Context(), updateID, actor, domain.ReactionType(req.ReactionType), "")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, nil)
}

// HandleReactionSummary handles GET /updates/{updateId}/reactions
func (h *UpdateHandler) HandleReactionSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	summary, err := h.updateService.ReactionSummary(r.Context(), updateID, actor)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, toReactionSummaryDTO(summary))
}

// HandleMarkRead handles POST /updates/{updateId}/read
func (h *UpdateHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	updateID, err := validation.ParseUUID("updateId", chi.URLParam(r, "updateId"))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if HandleError(w, r, h.updateService.MarkRead(r.Context(), updateID, actor), h.errorHandler) {
		return
	}

	WriteSuccess(w, nil)
}

func (h *UpdateHandler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := mw.ActorFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return domain.Actor{}, false
	}
	return actor, true
}
