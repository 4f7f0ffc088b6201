package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

const validTicketStatus = "valid"

// EventDirectory reads events and tickets owned by the ticketing platform.
type EventDirectory struct {
	pool *pgxpool.Pool
}

var _ ports.EventDirectory = (*EventDirectory)(nil)

func NewEventDirectory(pool *pgxpool.Pool) *EventDirectory {
	return &EventDirectory{pool: pool}
}

// Resolve looks an event up by id or slug.
func (d *EventDirectory) Resolve(ctx context.Context, ref domain.EventRef) (*domain.Event, error) {
	var (
		query string
		arg   any
	)
	switch ref.Kind {
	case domain.EventRefByID:
		query = `SELECT id, slug, title, organizer_id FROM events WHERE id = $1`
		arg = ref.ID
	case domain.EventRefBySlug:
		query = `SELECT id, slug, title, organizer_id FROM events WHERE slug = $1`
		arg = ref.Slug
	default:
		return nil, apperrors.ErrInvalidEventRef
	}

	var e domain.Event
	err := GetDBTX(ctx, d.pool).QueryRow(ctx, query, arg).Scan(&e.ID, &e.Slug, &e.Title, &e.OrganizerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrEventNotFound
		}
		return nil, fmt.Errorf("resolve event: %w", err)
	}
	return &e, nil
}

// HasTicket reports whether the user holds a valid ticket for the event.
func (d *EventDirectory) HasTicket(ctx context.Context, eventID, userID uuid.UUID) (bool, error) {
	const query = `
SELECT EXISTS (
    SELECT 1 FROM tickets WHERE event_id = $1 AND user_id = $2 AND status = $3
)`
	var exists bool
	if err := GetDBTX(ctx, d.pool).QueryRow(ctx, query, eventID, userID, validTicketStatus).Scan(&exists); err != nil {
		return false, fmt.Errorf("check ticket: %w", err)
	}
	return exists, nil
}

// ListTicketHolders returns the distinct users holding a valid ticket.
func (d *EventDirectory) ListTicketHolders(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	const query = `
SELECT DISTINCT user_id FROM tickets WHERE event_id = $1 AND status = $2 ORDER BY user_id`

	rows, err := GetDBTX(ctx, d.pool).Query(ctx, query, eventID, validTicketStatus)
	if err != nil {
		return nil, fmt.Errorf("list ticket holders: %w", err)
	}
	defer rows.Close()

	holders := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		holders = append(holders, id)
	}
	return holders, rows.Err()
}
