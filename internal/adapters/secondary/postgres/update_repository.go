package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
	"github.com/lorrc/event-updates-backend/internal/core/utils"
)

const updateColumns = `
id, event_id, organizer_id, content, media_urls, priority,
moderation_status, moderation_flags, reviewed_by, reviewed_at,
created_at, edited_at, deleted_at`

// UpdateRepository is the secondary adapter for update persistence.
type UpdateRepository struct {
	pool *pgxpool.Pool
}

var _ ports.UpdateRepository = (*UpdateRepository)(nil)

// NewUpdateRepository creates a new update repository.
func NewUpdateRepository(pool *pgxpool.Pool) *UpdateRepository {
	return &UpdateRepository{pool: pool}
}

func scanUpdate(row pgx.Row) (*domain.Update, error) {
	var (
		u          domain.Update
		priority   string
		status     string
		reviewedBy pgtype.UUID
		reviewedAt pgtype.Timestamptz
		editedAt   pgtype.Timestamptz
		deletedAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&u.ID,
		&u.EventID,
		&u.OrganizerID,
		&u.Content,
		&u.MediaURLs,
		&priority,
		&status,
		&u.Moderation.Flags,
		&reviewedBy,
		&reviewedAt,
		&u.CreatedAt,
		&editedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Priority = domain.UpdatePriority(priority)
	u.Moderation.Status = domain.ModerationStatus(status)
	u.Moderation.ReviewedBy = utils.FromNullUUID(reviewedBy)
	u.Moderation.ReviewedAt = utils.FromNullTime(reviewedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.EditedAt = utils.FromNullTime(editedAt)
	u.DeletedAt = utils.FromNullTime(deletedAt)
	return &u, nil
}

func collectUpdates(rows pgx.Rows) ([]*domain.Update, error) {
	defer rows.Close()

	updates := make([]*domain.Update, 0)
	for rows.Next() {
		u, err := scanUpdate(rows)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// Create persists a new update.
func (r *UpdateRepository) Create(ctx context.Context, update *domain.Update) (*domain.Update, error) {
	query := `
INSERT INTO event_updates (
    id, event_id, organizer_id, content, media_urls, priority,
    moderation_status, moderation_flags, reviewed_by, reviewed_at, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING` + updateColumns

	id := update.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		id,
		update.EventID,
		update.OrganizerID,
		update.Content,
		utils.NonNilStrings(update.MediaURLs),
		string(update.Priority),
		string(update.Moderation.Status),
		utils.NonNilStrings(update.Moderation.Flags),
		utils.ToNullUUID(update.Moderation.ReviewedBy),
		utils.ToNullTime(update.Moderation.ReviewedAt),
		update.CreatedAt,
	)

	created, err := scanUpdate(row)
	if err != nil {
		return nil, fmt.Errorf("insert update: %w", err)
	}
	return created, nil
}

// GetByID retrieves a single update, including soft-deleted ones.
func (r *UpdateRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Update, error) {
	query := `SELECT` + updateColumns + ` FROM event_updates WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIDForUpdate retrieves an update and locks its row until the
// surrounding transaction ends.
func (r *UpdateRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Update, error) {
	query := `SELECT` + updateColumns + ` FROM event_updates WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *UpdateRepository) getOne(ctx context.Context, query string, id uuid.UUID) (*domain.Update, error) {
	u, err := scanUpdate(GetDBTX(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUpdateNotFound
		}
		return nil, err
	}
	return u, nil
}

// Save persists the mutable fields of an existing update.
func (r *UpdateRepository) Save(ctx context.Context, update *domain.Update) (*domain.Update, error) {
	query := `
UPDATE event_updates SET
    content = $2,
    media_urls = $3,
    priority = $4,
    moderation_status = $5,
    moderation_flags = $6,
    reviewed_by = $7,
    reviewed_at = $8,
    edited_at = $9,
    deleted_at = $10
WHERE id = $1
RETURNING` + updateColumns

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		update.ID,
		update.Content,
		utils.NonNilStrings(update.MediaURLs),
		string(update.Priority),
		string(update.Moderation.Status),
		utils.NonNilStrings(update.Moderation.Flags),
		utils.ToNullUUID(update.Moderation.ReviewedBy),
		utils.ToNullTime(update.Moderation.ReviewedAt),
		utils.ToNullTime(update.EditedAt),
		utils.ToNullTime(update.DeletedAt),
	)

	saved, err := scanUpdate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrUpdateNotFound
		}
		return nil, fmt.Errorf("save update: %w", err)
	}
	return saved, nil
}

// ListByEvent returns non-deleted updates for an event, newest first.
func (r *UpdateRepository) ListByEvent(ctx context.Context, eventID uuid.UUID, params domain.ListUpdatesParams) ([]*domain.Update, error) {
	params.Normalize()

	query := `SELECT` + updateColumns + `
FROM event_updates
WHERE event_id = $1
  AND deleted_at IS NULL
  AND ($2::timestamptz IS NULL OR created_at < $2)
  AND (NOT $3 OR moderation_status = 'approved')
ORDER BY created_at DESC, id DESC
LIMIT $4`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query,
		eventID,
		utils.ToNullTime(params.Before),
		params.OnlyApproved,
		params.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	return collectUpdates(rows)
}

// ListSince returns non-deleted updates created after since, oldest first.
func (r *UpdateRepository) ListSince(ctx context.Context, eventID uuid.UUID, since time.Time, onlyApproved bool, limit int) ([]*domain.Update, error) {
	query := `SELECT` + updateColumns + `
FROM event_updates
WHERE event_id = $1
  AND deleted_at IS NULL
  AND created_at > $2
  AND (NOT $3 OR moderation_status = 'approved')
ORDER BY created_at ASC, id ASC
LIMIT $4`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, eventID, since, onlyApproved, limit)
	if err != nil {
		return nil, fmt.Errorf("list updates since: %w", err)
	}
	return collectUpdates(rows)
}
