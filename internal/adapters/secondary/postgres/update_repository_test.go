package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestUpdate(t *testing.T, ctx context.Context, repo *UpdateRepository, eventID, organizerID uuid.UUID, content string, createdAt time.Time, status domain.ModerationStatus) *domain.Update {
	t.Helper()

	created, err := repo.Create(ctx, &domain.Update{
		EventID:     eventID,
		OrganizerID: organizerID,
		Content:     content,
		Priority:    domain.PriorityNormal,
		Moderation:  domain.Moderation{Status: status},
		CreatedAt:   createdAt,
	})
	require.NoError(t, err)
	return created
}

func TestUpdateRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUpdateRepository(testPool)
	eventID, organizerID := seedEvent(t, ctx)

	now := time.Now().UTC().Truncate(time.Microsecond)
	created, err := repo.Create(ctx, &domain.Update{
		EventID:     eventID,
		OrganizerID: organizerID,
		Content:     "Gates open at 6pm",
		MediaURLs:   []string{"https://cdn.example.com/map.png"},
		Priority:    domain.PriorityHigh,
		Moderation:  domain.Moderation{Status: domain.ModerationApproved},
		CreatedAt:   now,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gates open at 6pm", found.Content)
	assert.Equal(t, []string{"https://cdn.example.com/map.png"}, found.MediaURLs)
	assert.Equal(t, domain.PriorityHigh, found.Priority)
	assert.Equal(t, domain.ModerationApproved, found.Moderation.Status)
	assert.Empty(t, found.Moderation.Flags)
	assert.True(t, now.Equal(found.CreatedAt))
	assert.Nil(t, found.EditedAt)
	assert.Nil(t, found.DeletedAt)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrUpdateNotFound)
}

func TestUpdateRepository_SaveInTransaction(t *testing.T) {
	ctx := context.Background()
	repo := NewUpdateRepository(testPool)
	txm := NewTransactionManager(testPool)
	eventID, organizerID := seedEvent(t, ctx)

	created := createTestUpdate(t, ctx, repo, eventID, organizerID, "Original", time.Now().UTC(), domain.ModerationPending)

	reviewer := uuid.New()
	err := txm.WithTransaction(ctx, func(ctx context.Context) error {
		u, err := repo.GetByIDForUpdate(ctx, created.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		u.Content = "Edited"
		u.Moderation.Status = domain.ModerationFlagged
		u.Moderation.Flags = []string{"spam"}
		u.Moderation.ReviewedBy = &reviewer
		u.Moderation.ReviewedAt = &now
		u.EditedAt = &now
		_, err = repo.Save(ctx, u)
		return err
	})
	require.NoError(t, err)

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Edited", found.Content)
	assert.Equal(t, domain.ModerationFlagged, found.Moderation.Status)
	assert.Equal(t, []string{"spam"}, found.Moderation.Flags)
	require.NotNil(t, found.Moderation.ReviewedBy)
	assert.Equal(t, reviewer, *found.Moderation.ReviewedBy)
	assert.NotNil(t, found.EditedAt)
}

func TestUpdateRepository_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewUpdateRepository(testPool)
	txm := NewTransactionManager(testPool)
	eventID, organizerID := seedEvent(t, ctx)

	created := createTestUpdate(t, ctx, repo, eventID, organizerID, "Keep me", time.Now().UTC(), domain.ModerationApproved)

	err := txm.WithTransaction(ctx, func(ctx context.Context) error {
		u, err := repo.GetByIDForUpdate(ctx, created.ID)
		if err != nil {
			return err
		}
		u.Content = "Lost"
		if _, err := repo.Save(ctx, u); err != nil {
			return err
		}
		return apperrors.ErrEditWindowExpired
	})
	require.ErrorIs(t, err, apperrors.ErrEditWindowExpired)

	found, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Keep me", found.Content)
}

func TestUpdateRepository_ListByEvent(t *testing.T) {
	ctx := context.Background()
	repo := NewUpdateRepository(testPool)
	eventID, organizerID := seedEvent(t, ctx)

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	u1 := createTestUpdate(t, ctx, repo, eventID, organizerID, "first", base, domain.ModerationApproved)
	u2 := createTestUpdate(t, ctx, repo, eventID, organizerID, "second", base.Add(time.Minute), domain.ModerationPending)
	u3 := createTestUpdate(t, ctx, repo, eventID, organizerID, "third", base.Add(2*time.Minute), domain.ModerationApproved)
	deleted := createTestUpdate(t, ctx, repo, eventID, organizerID, "gone", base.Add(3*time.Minute), domain.ModerationApproved)
	require.NoError(t, deleted.MarkDeleted(base.Add(4*time.Minute)))
	_, err := repo.Save(ctx, deleted)
	require.NoError(t, err)

	t.Run("newest first without deleted", func(t *testing.T) {
		list, err := repo.ListByEvent(ctx, eventID, domain.ListUpdatesParams{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []uuid.UUID{u3.ID, u2.ID, u1.ID}, ids(list))
	})

	t.Run("only approved", func(t *testing.T) {
		list, err := repo.ListByEvent(ctx, eventID, domain.ListUpdatesParams{OnlyApproved: true})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{u3.ID, u1.ID}, ids(list))
	})

	t.Run("before cursor and limit", func(t *testing.T) {
		before := u3.CreatedAt
		list, err := repo.ListByEvent(ctx, eventID, domain.ListUpdatesParams{Before: &before, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{u2.ID}, ids(list))
	})

	t.Run("since is strictly after and ascending", func(t *testing.T) {
		list, err := repo.ListSince(ctx, eventID, u1.CreatedAt, false, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{u2.ID, u3.ID}, ids(list))

		list, err = repo.ListSince(ctx, eventID, u1.CreatedAt, true, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{u3.ID}, ids(list))
	})
}

func ids(updates []*domain.Update) []uuid.UUID {
	out := make([]uuid.UUID, len(updates))
	for i, u := range updates {
		out[i] = u.ID
	}
	return out
}
