package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/event-updates-backend/internal/core/domain"
	"github.com/lorrc/event-updates-backend/internal/core/ports"
)

// EngagementRepository persists reactions and read receipts.
type EngagementRepository struct {
	pool *pgxpool.Pool
}

var _ ports.EngagementRepository = (*EngagementRepository)(nil)

func NewEngagementRepository(pool *pgxpool.Pool) *EngagementRepository {
	return &EngagementRepository{pool: pool}
}

// UpsertReaction stores the user's reaction, replacing any earlier one.
func (r *EngagementRepository) UpsertReaction(ctx context.Context, reaction *domain.Reaction) error {
	const query = `
INSERT INTO update_reactions (update_id, user_id, reaction_type, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (update_id, user_id)
DO UPDATE SET reaction_type = EXCLUDED.reaction_type, created_at = EXCLUDED.created_at
`
	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		reaction.UpdateID,
		reaction.UserID,
		string(reaction.ReactionType),
		reaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert reaction: %w", err)
	}
	return nil
}

// MarkRead keeps the first read time.
func (r *EngagementRepository) MarkRead(ctx context.Context, receipt *domain.ReadReceipt) (bool, error) {
	const query = `
INSERT INTO update_reads (update_id, user_id, read_at)
VALUES ($1, $2, $3)
ON CONFLICT (update_id, user_id) DO NOTHING
`
	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, receipt.UpdateID, receipt.UserID, receipt.ReadAt)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReactionCounts returns the number of reactions per type.
func (r *EngagementRepository) ReactionCounts(ctx context.Context, updateID uuid.UUID) (map[domain.ReactionType]int, error) {
	const query = `
SELECT reaction_type, COUNT(*)
FROM update_reactions
WHERE update_id = $1
GROUP BY reaction_type
`
	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, updateID)
	if err != nil {
		return nil, fmt.Errorf("count reactions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ReactionType]int, len(domain.AllReactionTypes))
	for rows.Next() {
		var (
			reactionType string
			count        int64
		)
		if err := rows.Scan(&reactionType, &count); err != nil {
			return nil, err
		}
		counts[domain.ReactionType(reactionType)] = int(count)
	}
	return counts, rows.Err()
}
