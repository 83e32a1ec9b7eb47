// internal/database/quest.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

const questCols = `id, name, description, object_to_find, reward_points, quest_date, created_at`

func scanQuest(row pgx.Row) (*models.Quest, error) {
	var q models.Quest
	if err := row.Scan(&q.ID, &q.Name, &q.Description, &q.ObjectToFind, &q.RewardPoints, &q.QuestDate, &q.CreatedAt); err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateQuest inserts q. The quest_date unique constraint reports a second quest for
// the same day as a conflict.
func (s *Store) CreateQuest(ctx context.Context, q *models.Quest) error {
	_, err := s.pool.Exec(ctx, `
	INSERT INTO quests (`+questCols+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.Name, q.Description, q.ObjectToFind, q.RewardPoints, models.Day(q.QuestDate), q.CreatedAt)
	if isUniqueViolation(err, "") {
		return fmt.Errorf("quest for %s: %w", q.QuestDate.Format(time.DateOnly), apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert quest %s: %w", q.ID, err)
	}
	return nil
}

func (s *Store) QuestForDate(ctx context.Context, date time.Time) (*models.Quest, error) {
	day := models.Day(date)
	q, err := scanQuest(s.pool.QueryRow(ctx, `SELECT `+questCols+` FROM quests WHERE quest_date = $1`, day))
	if err != nil {
		return nil, notFound(err, "quest for", day.Format(time.DateOnly))
	}
	return q, nil
}

func (s *Store) GetQuest(ctx context.Context, id uuid.UUID) (*models.Quest, error) {
	q, err := scanQuest(s.pool.QueryRow(ctx, `SELECT `+questCols+` FROM quests WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "quest", id)
	}
	return q, nil
}
