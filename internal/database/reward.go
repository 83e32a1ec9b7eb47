// internal/database/reward.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/jason-s-yu/pikit/internal/rewards"
)

// RewardStore is the Postgres rewards.Store. A user's totals row doubles as the lock
// serializing that user's reward writes.
type RewardStore struct {
	*Store
}

func (s *Store) Rewards() *RewardStore {
	return &RewardStore{Store: s}
}

func (s *RewardStore) WithUser(ctx context.Context, userID uuid.UUID, fn func(tx rewards.Tx) error) error {
	return s.tx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO user_totals (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
		`, userID)
		if err != nil {
			return fmt.Errorf("ensure totals of %s: %w", userID, err)
		}
		t := &rewardTx{tx: tx, userID: userID}
		if _, err := t.lockTotals(ctx); err != nil {
			return err
		}
		return fn(t)
	})
}

func (s *RewardStore) RewardDates(ctx context.Context, userID uuid.UUID, limit int) ([]time.Time, error) {
	return rewardDates(ctx, s.pool, userID, limit)
}

func (s *RewardStore) GetTotals(ctx context.Context, userID uuid.UUID) (*models.UserTotals, error) {
	t, err := scanTotals(s.pool.QueryRow(ctx, `SELECT `+totalsCols+` FROM user_totals WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.UserTotals{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load totals of %s: %w", userID, err)
	}
	return t, nil
}

const totalsCols = `user_id, total_points, total_coins, current_streak, longest_streak, challenges_completed`

func scanTotals(row pgx.Row) (*models.UserTotals, error) {
	var t models.UserTotals
	err := row.Scan(&t.UserID, &t.TotalPoints, &t.TotalCoins, &t.CurrentStreak, &t.LongestStreak, &t.ChallengesCompleted)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func rewardDates(ctx context.Context, q querier, userID uuid.UUID, limit int) ([]time.Time, error) {
	rows, err := q.Query(ctx, `
	SELECT DISTINCT reward_day
	FROM rewards
	WHERE user_id = $1
	ORDER BY reward_day DESC
	LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list reward dates of %s: %w", userID, err)
	}
	days, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("scan reward dates of %s: %w", userID, err)
	}
	return days, nil
}

type rewardTx struct {
	tx     pgx.Tx
	userID uuid.UUID
}

func (t *rewardTx) lockTotals(ctx context.Context) (*models.UserTotals, error) {
	q := `SELECT ` + totalsCols + ` FROM user_totals WHERE user_id = $1 FOR UPDATE`
	totals, err := scanTotals(t.tx.QueryRow(ctx, q, t.userID))
	if err != nil {
		return nil, fmt.Errorf("lock totals of %s: %w", t.userID, err)
	}
	return totals, nil
}

func (t *rewardTx) RewardDates(ctx context.Context, limit int) ([]time.Time, error) {
	return rewardDates(ctx, t.tx, t.userID, limit)
}

func (t *rewardTx) HasChallengeReward(ctx context.Context, challengeID uuid.UUID, day time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
	SELECT EXISTS (
		SELECT 1 FROM rewards WHERE user_id = $1 AND challenge_id = $2 AND reward_day = $3
	)
	`, t.userID, challengeID, models.Day(day)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check reward for challenge %s: %w", challengeID, err)
	}
	return exists, nil
}

func (t *rewardTx) InsertReward(ctx context.Context, rec *models.RewardRecord) error {
	_, err := t.tx.Exec(ctx, `
	INSERT INTO rewards (id, user_id, type, challenge_id, points, bonus, coins, streak, reward_day, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.UserID, rec.Type, rec.ChallengeID, rec.Points, rec.Bonus, rec.Coins, rec.Streak,
		models.Day(rec.CreatedAt), rec.CreatedAt)
	if isUniqueViolation(err, "rewards_challenge_once_per_day") {
		return fmt.Errorf("challenge already rewarded today: %w", apperr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert reward %s: %w", rec.ID, err)
	}
	return nil
}

func (t *rewardTx) Totals(ctx context.Context) (*models.UserTotals, error) {
	return t.lockTotals(ctx)
}

func (t *rewardTx) SaveTotals(ctx context.Context, totals *models.UserTotals) error {
	_, err := t.tx.Exec(ctx, `
	UPDATE user_totals
	SET total_points = $2, total_coins = $3, current_streak = $4, longest_streak = $5,
	    challenges_completed = $6, updated_at = NOW()
	WHERE user_id = $1
	`, t.userID, totals.TotalPoints, totals.TotalCoins, totals.CurrentStreak, totals.LongestStreak, totals.ChallengesCompleted)
	if err != nil {
		return fmt.Errorf("save totals of %s: %w", t.userID, err)
	}
	return nil
}
