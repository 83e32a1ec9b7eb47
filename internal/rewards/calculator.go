// internal/rewards/calculator.go
package rewards

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

// Config tunes the streak bonus and coin conversion.
type Config struct {
	BonusRate   int // bonus points per streak day
	BonusCap    int
	CoinDivisor int // coins = (points + bonus) / CoinDivisor
}

func DefaultConfig() Config {
	return Config{BonusRate: 10, BonusCap: 50, CoinDivisor: 2}
}

// Calculator grants challenge rewards and keeps user totals in step with them.
type Calculator struct {
	store Store
	cfg   Config
	log   *logrus.Logger
	now   func() time.Time
}

// NewCalculator builds a Calculator. A nil logger or clock falls back to the defaults.
func NewCalculator(store Store, cfg Config, logger *logrus.Logger, now func() time.Time) *Calculator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.CoinDivisor <= 0 {
		cfg.CoinDivisor = 1
	}
	return &Calculator{store: store, cfg: cfg, log: logger, now: now}
}

// CompleteChallenge records one completion of challengeID by userID. A user may be
// rewarded for a given challenge at most once per UTC calendar day. The streak comes
// from rewards already on record, so a first-ever completion earns no bonus.
func (c *Calculator) CompleteChallenge(ctx context.Context, userID, challengeID uuid.UUID, basePoints int) (*models.RewardRecord, error) {
	if userID == uuid.Nil || challengeID == uuid.Nil {
		return nil, fmt.Errorf("user and challenge are required: %w", apperr.ErrValidation)
	}
	if basePoints < 0 {
		return nil, fmt.Errorf("base points cannot be negative: %w", apperr.ErrValidation)
	}

	now := c.now()
	today := models.Day(now)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reward id: %w", err)
	}

	var rec *models.RewardRecord
	err = c.store.WithUser(ctx, userID, func(tx Tx) error {
		dup, err := tx.HasChallengeReward(ctx, challengeID, today)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("challenge %s already rewarded today: %w", challengeID, apperr.ErrConflict)
		}

		dates, err := tx.RewardDates(ctx, StreakWindow)
		if err != nil {
			return err
		}
		streak := Streak(dates)
		bonus := min(streak*c.cfg.BonusRate, c.cfg.BonusCap)
		coins := (basePoints + bonus) / c.cfg.CoinDivisor

		cid := challengeID
		rec = &models.RewardRecord{
			ID:          id,
			UserID:      userID,
			Type:        models.RewardChallenge,
			ChallengeID: &cid,
			Points:      basePoints,
			Bonus:       bonus,
			Coins:       coins,
			Streak:      streak,
			CreatedAt:   now,
		}
		if err := tx.InsertReward(ctx, rec); err != nil {
			return err
		}

		totals, err := tx.Totals(ctx)
		if err != nil {
			return err
		}
		totals.TotalPoints += basePoints + bonus
		totals.TotalCoins += coins
		totals.ChallengesCompleted++
		totals.CurrentStreak = streak
		totals.LongestStreak = max(totals.LongestStreak, streak)
		return tx.SaveTotals(ctx, totals)
	})
	if err != nil {
		c.log.WithFields(logrus.Fields{"user_id": userID, "challenge_id": challengeID}).WithError(err).Info("challenge reward rejected")
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"user_id":      userID,
		"challenge_id": challengeID,
		"points":       rec.Points,
		"bonus":        rec.Bonus,
		"streak":       rec.Streak,
	}).Info("challenge completed")
	return rec, nil
}

// ConsecutiveDailyStreak is the user's current run of consecutive reward days.
func (c *Calculator) ConsecutiveDailyStreak(ctx context.Context, userID uuid.UUID) (int, error) {
	dates, err := c.store.RewardDates(ctx, userID, StreakWindow)
	if err != nil {
		return 0, fmt.Errorf("load reward dates for %s: %w", userID, err)
	}
	return Streak(dates), nil
}

func (c *Calculator) Totals(ctx context.Context, userID uuid.UUID) (*models.UserTotals, error) {
	return c.store.GetTotals(ctx, userID)
}
