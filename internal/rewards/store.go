// internal/rewards/store.go
package rewards

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/models"
)

// Store persists reward history and per-user totals.
type Store interface {
	// WithUser runs fn with the user's reward history and totals locked. Writes made
	// through tx commit together when fn returns nil and are discarded otherwise.
	WithUser(ctx context.Context, userID uuid.UUID, fn func(tx Tx) error) error
	// RewardDates returns the distinct UTC dates of the user's most recent rewards, newest first.
	RewardDates(ctx context.Context, userID uuid.UUID, limit int) ([]time.Time, error)
	// GetTotals returns zero totals for a user without rewards.
	GetTotals(ctx context.Context, userID uuid.UUID) (*models.UserTotals, error)
}

// Tx is the per-user view handed to Store.WithUser.
type Tx interface {
	RewardDates(ctx context.Context, limit int) ([]time.Time, error)
	HasChallengeReward(ctx context.Context, challengeID uuid.UUID, day time.Time) (bool, error)
	InsertReward(ctx context.Context, rec *models.RewardRecord) error
	Totals(ctx context.Context) (*models.UserTotals, error)
	SaveTotals(ctx context.Context, totals *models.UserTotals) error
}
