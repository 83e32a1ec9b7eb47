// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// UserTotals is the cumulative reward state of a user account.
type UserTotals struct {
	UserID uuid.UUID `json:"user_id"`

	TotalPoints int `json:"total_points"`
	TotalCoins  int `json:"total_coins"`

	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`

	ChallengesCompleted int `json:"challenges_completed"`
}

// User is an account. Ephemeral users have no email and can be claimed later by
// setting credentials.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	Password    string    `json:"-"`
	Username    string    `json:"username"`
	IsEphemeral bool      `json:"is_ephemeral"`
	CreatedAt   time.Time `json:"created_at"`
}
