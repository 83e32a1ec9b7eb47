// internal/models/reward.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// RewardType names what a RewardRecord granted.
type RewardType string

const (
	RewardChallenge RewardType = "challenge"
)

// RewardRecord is an append-only entry in a user's reward history.
type RewardRecord struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Type        RewardType `json:"type"`
	ChallengeID *uuid.UUID `json:"challenge_id,omitempty"`

	Points int `json:"points"`
	Bonus  int `json:"bonus"`
	Coins  int `json:"coins"`
	Streak int `json:"streak"`

	CreatedAt time.Time `json:"created_at"`
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
