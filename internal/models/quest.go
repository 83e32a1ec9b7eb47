// internal/models/quest.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Quest is the daily challenge: photograph one object on a given UTC date.
type Quest struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ObjectToFind string    `json:"object_to_find"`
	RewardPoints int       `json:"reward_points"`
	QuestDate    time.Time `json:"quest_date"`
	CreatedAt    time.Time `json:"created_at"`
}

// ObjectList is a named pool of candidate objects for session targets.
type ObjectList struct {
	Name        string   `json:"name"`
	Objects     []string `json:"objects"`
	Description string   `json:"description,omitempty"`
}
