// internal/models/session.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a GameSession. Transitions only move forward:
// waiting -> starting -> in_progress -> finished.
type SessionStatus string

const (
	SessionWaiting    SessionStatus = "waiting"
	SessionStarting   SessionStatus = "starting"
	SessionInProgress SessionStatus = "in_progress"
	SessionFinished   SessionStatus = "finished"
)

// rank orders statuses so callers can reject regressions.
func (s SessionStatus) rank() int {
	switch s {
	case SessionWaiting:
		return 0
	case SessionStarting:
		return 1
	case SessionInProgress:
		return 2
	case SessionFinished:
		return 3
	}
	return -1
}

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	return s.rank() >= 0
}

// Precedes reports whether moving from s to next is a forward transition.
func (s SessionStatus) Precedes(next SessionStatus) bool {
	return s.Valid() && next.Valid() && s.rank() < next.rank()
}

// GameSession is one scavenger-hunt match. It is created by a host, joined by players
// and driven through its lifecycle by the hunt package.
type GameSession struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	CreatorID uuid.UUID `json:"creator_id"`

	IsPublic bool `json:"is_public"`
	// PasswordHash is the argon2id encoding of the private-session password; never serialized.
	PasswordHash string `json:"-"`

	MaxPlayers int            `json:"max_players"`
	MaxObjects int            `json:"max_objects"`
	Mode       string         `json:"mode"`
	Filters    map[string]any `json:"filters,omitempty"`
	ObjectList string         `json:"object_list"`

	Status         SessionStatus `json:"status"`
	StartTimestamp *time.Time    `json:"start_timestamp,omitempty"`
	EndTimestamp   *time.Time    `json:"end_timestamp,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Clone returns a deep copy so stored sessions are never aliased by callers.
func (s *GameSession) Clone() *GameSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.Filters != nil {
		c.Filters = make(map[string]any, len(s.Filters))
		for k, v := range s.Filters {
			c.Filters[k] = v
		}
	}
	if s.StartTimestamp != nil {
		t := *s.StartTimestamp
		c.StartTimestamp = &t
	}
	if s.EndTimestamp != nil {
		t := *s.EndTimestamp
		c.EndTimestamp = &t
	}
	return &c
}

// ObjectTarget is one object of a session's hunt list. Targets are written once at start.
type ObjectTarget struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	Name       string    `json:"name"`
	OrderIndex int       `json:"order_index"`
}
