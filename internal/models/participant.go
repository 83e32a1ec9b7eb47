// internal/models/participant.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus tracks one player's progress through a match.
type ParticipantStatus string

const (
	ParticipantPending    ParticipantStatus = "pending"
	ParticipantReady      ParticipantStatus = "ready"
	ParticipantInProgress ParticipantStatus = "in_progress"
	ParticipantFinished   ParticipantStatus = "finished"
)

// TargetEntry is a participant's own view of one session target.
// An entry is never both Found and Skipped.
type TargetEntry struct {
	OrderIndex int    `json:"order_index"`
	Name       string `json:"name"`
	Found      bool   `json:"found"`
	Skipped    bool   `json:"skipped"`
}

// Resolved reports whether the entry no longer needs a match.
func (e TargetEntry) Resolved() bool {
	return e.Found || e.Skipped
}

// LapTime is the client-declared window in which one target was found.
type LapTime struct {
	OrderIndex int       `json:"order_index"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}

// Participant is a user's membership and progress record within one session.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	JoinCode  string    `json:"join_code"`
	IsCreator bool      `json:"is_creator"`

	Targets  []TargetEntry `json:"targets"`
	LapTimes []LapTime     `json:"lap_times"`

	StartTime *time.Time        `json:"start_time,omitempty"`
	EndTime   *time.Time        `json:"end_time,omitempty"`
	Status    ParticipantStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// ActiveTarget returns the unresolved entry with the smallest order index.
func (p *Participant) ActiveTarget() (TargetEntry, bool) {
	var (
		best  TargetEntry
		found bool
	)
	for _, e := range p.Targets {
		if e.Resolved() {
			continue
		}
		if !found || e.OrderIndex < best.OrderIndex {
			best, found = e, true
		}
	}
	return best, found
}

// AllResolved reports whether every seeded entry has been found or skipped.
// A participant with no entries has nothing resolved.
func (p *Participant) AllResolved() bool {
	if len(p.Targets) == 0 {
		return false
	}
	for _, e := range p.Targets {
		if !e.Resolved() {
			return false
		}
	}
	return true
}

// FoundCount is the number of entries matched by a detection.
func (p *Participant) FoundCount() int {
	n := 0
	for _, e := range p.Targets {
		if e.Found {
			n++
		}
	}
	return n
}

// EntryIndex returns the slice position of the entry with the given order index, or -1.
func (p *Participant) EntryIndex(orderIndex int) int {
	for i, e := range p.Targets {
		if e.OrderIndex == orderIndex {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy; Targets and LapTimes are never shared between copies.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	c := *p
	c.Targets = append([]TargetEntry(nil), p.Targets...)
	c.LapTimes = append([]LapTime(nil), p.LapTimes...)
	if p.StartTime != nil {
		t := *p.StartTime
		c.StartTime = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		c.EndTime = &t
	}
	return &c
}
