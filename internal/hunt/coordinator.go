// internal/hunt/coordinator.go
package hunt

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

// Coordinator drives a session through waiting -> starting -> in_progress -> finished.
// There are no timers: the countdown is resolved lazily whenever someone polls.
type Coordinator struct {
	*env
	pools PoolProvider
	cfg   Config
}

// StartState is what a polling client sees while waiting for the countdown.
type StartState struct {
	SessionID        uuid.UUID            `json:"session_id"`
	Status           models.SessionStatus `json:"status"`
	Started          bool                 `json:"started"`
	SecondsRemaining int                  `json:"seconds_remaining"`
	StartTimestamp   *time.Time           `json:"start_timestamp,omitempty"`
}

// CountdownFromSeconds converts a client-supplied countdown. Values a time.Duration
// cannot hold are rejected rather than wrapped.
func CountdownFromSeconds(seconds int64) (time.Duration, error) {
	if seconds < 0 || seconds > int64(math.MaxInt64/time.Second) {
		return 0, fmt.Errorf("countdown of %d seconds is out of range: %w", seconds, apperr.ErrValidation)
	}
	return time.Duration(seconds) * time.Second, nil
}

// Start samples the session's targets, seeds every participant and begins the countdown.
// A countdown of zero uses the configured default.
func (c *Coordinator) Start(ctx context.Context, sessionID, requesterID uuid.UUID, countdown time.Duration) (*Match, error) {
	if countdown < 0 || countdown > c.cfg.MaxCountdown {
		return nil, fmt.Errorf("countdown must be between 0 and %s: %w", c.cfg.MaxCountdown, apperr.ErrValidation)
	}
	if countdown == 0 {
		countdown = c.cfg.DefaultCountdown
	}

	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := checkStartable(sess, requesterID); err != nil {
		return nil, err
	}
	pool, err := c.pools.ObjectsForList(ctx, sess.ObjectList)
	if err != nil {
		return nil, fmt.Errorf("load object list for session %s: %w", sessionID, err)
	}

	m, err := c.store.UpdateMatch(ctx, sessionID, func(m *Match) error {
		// Settings may have changed since the unlocked read above.
		if err := checkStartable(m.Session, requesterID); err != nil {
			return err
		}
		names, err := sampleObjects(pool, m.Session.MaxObjects)
		if err != nil {
			return err
		}

		targets := make([]models.ObjectTarget, len(names))
		for i, name := range names {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate target id: %w", err)
			}
			targets[i] = models.ObjectTarget{ID: id, SessionID: sessionID, Name: name, OrderIndex: i + 1}
		}
		m.Targets = targets

		startAt := c.now().Add(countdown)
		m.Session.Status = models.SessionStarting
		m.Session.StartTimestamp = &startAt

		for _, p := range m.Participants {
			p.Targets = seedEntries(targets)
			p.LapTimes = []models.LapTime{}
			p.Status = models.ParticipantReady
		}
		return nil
	})
	if err != nil {
		c.log.WithFields(logrus.Fields{"session_id": sessionID, "user_id": requesterID}).WithError(err).Warn("session start rejected")
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"session_id":      sessionID,
		"players":         len(m.Participants),
		"objects":         len(m.Targets),
		"start_timestamp": m.Session.StartTimestamp,
	}).Info("session starting")
	c.publish(ctx, Event{
		Type:      EventSessionStarting,
		SessionID: sessionID,
		UserID:    requesterID,
		Payload:   map[string]any{"start_timestamp": m.Session.StartTimestamp},
	})
	return m, nil
}

func checkStartable(sess *models.GameSession, requesterID uuid.UUID) error {
	if sess.CreatorID != requesterID {
		return fmt.Errorf("only the creator can start session %s: %w", sess.ID, apperr.ErrUnauthorized)
	}
	if sess.Status != models.SessionWaiting {
		return fmt.Errorf("session %s is already %s: %w", sess.ID, sess.Status, apperr.ErrConflict)
	}
	return nil
}

func seedEntries(targets []models.ObjectTarget) []models.TargetEntry {
	entries := make([]models.TargetEntry, len(targets))
	for i, t := range targets {
		entries[i] = models.TargetEntry{OrderIndex: t.OrderIndex, Name: t.Name}
	}
	return entries
}

// CheckStart reports countdown progress. The first call at or after the start timestamp
// moves the session to in_progress; every other call is read-only.
func (c *Coordinator) CheckStart(ctx context.Context, sessionID uuid.UUID) (StartState, error) {
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return StartState{}, err
	}
	now := c.now()
	if sess.Status != models.SessionStarting || now.Before(*sess.StartTimestamp) {
		return stateOf(sess, now), nil
	}

	transitioned := false
	m, err := c.store.UpdateMatch(ctx, sessionID, func(m *Match) error {
		s := m.Session
		if s.Status != models.SessionStarting || now.Before(*s.StartTimestamp) {
			return ErrNoChange
		}
		s.Status = models.SessionInProgress
		for _, p := range m.Participants {
			if p.Status != models.ParticipantReady {
				continue
			}
			start := *s.StartTimestamp
			p.StartTime = &start
			p.Status = models.ParticipantInProgress
		}
		transitioned = true
		return nil
	})
	if err != nil {
		return StartState{}, err
	}

	if transitioned {
		c.log.WithFields(logrus.Fields{"session_id": sessionID}).Info("session in progress")
		c.publish(ctx, Event{Type: EventSessionInProgress, SessionID: sessionID})
	}
	return stateOf(m.Session, now), nil
}

func stateOf(sess *models.GameSession, now time.Time) StartState {
	st := StartState{
		SessionID:      sess.ID,
		Status:         sess.Status,
		StartTimestamp: sess.StartTimestamp,
	}
	switch sess.Status {
	case models.SessionInProgress, models.SessionFinished:
		st.Started = true
	case models.SessionStarting:
		if remaining := sess.StartTimestamp.Sub(now); remaining > 0 {
			st.SecondsRemaining = int(math.Ceil(remaining.Seconds()))
		}
	}
	return st
}

// FinishIfComplete finishes an in-progress session once every participant has finished.
// It reports whether this call made the transition.
func (c *Coordinator) FinishIfComplete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	transitioned := false
	_, err := c.store.UpdateMatch(ctx, sessionID, func(m *Match) error {
		if m.Session.Status != models.SessionInProgress {
			return ErrNoChange
		}
		for _, p := range m.Participants {
			if p.Status != models.ParticipantFinished {
				return ErrNoChange
			}
		}
		finishMatch(m, c.now())
		transitioned = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if transitioned {
		c.log.WithFields(logrus.Fields{"session_id": sessionID}).Info("session finished")
		c.publish(ctx, Event{Type: EventSessionFinished, SessionID: sessionID})
	}
	return transitioned, nil
}

// finishMatch closes the session and any participant still playing. end_timestamp is
// written at most once.
func finishMatch(m *Match, now time.Time) {
	m.Session.Status = models.SessionFinished
	if m.Session.EndTimestamp == nil {
		end := now
		m.Session.EndTimestamp = &end
	}
	for _, p := range m.Participants {
		if p.Status == models.ParticipantFinished {
			continue
		}
		p.Status = models.ParticipantFinished
		if p.EndTime == nil {
			end := now
			p.EndTime = &end
		}
	}
}

// Sweep resolves every starting session whose countdown has elapsed. It gives the same
// result as the first client poll would, so it is safe to run alongside polling.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	sessions, err := c.store.ListSessionsByStatus(ctx, models.SessionStarting)
	if err != nil {
		return 0, fmt.Errorf("list starting sessions: %w", err)
	}
	now := c.now()
	n := 0
	for _, sess := range sessions {
		if sess.StartTimestamp == nil || now.Before(*sess.StartTimestamp) {
			continue
		}
		st, err := c.CheckStart(ctx, sess.ID)
		if err != nil {
			c.log.WithFields(logrus.Fields{"session_id": sess.ID}).WithError(err).Warn("countdown sweep failed")
			continue
		}
		if st.Started {
			n++
		}
	}
	return n, nil
}

// Targets lists the session's objects in order.
func (c *Coordinator) Targets(ctx context.Context, sessionID uuid.UUID) ([]models.ObjectTarget, error) {
	return c.store.ListTargets(ctx, sessionID)
}
