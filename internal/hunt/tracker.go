// internal/hunt/tracker.go
package hunt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

// Tracker owns session membership and participant lookups.
type Tracker struct {
	*env
}

// Join admits userID into the session. A user who already belongs to the session gets
// their existing record back unchanged; otherwise the session must be waiting and not full.
func (t *Tracker) Join(ctx context.Context, sessionID, userID uuid.UUID) (*models.Participant, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required: %w", apperr.ErrValidation)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate participant id: %w", err)
	}

	candidate := &models.Participant{
		ID:        id,
		SessionID: sessionID,
		UserID:    userID,
		Targets:   []models.TargetEntry{},
		LapTimes:  []models.LapTime{},
		Status:    models.ParticipantPending,
		CreatedAt: t.now(),
	}
	p, created, err := t.store.JoinParticipant(ctx, candidate, func(sess *models.GameSession, count int) error {
		if sess.Status != models.SessionWaiting {
			return fmt.Errorf("session %s is %s: %w", sess.ID, sess.Status, apperr.ErrConflict)
		}
		if count >= sess.MaxPlayers {
			return fmt.Errorf("session %s is full (%d/%d): %w", sess.ID, count, sess.MaxPlayers, apperr.ErrConflict)
		}
		candidate.JoinCode = sess.Code
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"session_id": sessionID, "user_id": userID, "participant_id": p.ID}
	if !created {
		t.log.WithFields(fields).Debug("user already in session")
		return p, nil
	}
	t.log.WithFields(fields).Info("user joined session")
	t.publish(ctx, Event{Type: EventParticipantJoined, SessionID: sessionID, ParticipantID: p.ID, UserID: userID})
	return p, nil
}

// List returns the session's participants in join order.
func (t *Tracker) List(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	return t.store.ListParticipants(ctx, sessionID)
}

func (t *Tracker) Get(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	return t.store.GetParticipant(ctx, participantID)
}
