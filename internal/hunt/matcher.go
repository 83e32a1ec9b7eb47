// internal/hunt/matcher.go
package hunt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

// Matcher checks submitted photos against a participant's active target.
type Matcher struct {
	*env
	detector Detector
	photos   PhotoArchive
	coord    *Coordinator
}

// Submission is one photo attempt. StartTime and EndTime are the client's own lap window
// and are recorded as given.
type Submission struct {
	ParticipantID uuid.UUID
	RequesterID   uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Image         []byte
	ContentType   string
}

// SubmitResult reports what a submission did. A participant with nothing left to find
// gets AllResolved=true and no evidence.
type SubmitResult struct {
	Target              *models.TargetEntry `json:"target,omitempty"`
	NextTarget          *models.TargetEntry `json:"next_target,omitempty"`
	AllResolved         bool                `json:"all_resolved"`
	Matched             bool                `json:"matched"`
	LapTimeAdded        bool                `json:"lap_time_added"`
	ParticipantFinished bool                `json:"participant_finished"`
	SessionFinished     bool                `json:"session_finished"`
	Evidence            []models.Evidence   `json:"detections"`
	Participant         *models.Participant `json:"participant"`
}

func (sub Submission) validate() error {
	if sub.ParticipantID == uuid.Nil {
		return fmt.Errorf("participant id is required: %w", apperr.ErrValidation)
	}
	if sub.StartTime.IsZero() || sub.EndTime.IsZero() {
		return fmt.Errorf("start_time and end_time are required: %w", apperr.ErrValidation)
	}
	if sub.EndTime.Before(sub.StartTime) {
		return fmt.Errorf("end_time is before start_time: %w", apperr.ErrValidation)
	}
	if len(sub.Image) == 0 {
		return fmt.Errorf("image is required: %w", apperr.ErrValidation)
	}
	return nil
}

// Submit runs the detector on the image and, when any label matches the active target,
// marks it found and records the lap.
func (d *Matcher) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}
	p, err := d.store.GetParticipant(ctx, sub.ParticipantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != sub.RequesterID {
		return nil, fmt.Errorf("participant %s belongs to another user: %w", p.ID, apperr.ErrUnauthorized)
	}

	if p.Status != models.ParticipantInProgress && p.Status != models.ParticipantFinished {
		return nil, fmt.Errorf("participant %s is %s, match has not started: %w", p.ID, p.Status, apperr.ErrConflict)
	}
	active, ok := p.ActiveTarget()
	if !ok || p.Status == models.ParticipantFinished {
		return &SubmitResult{AllResolved: p.AllResolved(), Participant: p}, nil
	}

	fields := logrus.Fields{"participant_id": p.ID, "session_id": p.SessionID, "target": active.Name}
	detections, err := d.detector.Detect(ctx, sub.Image)
	if err != nil {
		d.log.WithFields(fields).WithError(err).Warn("detector call failed")
		return nil, fmt.Errorf("detect objects: %w", err)
	}
	for _, det := range detections {
		if !det.BBox.Valid() || det.Confidence < 0 || det.Confidence > 1 {
			return nil, fmt.Errorf("detector returned malformed detection %q: %w", det.Label, apperr.ErrValidation)
		}
	}
	// Only archive photos of submissions that will be recorded.
	photoURL := d.archive(ctx, p, sub, fields)

	now := d.now()
	matched := false
	evidence := make([]models.Evidence, 0, len(detections))
	for _, det := range detections {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate evidence id: %w", err)
		}
		hit := strings.EqualFold(strings.TrimSpace(det.Label), active.Name)
		matched = matched || hit
		evidence = append(evidence, models.Evidence{
			ID:            id,
			ParticipantID: p.ID,
			Label:         det.Label,
			Confidence:    det.Confidence,
			BBox:          det.BBox,
			TargetName:    active.Name,
			IsTargetMatch: hit,
			PhotoURL:      photoURL,
			CreatedAt:     now,
		})
	}
	if len(evidence) > 0 {
		if err := d.store.SaveEvidence(ctx, evidence); err != nil {
			return nil, fmt.Errorf("save evidence for participant %s: %w", p.ID, err)
		}
	}

	res := &SubmitResult{Target: &active, Matched: matched, Evidence: evidence, Participant: p}
	if !matched {
		d.log.WithFields(fields).WithField("detections", len(detections)).Debug("no target match")
		res.NextTarget = &active
		return res, nil
	}

	updated, err := d.store.UpdateParticipant(ctx, p.ID, func(p *models.Participant) error {
		if p.Status != models.ParticipantInProgress {
			return ErrNoChange
		}
		i := p.EntryIndex(active.OrderIndex)
		// A concurrent submission or skip may have resolved it first.
		if i < 0 || p.Targets[i].Resolved() {
			return ErrNoChange
		}
		p.Targets[i].Found = true
		p.LapTimes = append(p.LapTimes, models.LapTime{
			OrderIndex: active.OrderIndex,
			StartTime:  sub.StartTime,
			EndTime:    sub.EndTime,
		})
		res.LapTimeAdded = true
		if p.AllResolved() {
			end := sub.EndTime
			p.EndTime = &end
			p.Status = models.ParticipantFinished
			res.ParticipantFinished = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update participant %s: %w", p.ID, err)
	}
	d.fill(res, updated, active.OrderIndex)

	if res.LapTimeAdded {
		d.log.WithFields(fields).WithField("order_index", active.OrderIndex).Info("target found")
		d.publish(ctx, Event{
			Type:          EventTargetFound,
			SessionID:     p.SessionID,
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Payload:       map[string]any{"order_index": active.OrderIndex, "name": active.Name},
		})
	}
	if res.ParticipantFinished {
		res.SessionFinished, err = d.participantFinished(ctx, updated)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (d *Matcher) fill(res *SubmitResult, p *models.Participant, orderIndex int) {
	res.Participant = p
	if i := p.EntryIndex(orderIndex); i >= 0 {
		entry := p.Targets[i]
		res.Target = &entry
	}
	if next, ok := p.ActiveTarget(); ok {
		res.NextTarget = &next
	}
	res.AllResolved = p.AllResolved()
}

// archive stores the submitted photo. Failures only cost the evidence its URL.
func (d *Matcher) archive(ctx context.Context, p *models.Participant, sub Submission, fields logrus.Fields) string {
	if d.photos == nil {
		return ""
	}
	id, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	key := fmt.Sprintf("evidence/%s/%s%s", p.ID, id, photoExt(sub.ContentType))
	url, err := d.photos.PutPhoto(ctx, key, sub.Image, sub.ContentType)
	if err != nil {
		d.log.WithFields(fields).WithError(err).Warn("failed to archive evidence photo")
		return ""
	}
	return url
}

func photoExt(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

// Skip gives up on one target. The entry stays skipped for good and counts toward
// completion but not toward found.
func (d *Matcher) Skip(ctx context.Context, participantID, requesterID uuid.UUID, orderIndex int) (*models.Participant, error) {
	p, err := d.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != requesterID {
		return nil, fmt.Errorf("participant %s belongs to another user: %w", p.ID, apperr.ErrUnauthorized)
	}

	var changed, finished bool
	updated, err := d.store.UpdateParticipant(ctx, participantID, func(p *models.Participant) error {
		i := p.EntryIndex(orderIndex)
		if i < 0 {
			return fmt.Errorf("participant %s has no target %d: %w", p.ID, orderIndex, apperr.ErrNotFound)
		}
		if p.Status == models.ParticipantFinished {
			return fmt.Errorf("participant %s has finished: %w", p.ID, apperr.ErrConflict)
		}
		if p.Status != models.ParticipantInProgress {
			return fmt.Errorf("participant %s is %s, match has not started: %w", p.ID, p.Status, apperr.ErrConflict)
		}
		entry := &p.Targets[i]
		if entry.Found {
			return fmt.Errorf("target %d was already found: %w", orderIndex, apperr.ErrConflict)
		}
		if entry.Skipped {
			return ErrNoChange
		}
		entry.Skipped = true
		changed = true
		if p.AllResolved() {
			end := d.now()
			p.EndTime = &end
			p.Status = models.ParticipantFinished
			finished = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	d.log.WithFields(logrus.Fields{
		"participant_id": p.ID,
		"session_id":     p.SessionID,
		"order_index":    orderIndex,
	}).Info("target skipped")
	d.publish(ctx, Event{
		Type:          EventTargetSkipped,
		SessionID:     p.SessionID,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		Payload:       map[string]any{"order_index": orderIndex},
	})
	if finished {
		if _, err := d.participantFinished(ctx, updated); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (d *Matcher) participantFinished(ctx context.Context, p *models.Participant) (bool, error) {
	d.log.WithFields(logrus.Fields{
		"participant_id": p.ID,
		"session_id":     p.SessionID,
		"found":          p.FoundCount(),
	}).Info("participant finished")
	d.publish(ctx, Event{
		Type:          EventParticipantFinished,
		SessionID:     p.SessionID,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		Payload:       map[string]any{"found": p.FoundCount(), "targets": len(p.Targets)},
	})
	done, err := d.coord.FinishIfComplete(ctx, p.SessionID)
	if err != nil {
		return false, fmt.Errorf("check session %s completion: %w", p.SessionID, err)
	}
	if done {
		return true, nil
	}
	// Another participant may have closed the session in the meantime.
	sess, err := d.store.GetSession(ctx, p.SessionID)
	if err != nil {
		return false, err
	}
	return sess.Status == models.SessionFinished, nil
}
