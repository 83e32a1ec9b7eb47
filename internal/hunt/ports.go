// internal/hunt/ports.go
package hunt

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/models"
)

// ErrNoChange is returned by an update func to release a record without writing it.
// Store implementations treat it as success and return the unchanged record.
var ErrNoChange = errors.New("no change")

// ErrCodeTaken is returned by Store.CreateSession when another live session owns the code.
var ErrCodeTaken = errors.New("join code already in use")

// Match is a session together with all of its participants and targets, loaded and
// written as one atomic unit by Store.UpdateMatch.
type Match struct {
	Session      *models.GameSession
	Participants []*models.Participant
	// Targets are inserted by the store only when the session had none before the update.
	Targets []models.ObjectTarget
}

// Store is the persistence collaborator. Every update func runs with the affected
// record(s) locked, so read-modify-write cycles on one session or one participant
// never interleave. Updates to different participants proceed in parallel.
type Store interface {
	// CreateSession stores a new session and its creator's participant record together.
	CreateSession(ctx context.Context, s *models.GameSession, creator *models.Participant) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.GameSession, error)
	// GetSessionByCode prefers the live (non-finished) session owning code.
	GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error)
	ListSessionsByStatus(ctx context.Context, status models.SessionStatus) ([]*models.GameSession, error)
	UpdateMatch(ctx context.Context, sessionID uuid.UUID, fn func(m *Match) error) (*Match, error)
	ListTargets(ctx context.Context, sessionID uuid.UUID) ([]models.ObjectTarget, error)

	// JoinParticipant inserts p unless its user already belongs to the session, in which
	// case the existing record is returned with created=false. admit runs under the
	// session lock with the current member count and may veto the insert.
	JoinParticipant(ctx context.Context, p *models.Participant, admit func(s *models.GameSession, count int) error) (existing *models.Participant, created bool, err error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error)
	UpdateParticipant(ctx context.Context, id uuid.UUID, fn func(p *models.Participant) error) (*models.Participant, error)

	SaveEvidence(ctx context.Context, evidence []models.Evidence) error
}

// PoolProvider supplies named candidate-object lists.
type PoolProvider interface {
	// ObjectsForList returns the named pool or an error wrapping apperr.ErrNotFound.
	ObjectsForList(ctx context.Context, name string) ([]string, error)
}

// Detector labels the objects present in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]models.Detection, error)
}

// PasswordHasher hashes and verifies private-session passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) (bool, error)
}

// PhotoArchive keeps submitted evidence images and returns where they can be fetched.
type PhotoArchive interface {
	PutPhoto(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EventType names a match event published for out-of-process consumers.
type EventType string

const (
	EventSessionCreated      EventType = "session_created"
	EventSessionStarting     EventType = "session_starting"
	EventSessionInProgress   EventType = "session_in_progress"
	EventSessionFinished     EventType = "session_finished"
	EventParticipantJoined   EventType = "participant_joined"
	EventTargetFound         EventType = "target_found"
	EventTargetSkipped       EventType = "target_skipped"
	EventParticipantFinished EventType = "participant_finished"
)

// Event is one match event.
type Event struct {
	Type          EventType      `json:"type"`
	SessionID     uuid.UUID      `json:"session_id"`
	ParticipantID uuid.UUID      `json:"participant_id,omitempty"`
	UserID        uuid.UUID      `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// EventPublisher ships match events. Publishing never blocks an operation's outcome.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }
