// internal/hunt/service.go
package hunt

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

// Config holds match defaults and limits.
type Config struct {
	DefaultObjectList string
	DefaultMode       string
	DefaultMaxPlayers int
	DefaultMaxObjects int
	DefaultCountdown  time.Duration
	MaxCountdown      time.Duration
}

// DefaultConfig mirrors the values a host gets when they leave settings untouched.
func DefaultConfig() Config {
	return Config{
		DefaultObjectList: CocoListName,
		DefaultMode:       "classique",
		DefaultMaxPlayers: 4,
		DefaultMaxObjects: 5,
		DefaultCountdown:  5 * time.Second,
		MaxCountdown:      60 * time.Second,
	}
}

// Deps are the collaborators the core consumes. Store, Pools and Detector are required;
// the rest fall back to no-op or default implementations.
type Deps struct {
	Store     Store
	Pools     PoolProvider
	Detector  Detector
	Passwords PasswordHasher
	Events    EventPublisher
	Photos    PhotoArchive
	Logger    *logrus.Logger
	Now       func() time.Time
}

// env is shared by every component of a Service.
type env struct {
	store  Store
	events EventPublisher
	log    *logrus.Logger
	now    func() time.Time
}

func (e *env) publish(ctx context.Context, ev Event) {
	ev.Timestamp = e.now()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.log.WithFields(logrus.Fields{
			"event":      ev.Type,
			"session_id": ev.SessionID,
		}).WithError(err).Warn("failed to publish match event")
	}
}

// Service is the produced API surface of the match engine.
type Service struct {
	Sessions     *Registry
	Participants *Tracker
	Starts       *Coordinator
	Detections   *Matcher
}

// NewService wires the registry, tracker, coordinator and matcher over deps.
func NewService(deps Deps, cfg Config) *Service {
	e := &env{
		store:  deps.Store,
		events: deps.Events,
		log:    deps.Logger,
		now:    deps.Now,
	}
	if e.events == nil {
		e.events = nopPublisher{}
	}
	if e.log == nil {
		e.log = logrus.StandardLogger()
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	passwords := deps.Passwords
	if passwords == nil {
		passwords = plainPasswords{}
	}

	coord := &Coordinator{env: e, pools: deps.Pools, cfg: cfg}
	return &Service{
		Sessions:     &Registry{env: e, passwords: passwords, cfg: cfg},
		Participants: &Tracker{env: e},
		Starts:       coord,
		Detections:   &Matcher{env: e, detector: deps.Detector, photos: deps.Photos, coord: coord},
	}
}

func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.GameSession, *models.Participant, error) {
	return s.Sessions.Create(ctx, req)
}

func (s *Service) UpdateSessionConfig(ctx context.Context, sessionID, requesterID uuid.UUID, upd SessionUpdate) (*models.GameSession, error) {
	return s.Sessions.UpdateConfig(ctx, sessionID, requesterID, upd)
}

func (s *Service) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.GameSession, error) {
	return s.Sessions.GetByID(ctx, sessionID)
}

func (s *Service) GetSessionByCode(ctx context.Context, code string) (*models.GameSession, error) {
	return s.Sessions.GetByCode(ctx, code)
}

// JoinSession resolves a session by its join code, applies the password gate and
// admits the user. Re-joining returns the existing participant.
func (s *Service) JoinSession(ctx context.Context, code string, userID uuid.UUID, password string) (*models.Participant, error) {
	sess, err := s.Sessions.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.CheckJoin(sess, password); err != nil {
		s.Sessions.log.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"user_id":    userID,
		}).WithError(err).Info("join rejected")
		return nil, err
	}
	return s.Participants.Join(ctx, sess.ID, userID)
}

func (s *Service) StartSession(ctx context.Context, sessionID, requesterID uuid.UUID, countdown time.Duration) (*models.GameSession, error) {
	m, err := s.Starts.Start(ctx, sessionID, requesterID, countdown)
	if err != nil {
		return nil, err
	}
	return m.Session, nil
}

func (s *Service) CheckStart(ctx context.Context, sessionID uuid.UUID) (StartState, error) {
	return s.Starts.CheckStart(ctx, sessionID)
}

func (s *Service) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	return s.Participants.List(ctx, sessionID)
}

func (s *Service) GetParticipant(ctx context.Context, participantID uuid.UUID) (*models.Participant, error) {
	return s.Participants.Get(ctx, participantID)
}

func (s *Service) ListTargets(ctx context.Context, sessionID uuid.UUID) ([]models.ObjectTarget, error) {
	return s.Starts.Targets(ctx, sessionID)
}

func (s *Service) SubmitDetection(ctx context.Context, sub Submission) (*SubmitResult, error) {
	return s.Detections.Submit(ctx, sub)
}

func (s *Service) SkipTarget(ctx context.Context, participantID, requesterID uuid.UUID, orderIndex int) (*models.Participant, error) {
	return s.Detections.Skip(ctx, participantID, requesterID, orderIndex)
}

// plainPasswords compares passwords verbatim; used when no hasher is configured.
type plainPasswords struct{}

func (plainPasswords) Hash(password string) (string, error) { return password, nil }

func (plainPasswords) Compare(password, hash string) (bool, error) { return password == hash, nil }
