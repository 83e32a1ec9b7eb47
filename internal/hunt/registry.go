// internal/hunt/registry.go
package hunt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	MaxPlayersLimit = 50
	MaxObjectsLimit = 20
)

// Registry owns session creation, configuration and lookup.
type Registry struct {
	*env
	passwords PasswordHasher
	cfg       Config
}

// CreateSessionRequest carries a host's initial match settings. Zero values take defaults.
type CreateSessionRequest struct {
	CreatorID  uuid.UUID      `json:"-"`
	MaxPlayers int            `json:"max_players"`
	MaxObjects int            `json:"max_objects"`
	Mode       string         `json:"mode"`
	Filters    map[string]any `json:"filters"`
	ObjectList string         `json:"object_list"`
	IsPublic   bool           `json:"is_public"`
	Password   string         `json:"password"`
}

// SessionUpdate is a partial config change; nil fields are left untouched.
type SessionUpdate struct {
	MaxPlayers *int                  `json:"max_players"`
	MaxObjects *int                  `json:"max_objects"`
	Mode       *string               `json:"mode"`
	Filters    map[string]any        `json:"filters"`
	ObjectList *string               `json:"object_list"`
	IsPublic   *bool                 `json:"is_public"`
	Password   *string               `json:"password"`
	Status     *models.SessionStatus `json:"status"`
}

// structural reports whether the update touches fields frozen once the match starts.
func (u SessionUpdate) structural() bool {
	return u.MaxPlayers != nil || u.MaxObjects != nil || u.Mode != nil || u.Filters != nil || u.ObjectList != nil
}

func validateLimits(maxPlayers, maxObjects int) error {
	if maxPlayers < 1 || maxPlayers > MaxPlayersLimit {
		return fmt.Errorf("max_players must be between 1 and %d: %w", MaxPlayersLimit, apperr.ErrValidation)
	}
	if maxObjects < 1 || maxObjects > MaxObjectsLimit {
		return fmt.Errorf("max_objects must be between 1 and %d: %w", MaxObjectsLimit, apperr.ErrValidation)
	}
	return nil
}

// Create registers a new waiting session with a fresh join code and enrolls the creator.
func (r *Registry) Create(ctx context.Context, req CreateSessionRequest) (*models.GameSession, *models.Participant, error) {
	if req.CreatorID == uuid.Nil {
		return nil, nil, fmt.Errorf("creator id is required: %w", apperr.ErrValidation)
	}
	if req.MaxPlayers == 0 {
		req.MaxPlayers = r.cfg.DefaultMaxPlayers
	}
	if req.MaxObjects == 0 {
		req.MaxObjects = r.cfg.DefaultMaxObjects
	}
	if strings.TrimSpace(req.Mode) == "" {
		req.Mode = r.cfg.DefaultMode
	}
	if strings.TrimSpace(req.ObjectList) == "" {
		req.ObjectList = r.cfg.DefaultObjectList
	}
	if err := validateLimits(req.MaxPlayers, req.MaxObjects); err != nil {
		return nil, nil, err
	}

	var hash string
	if !req.IsPublic {
		if strings.TrimSpace(req.Password) == "" {
			return nil, nil, fmt.Errorf("private session requires a password: %w", apperr.ErrValidation)
		}
		h, err := r.passwords.Hash(req.Password)
		if err != nil {
			return nil, nil, fmt.Errorf("hash session password: %w", err)
		}
		hash = h
	}

	now := r.now()
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	participantID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate participant id: %w", err)
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return nil, nil, fmt.Errorf("generate join code: %w", err)
		}
		sess := &models.GameSession{
			ID:           sessionID,
			Code:         code,
			CreatorID:    req.CreatorID,
			IsPublic:     req.IsPublic,
			PasswordHash: hash,
			MaxPlayers:   req.MaxPlayers,
			MaxObjects:   req.MaxObjects,
			Mode:         req.Mode,
			Filters:      req.Filters,
			ObjectList:   req.ObjectList,
			Status:       models.SessionWaiting,
			CreatedAt:    now,
		}
		creator := &models.Participant{
			ID:        participantID,
			SessionID: sessionID,
			UserID:    req.CreatorID,
			JoinCode:  code,
			IsCreator: true,
			Targets:   []models.TargetEntry{},
			LapTimes:  []models.LapTime{},
			Status:    models.ParticipantPending,
			CreatedAt: now,
		}

		err = r.store.CreateSession(ctx, sess, creator)
		if errors.Is(err, ErrCodeTaken) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}

		r.log.WithFields(logrus.Fields{
			"session_id": sess.ID,
			"code":       sess.Code,
			"user_id":    sess.CreatorID,
		}).Info("session created")
		r.publish(ctx, Event{Type: EventSessionCreated, SessionID: sess.ID, UserID: sess.CreatorID})
		return sess, creator, nil
	}
	return nil, nil, fmt.Errorf("no free join code after %d attempts", codeAttempts)
}

// UpdateConfig applies a creator's partial update. Structural fields are frozen once the
// session leaves waiting; a status change may only finish the match.
func (r *Registry) UpdateConfig(ctx context.Context, sessionID, requesterID uuid.UUID, upd SessionUpdate) (*models.GameSession, error) {
	if upd.MaxPlayers != nil && (*upd.MaxPlayers < 1 || *upd.MaxPlayers > MaxPlayersLimit) {
		return nil, fmt.Errorf("max_players must be between 1 and %d: %w", MaxPlayersLimit, apperr.ErrValidation)
	}
	if upd.MaxObjects != nil && (*upd.MaxObjects < 1 || *upd.MaxObjects > MaxObjectsLimit) {
		return nil, fmt.Errorf("max_objects must be between 1 and %d: %w", MaxObjectsLimit, apperr.ErrValidation)
	}
	if upd.Mode != nil && strings.TrimSpace(*upd.Mode) == "" {
		return nil, fmt.Errorf("mode cannot be empty: %w", apperr.ErrValidation)
	}
	if upd.ObjectList != nil && strings.TrimSpace(*upd.ObjectList) == "" {
		return nil, fmt.Errorf("object_list cannot be empty: %w", apperr.ErrValidation)
	}
	if upd.Status != nil && *upd.Status != models.SessionFinished {
		return nil, fmt.Errorf("status can only be set to %q: %w", models.SessionFinished, apperr.ErrValidation)
	}

	var newHash string
	if upd.Password != nil && strings.TrimSpace(*upd.Password) != "" {
		h, err := r.passwords.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("hash session password: %w", err)
		}
		newHash = h
	}

	finished := false
	m, err := r.store.UpdateMatch(ctx, sessionID, func(m *Match) error {
		sess := m.Session
		if sess.CreatorID != requesterID {
			return fmt.Errorf("only the creator can modify session %s: %w", sess.ID, apperr.ErrUnauthorized)
		}
		if sess.Status == models.SessionFinished {
			return fmt.Errorf("session %s is finished: %w", sess.ID, apperr.ErrConflict)
		}
		if upd.structural() && sess.Status != models.SessionWaiting {
			return fmt.Errorf("session %s is %s, settings are locked: %w", sess.ID, sess.Status, apperr.ErrConflict)
		}
		if upd.MaxPlayers != nil {
			if *upd.MaxPlayers < len(m.Participants) {
				return fmt.Errorf("session already has %d players: %w", len(m.Participants), apperr.ErrConflict)
			}
			sess.MaxPlayers = *upd.MaxPlayers
		}
		if upd.MaxObjects != nil {
			sess.MaxObjects = *upd.MaxObjects
		}
		if upd.Mode != nil {
			sess.Mode = strings.TrimSpace(*upd.Mode)
		}
		if upd.Filters != nil {
			sess.Filters = upd.Filters
		}
		if upd.ObjectList != nil {
			sess.ObjectList = strings.TrimSpace(*upd.ObjectList)
		}
		if upd.IsPublic != nil {
			sess.IsPublic = *upd.IsPublic
		}
		if newHash != "" {
			sess.PasswordHash = newHash
		}
		if sess.IsPublic {
			sess.PasswordHash = ""
		} else if sess.PasswordHash == "" {
			return fmt.Errorf("private session requires a password: %w", apperr.ErrValidation)
		}
		if upd.Status != nil {
			finishMatch(m, r.now())
			finished = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"session_id": sessionID, "user_id": requesterID}
	r.log.WithFields(fields).Info("session config updated")
	if finished {
		r.log.WithFields(fields).Info("session finished by creator")
		r.publish(ctx, Event{Type: EventSessionFinished, SessionID: sessionID, UserID: requesterID})
	}
	return m.Session, nil
}

func (r *Registry) GetByID(ctx context.Context, id uuid.UUID) (*models.GameSession, error) {
	return r.store.GetSession(ctx, id)
}

func (r *Registry) GetByCode(ctx context.Context, code string) (*models.GameSession, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("code is required: %w", apperr.ErrValidation)
	}
	return r.store.GetSessionByCode(ctx, code)
}

// CheckJoin is the private-session gate: a password must be supplied and must match.
func (r *Registry) CheckJoin(sess *models.GameSession, password string) error {
	if sess.IsPublic {
		return nil
	}
	if password == "" {
		return fmt.Errorf("password required to join this private session: %w", apperr.ErrValidation)
	}
	ok, err := r.passwords.Compare(password, sess.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify session password: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid session password: %w", apperr.ErrUnauthorized)
	}
	return nil
}
