// internal/hunt/memory_store.go
package hunt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

// MemoryStore is an in-process Store. Each session and each participant has its own
// lock; the store-wide mutex only guards the index maps. Lock order is session, then
// participant, then store; mu is never held while acquiring another lock.
type MemoryStore struct {
	createMu     sync.Mutex // serializes code-uniqueness checks
	mu           sync.Mutex
	sessions     map[uuid.UUID]*sessionRecord
	participants map[uuid.UUID]*participantRecord
	targets      map[uuid.UUID][]models.ObjectTarget
	evidence     []models.Evidence
}

type sessionRecord struct {
	mu      sync.Mutex
	session *models.GameSession
	members []uuid.UUID // participant ids in join order; guarded by mu
}

type participantRecord struct {
	mu sync.Mutex
	p  *models.Participant
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     make(map[uuid.UUID]*sessionRecord),
		participants: make(map[uuid.UUID]*participantRecord),
		targets:      make(map[uuid.UUID][]models.ObjectTarget),
	}
}

func (s *MemoryStore) sessionRec(id uuid.UUID) (*sessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, apperr.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) participantRec(id uuid.UUID) (*participantRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %s: %w", id, apperr.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) allSessions() []*sessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]*sessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	return recs
}

// CreateSession stores the session and its creator. Codes are unique among live sessions.
func (s *MemoryStore) CreateSession(_ context.Context, sess *models.GameSession, creator *models.Participant) error {
	s.createMu.Lock()
	defer s.createMu.Unlock()
	for _, rec := range s.allSessions() {
		rec.mu.Lock()
		taken := rec.session.Code == sess.Code && rec.session.Status != models.SessionFinished
		rec.mu.Unlock()
		if taken {
			return ErrCodeTaken
		}
	}
	rec := &sessionRecord{session: sess.Clone()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if creator != nil {
		s.participants[creator.ID] = &participantRecord{p: creator.Clone()}
		rec.members = append(rec.members, creator.ID)
	}
	s.sessions[sess.ID] = rec
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id uuid.UUID) (*models.GameSession, error) {
	rec, err := s.sessionRec(id)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.session.Clone(), nil
}

func (s *MemoryStore) GetSessionByCode(_ context.Context, code string) (*models.GameSession, error) {
	var best *models.GameSession
	for _, rec := range s.allSessions() {
		rec.mu.Lock()
		sess := rec.session.Clone()
		rec.mu.Unlock()
		if sess.Code != code {
			continue
		}
		if best == nil || betterCodeMatch(sess, best) {
			best = sess
		}
	}
	if best == nil {
		return nil, fmt.Errorf("session code %q: %w", code, apperr.ErrNotFound)
	}
	return best, nil
}

// betterCodeMatch prefers live sessions, then the most recently created.
func betterCodeMatch(a, b *models.GameSession) bool {
	aLive, bLive := a.Status != models.SessionFinished, b.Status != models.SessionFinished
	if aLive != bLive {
		return aLive
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *MemoryStore) ListSessionsByStatus(_ context.Context, status models.SessionStatus) ([]*models.GameSession, error) {
	var out []*models.GameSession
	for _, rec := range s.allSessions() {
		rec.mu.Lock()
		if rec.session.Status == status {
			out = append(out, rec.session.Clone())
		}
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateMatch locks the session, then each member in join order. Nothing else takes
// more than one participant lock, so the ordering cannot deadlock.
func (s *MemoryStore) UpdateMatch(_ context.Context, sessionID uuid.UUID, fn func(m *Match) error) (*Match, error) {
	rec, err := s.sessionRec(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	precs := s.memberRecs(rec)
	s.mu.Lock()
	hadTargets := len(s.targets[sessionID]) > 0
	existingTargets := append([]models.ObjectTarget(nil), s.targets[sessionID]...)
	s.mu.Unlock()

	for _, pr := range precs {
		pr.mu.Lock()
		defer pr.mu.Unlock()
	}

	m := &Match{Session: rec.session.Clone(), Targets: existingTargets}
	for _, pr := range precs {
		m.Participants = append(m.Participants, pr.p.Clone())
	}

	if err := fn(m); err != nil {
		if errors.Is(err, ErrNoChange) {
			return s.snapshot(rec, precs, existingTargets), nil
		}
		return nil, err
	}

	rec.session = m.Session.Clone()
	byID := make(map[uuid.UUID]*models.Participant, len(m.Participants))
	for _, p := range m.Participants {
		byID[p.ID] = p
	}
	for _, pr := range precs {
		if p, ok := byID[pr.p.ID]; ok {
			pr.p = p.Clone()
		}
	}
	if !hadTargets && len(m.Targets) > 0 {
		s.mu.Lock()
		s.targets[sessionID] = append([]models.ObjectTarget(nil), m.Targets...)
		s.mu.Unlock()
		existingTargets = m.Targets
	}
	return s.snapshot(rec, precs, existingTargets), nil
}

func (s *MemoryStore) snapshot(rec *sessionRecord, precs []*participantRecord, targets []models.ObjectTarget) *Match {
	m := &Match{Session: rec.session.Clone(), Targets: append([]models.ObjectTarget(nil), targets...)}
	for _, pr := range precs {
		m.Participants = append(m.Participants, pr.p.Clone())
	}
	return m
}

func (s *MemoryStore) ListTargets(_ context.Context, sessionID uuid.UUID) ([]models.ObjectTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, apperr.ErrNotFound)
	}
	return append([]models.ObjectTarget(nil), s.targets[sessionID]...), nil
}

func (s *MemoryStore) memberRecs(rec *sessionRecord) []*participantRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	precs := make([]*participantRecord, 0, len(rec.members))
	for _, id := range rec.members {
		precs = append(precs, s.participants[id])
	}
	return precs
}

func (s *MemoryStore) JoinParticipant(_ context.Context, p *models.Participant, admit func(*models.GameSession, int) error) (*models.Participant, bool, error) {
	rec, err := s.sessionRec(p.SessionID)
	if err != nil {
		return nil, false, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	precs := s.memberRecs(rec)
	for _, pr := range precs {
		pr.mu.Lock()
		existing := pr.p.Clone()
		pr.mu.Unlock()
		if existing.UserID == p.UserID {
			return existing, false, nil
		}
	}
	if err := admit(rec.session.Clone(), len(precs)); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	s.participants[p.ID] = &participantRecord{p: p.Clone()}
	s.mu.Unlock()
	rec.members = append(rec.members, p.ID)
	return p.Clone(), true, nil
}

func (s *MemoryStore) GetParticipant(_ context.Context, id uuid.UUID) (*models.Participant, error) {
	pr, err := s.participantRec(id)
	if err != nil {
		return nil, err
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.p.Clone(), nil
}

func (s *MemoryStore) ListParticipants(_ context.Context, sessionID uuid.UUID) ([]*models.Participant, error) {
	rec, err := s.sessionRec(sessionID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	ids := append([]uuid.UUID(nil), rec.members...)
	rec.mu.Unlock()

	out := make([]*models.Participant, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetParticipant(context.Background(), id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateParticipant serializes read-modify-write on a single participant.
func (s *MemoryStore) UpdateParticipant(_ context.Context, id uuid.UUID, fn func(p *models.Participant) error) (*models.Participant, error) {
	pr, err := s.participantRec(id)
	if err != nil {
		return nil, err
	}
	pr.mu.Lock()
	defer pr.mu.Unlock()

	p := pr.p.Clone()
	if err := fn(p); err != nil {
		if errors.Is(err, ErrNoChange) {
			return pr.p.Clone(), nil
		}
		return nil, err
	}
	pr.p = p.Clone()
	return p, nil
}

func (s *MemoryStore) SaveEvidence(_ context.Context, evidence []models.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evidence = append(s.evidence, evidence...)
	return nil
}

// Evidence returns every evidence record stored for a participant.
func (s *MemoryStore) Evidence(participantID uuid.UUID) []models.Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Evidence
	for _, e := range s.evidence {
		if e.ParticipantID == participantID {
			out = append(out, e)
		}
	}
	return out
}
