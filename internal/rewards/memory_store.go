// internal/rewards/memory_store.go
package rewards

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/models"
)

// MemoryStore keeps rewards in process, one lock per user.
type MemoryStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*userRecord
}

type userRecord struct {
	mu      sync.Mutex
	rewards []models.RewardRecord
	totals  models.UserTotals
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]*userRecord)}
}

func (s *MemoryStore) user(id uuid.UUID) *userRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = &userRecord{totals: models.UserTotals{UserID: id}}
		s.users[id] = u
	}
	return u
}

func (s *MemoryStore) WithUser(_ context.Context, userID uuid.UUID, fn func(tx Tx) error) error {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	tx := &memTx{u: u, totals: u.totals}
	if err := fn(tx); err != nil {
		return err
	}
	u.rewards = append(u.rewards, tx.pending...)
	u.totals = tx.totals
	return nil
}

func (s *MemoryStore) RewardDates(_ context.Context, userID uuid.UUID, limit int) ([]time.Time, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return recentDays(u.rewards, limit), nil
}

func (s *MemoryStore) GetTotals(_ context.Context, userID uuid.UUID) (*models.UserTotals, error) {
	u := s.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	t := u.totals
	return &t, nil
}

// Add appends a reward without touching totals; used to seed history.
func (s *MemoryStore) Add(rec models.RewardRecord) {
	u := s.user(rec.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rewards = append(u.rewards, rec)
}

func recentDays(recs []models.RewardRecord, limit int) []time.Time {
	dates := make([]time.Time, len(recs))
	for i, r := range recs {
		dates[i] = r.CreatedAt
	}
	days := distinctDays(dates)
	if limit > 0 && len(days) > limit {
		days = days[:limit]
	}
	return days
}

// memTx buffers writes until WithUser commits them.
type memTx struct {
	u       *userRecord
	pending []models.RewardRecord
	totals  models.UserTotals
}

func (tx *memTx) RewardDates(_ context.Context, limit int) ([]time.Time, error) {
	all := append(append([]models.RewardRecord(nil), tx.u.rewards...), tx.pending...)
	return recentDays(all, limit), nil
}

func (tx *memTx) HasChallengeReward(_ context.Context, challengeID uuid.UUID, day time.Time) (bool, error) {
	for _, recs := range [][]models.RewardRecord{tx.u.rewards, tx.pending} {
		for _, r := range recs {
			if r.ChallengeID != nil && *r.ChallengeID == challengeID && models.Day(r.CreatedAt).Equal(day) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (tx *memTx) InsertReward(_ context.Context, rec *models.RewardRecord) error {
	tx.pending = append(tx.pending, *rec)
	return nil
}

func (tx *memTx) Totals(context.Context) (*models.UserTotals, error) {
	t := tx.totals
	return &t, nil
}

func (tx *memTx) SaveTotals(_ context.Context, totals *models.UserTotals) error {
	tx.totals = *totals
	return nil
}
