// internal/quests/memory_store.go
package quests

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*models.Quest
	byDate map[time.Time]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[uuid.UUID]*models.Quest),
		byDate: make(map[time.Time]uuid.UUID),
	}
}

func (s *MemoryStore) CreateQuest(_ context.Context, q *models.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := models.Day(q.QuestDate)
	if _, ok := s.byDate[day]; ok {
		return fmt.Errorf("quest for %s: %w", day.Format(time.DateOnly), apperr.ErrConflict)
	}
	c := *q
	s.byID[q.ID] = &c
	s.byDate[day] = q.ID
	return nil
}

func (s *MemoryStore) QuestForDate(_ context.Context, date time.Time) (*models.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDate[models.Day(date)]
	if !ok {
		return nil, fmt.Errorf("quest for %s: %w", date.Format(time.DateOnly), apperr.ErrNotFound)
	}
	c := *s.byID[id]
	return &c, nil
}

func (s *MemoryStore) GetQuest(_ context.Context, id uuid.UUID) (*models.Quest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("quest %s: %w", id, apperr.ErrNotFound)
	}
	c := *q
	return &c, nil
}
