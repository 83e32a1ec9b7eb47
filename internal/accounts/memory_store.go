// internal/accounts/memory_store.go
package accounts

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/pikit/internal/apperr"
	"github.com/jason-s-yu/pikit/internal/models"
)

type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]models.User)}
}

func (s *MemoryStore) emailTaken(email string, except uuid.UUID) bool {
	if email == "" {
		return false
	}
	for id, u := range s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emailTaken(u.Email, uuid.Nil) {
		return fmt.Errorf("email %q: %w", u.Email, apperr.ErrConflict)
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if email != "" && u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
}

func (s *MemoryStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUserCredentials(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, apperr.ErrNotFound)
	}
	if s.emailTaken(u.Email, u.ID) {
		return fmt.Errorf("email %q: %w", u.Email, apperr.ErrConflict)
	}
	s.users[u.ID] = *u
	return nil
}
