// Package memory holds in-process implementations of the repository contracts,
// used for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
)

// Users is a map-backed UserRepository. It enforces the same uniqueness
// constraints as the Postgres schema: provider id and login handle.
type Users struct {
	mu         sync.RWMutex
	byID       map[string]*repository.User
	byProvider map[int64]string
	byHandle   map[string]string
}

func NewUsers() *Users {
	return &Users{
		byID:       make(map[string]*repository.User),
		byProvider: make(map[int64]string),
		byHandle:   make(map[string]string),
	}
}

func (s *Users) GetByID(_ context.Context, id string) (*repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Users) GetByProviderID(_ context.Context, providerID int64) (*repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *Users) Create(_ context.Context, u *repository.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byProvider[u.ProviderID]; ok {
		return repository.ErrConflict
	}
	if _, ok := s.byHandle[u.LoginHandle]; ok {
		return repository.ErrHandleTaken
	}
	if _, ok := s.byID[u.ID]; ok {
		return repository.ErrConflict
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byProvider[u.ProviderID] = u.ID
	s.byHandle[u.LoginHandle] = u.ID
	return nil
}

func (s *Users) UpdateProfile(_ context.Context, id string, upd repository.ProfileUpdate, updatedAt time.Time) (*repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Nickname != nil {
		u.Nickname = *upd.Nickname
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = *upd.AvatarURL
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	u.UpdatedAt = updatedAt
	cp := *u
	return &cp, nil
}

func (s *Users) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byProvider, u.ProviderID)
	delete(s.byHandle, u.LoginHandle)
	delete(s.byID, id)
	return nil
}

// Len returns the number of stored users.
func (s *Users) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
