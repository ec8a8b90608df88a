package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/userauth/internal/domain/repository"
)

// RefreshTokens is the in-process refresh token whitelist:
// userID -> jti -> expiry, guarded by a single mutex so that every
// operation is atomic with respect to the others.
type RefreshTokens struct {
	mu      sync.Mutex
	entries map[string]map[string]time.Time
	now     func() time.Time
}

// NewRefreshTokens returns an empty whitelist. now may be nil.
func NewRefreshTokens(now func() time.Time) *RefreshTokens {
	if now == nil {
		now = time.Now
	}
	return &RefreshTokens{
		entries: make(map[string]map[string]time.Time),
		now:     now,
	}
}

func (s *RefreshTokens) Save(_ context.Context, userID, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(userID, jti, expiresAt)
	return nil
}

func (s *RefreshTokens) Exists(_ context.Context, userID, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(userID, jti), nil
}

func (s *RefreshTokens) Rotate(_ context.Context, userID, oldJTI, newJTI string, newExpiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live(userID, oldJTI) {
		return repository.ErrNotFound
	}
	delete(s.entries[userID], oldJTI)
	s.put(userID, newJTI, newExpiresAt)
	return nil
}

func (s *RefreshTokens) Revoke(_ context.Context, userID, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.live(userID, jti)
	if m := s.entries[userID]; m != nil {
		delete(m, jti)
		if len(m) == 0 {
			delete(s.entries, userID)
		}
	}
	return ok, nil
}

func (s *RefreshTokens) RevokeAll(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries[userID])
	delete(s.entries, userID)
	return n, nil
}

// Count returns the live entries of a user.
func (s *RefreshTokens) Count(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, exp := range s.entries[userID] {
		if now.Before(exp) {
			n++
		}
	}
	return n
}

// live reports whether the entry exists and is unexpired, pruning it if expired.
// Callers hold s.mu.
func (s *RefreshTokens) live(userID, jti string) bool {
	m := s.entries[userID]
	exp, ok := m[jti]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(m, jti)
		return false
	}
	return true
}

func (s *RefreshTokens) put(userID, jti string, expiresAt time.Time) {
	m := s.entries[userID]
	if m == nil {
		m = make(map[string]time.Time)
		s.entries[userID] = m
	}
	m[jti] = expiresAt
}
