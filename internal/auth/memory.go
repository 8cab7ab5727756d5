package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xtrntr/tokenmarket/internal/db"
	"github.com/xtrntr/tokenmarket/internal/models"
)

// MemoryStore keeps users in process memory. It backs the server when no
// database is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int
	users  map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, users: make(map[string]*models.User)}
}

func (s *MemoryStore) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return nil, fmt.Errorf("username %q already taken", username)
	}
	user := &models.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.nextID++
	s.users[username] = user

	u := *user
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, db.ErrUserNotFound
	}
	u := *user
	return &u, nil
}
