// Package memory holds an in-memory storage backend satisfying the same
// contracts as the durable ones. It backs the unit and handler tests.
package memory

import (
	"context"
	"sync"
	"time"

	"ecoauth/internal/domain/models"
	"ecoauth/internal/storage"
)

type Storage struct {
	mu sync.Mutex

	users        map[int64]*models.User
	usersByEmail map[string]int64
	nextUserID   int64

	tokens       map[int64]*models.RefreshToken
	tokensByHash map[string]int64
	nextTokenID  int64

	entries []models.AuditEntry
}

func New() *Storage {
	return &Storage{
		users:        make(map[int64]*models.User),
		usersByEmail: make(map[string]int64),
		tokens:       make(map[int64]*models.RefreshToken),
		tokensByHash: make(map[string]int64),
	}
}

func (s *Storage) SaveUser(_ context.Context, user *models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByEmail[user.Email]; ok {
		return 0, storage.ErrUserAlreadyExists
	}

	s.nextUserID++
	stored := *user
	stored.ID = s.nextUserID
	stored.CreatedAt = time.Now()

	s.users[stored.ID] = &stored
	s.usersByEmail[stored.Email] = stored.ID

	return stored.ID, nil
}

func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	user := *s.users[id]
	return &user, nil
}

func (s *Storage) UserByID(_ context.Context, userID int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	u := *user
	return &u, nil
}

func (s *Storage) SaveToken(_ context.Context, token *models.RefreshToken) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveTokenLocked(token), nil
}

func (s *Storage) saveTokenLocked(token *models.RefreshToken) int64 {
	s.nextTokenID++
	stored := *token
	stored.ID = s.nextTokenID
	stored.CreatedAt = time.Now()

	s.tokens[stored.ID] = &stored
	s.tokensByHash[stored.TokenHash] = stored.ID

	return stored.ID
}

func (s *Storage) ActiveTokenByHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.tokensByHash[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}

	token := s.tokens[id]
	if !token.Active(time.Now()) {
		return nil, storage.ErrTokenNotFound
	}

	t := *token
	return &t, nil
}

// RotateToken revokes the old token and stores its replacement under one
// lock, so concurrent rotations of the same token cannot both succeed.
func (s *Storage) RotateToken(_ context.Context, old, replacement *models.RefreshToken) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	current, ok := s.tokens[old.ID]
	if !ok || !current.Active(now) {
		return 0, storage.ErrTokenNotFound
	}

	newID := s.saveTokenLocked(replacement)

	current.RevokedAt = &now
	current.ReplacedByTokenID = &newID

	return newID, nil
}

func (s *Storage) SaveEntry(_ context.Context, entry *models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *entry
	stored.ID = int64(len(s.entries) + 1)
	stored.CreatedAt = time.Now()
	s.entries = append(s.entries, stored)

	return nil
}

// Entries returns a copy of all audit entries in insertion order.
func (s *Storage) Entries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Token returns a stored refresh token by id for test assertions.
func (s *Storage) Token(id int64) (*models.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, false
	}
	t := *token
	return &t, true
}
