// Package memory holds in-memory implementations of the credential store
// interfaces. They mirror the conditional-update semantics of the postgres
// repositories and back the unit tests.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auth-sso/backend/internal/domain"
)

type UserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]*domain.User)}
}

func (r *UserRepository) Create(user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return domain.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *UserRepository) GetByID(id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	clone := *u
	return &clone, nil
}

func (r *UserRepository) GetByUsernameOrEmail(login string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == login || u.Email == login {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) GetByEmail(email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Exists(username, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == username || u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepository) UpdateLastLogin(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

func (r *UserRepository) UpdatePasswordHash(id uuid.UUID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

// SetActive flips the active flag directly; deactivation has no API surface
// but the refresh flow must still handle inactive owners.
func (r *UserRepository) SetActive(id uuid.UUID, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		u.IsActive = active
	}
}

type RefreshTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{tokens: make(map[string]*domain.RefreshToken)}
}

func (r *RefreshTokenRepository) Create(token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[token.TokenHash]; exists {
		return domain.ErrDuplicate
	}
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()
	clone := *token
	r.tokens[token.TokenHash] = &clone
	return nil
}

func (r *RefreshTokenRepository) GetByTokenHash(tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok {
		return nil, nil
	}
	clone := *t
	return &clone, nil
}

func (r *RefreshTokenRepository) Revoke(tokenHash, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	t.RevokedReason = reason
	return true, nil
}

func (r *RefreshTokenRepository) Rotate(oldTokenHash string, next *domain.RefreshToken) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.tokens[oldTokenHash]
	if !ok || old.Revoked {
		return false, nil
	}
	old.Revoked = true
	old.RevokedReason = domain.RevokedRotation
	old.ReplacedBy = next.TokenHash

	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.CreatedAt = time.Now()
	clone := *next
	r.tokens[next.TokenHash] = &clone
	return true, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(userID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedReason = reason
		}
	}
	return nil
}

func (r *RefreshTokenRepository) ListByLineage(lineageID uuid.UUID) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.RefreshToken
	for _, t := range r.tokens {
		if t.LineageID == lineageID {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *RefreshTokenRepository) DeleteExpiredRevoked(olderThan time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for hash, t := range r.tokens {
		if t.Revoked && t.ExpiresAt.Before(olderThan) {
			delete(r.tokens, hash)
		}
	}
	return nil
}

type LoginEventRepository struct {
	mu     sync.Mutex
	events []*domain.LoginEvent
}

func NewLoginEventRepository() *LoginEventRepository {
	return &LoginEventRepository{}
}

func (r *LoginEventRepository) Create(event *domain.LoginEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	clone := *event
	r.events = append(r.events, &clone)
	return nil
}

func (r *LoginEventRepository) ListByUser(userID uuid.UUID, limit, offset int) ([]*domain.LoginEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	var matched []*domain.LoginEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].UserID == userID {
			clone := *r.events[i]
			matched = append(matched, &clone)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
