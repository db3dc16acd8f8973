package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicate is returned by repositories when an insert violates a
// uniqueness constraint (username, email or token hash).
var ErrDuplicate = errors.New("duplicate record")

type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type UserRepository interface {
	Create(user *User) error
	GetByID(id uuid.UUID) (*User, error)
	// GetByUsernameOrEmail matches either column against the same value.
	GetByUsernameOrEmail(login string) (*User, error)
	GetByEmail(email string) (*User, error)
	// Exists reports whether any user holds the username or the email.
	Exists(username, email string) (bool, error)
	UpdateLastLogin(id uuid.UUID) error
	UpdatePasswordHash(id uuid.UUID, passwordHash string) error
}
