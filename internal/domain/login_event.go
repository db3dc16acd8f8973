package domain

import (
	"time"

	"github.com/google/uuid"
)

// LoginEvent is an audit record written on every successful login.
type LoginEvent struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	AuthMethod string    `json:"auth_method"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type LoginEventRepository interface {
	Create(event *LoginEvent) error
	ListByUser(userID uuid.UUID, limit, offset int) ([]*LoginEvent, error)
}
