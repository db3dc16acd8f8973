package domain

import (
	"time"

	"github.com/google/uuid"
)

// Revocation reasons recorded on refresh tokens. Once a token is revoked it
// never becomes valid again, whatever the reason.
const (
	RevokedNewLogin = "New login"
	RevokedRotation = "Token rotation"
	RevokedManual   = "Manual revocation"
	RevokedAll      = "Revoke all tokens"
)

// RefreshToken is the stored half of a session. The secret itself is never
// persisted; only its SHA-256 hash is. LineageID is minted at login/register
// and carried unchanged through every rotation, so a session's full rotation
// history is a single indexed lookup. ReplacedBy holds the hash of the token
// that superseded this one.
type RefreshToken struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	LineageID     uuid.UUID `json:"lineage_id"`
	TokenHash     string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
	Revoked       bool      `json:"revoked"`
	RevokedReason string    `json:"revoked_reason,omitempty"`
	ReplacedBy    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

type RefreshTokenRepository interface {
	Create(token *RefreshToken) error
	GetByTokenHash(tokenHash string) (*RefreshToken, error)
	// Revoke flips the revoked flag if and only if the token is still
	// active, and reports whether a row changed. Already-revoked tokens are
	// left untouched.
	Revoke(tokenHash, reason string) (bool, error)
	// Rotate atomically revokes the old token (reason "Token rotation",
	// forward pointer set to next's hash) and inserts next, in one
	// transaction. Returns false without inserting when the old token was
	// already revoked, so concurrent rotations of the same secret cannot
	// both succeed.
	Rotate(oldTokenHash string, next *RefreshToken) (bool, error)
	RevokeAllForUser(userID uuid.UUID, reason string) error
	ListByLineage(lineageID uuid.UUID) ([]*RefreshToken, error)
	// DeleteExpiredRevoked purges tokens that are both past expiry and
	// revoked. Active lineages are kept for audit.
	DeleteExpiredRevoked(olderThan time.Time) error
}
