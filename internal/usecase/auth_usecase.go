package usecase

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/auth-sso/backend/internal/domain"
	"github.com/auth-sso/backend/internal/token"
)

var (
	// ErrInvalidCredentials is deliberately shared by "no such user",
	// "inactive user" and "wrong password" so callers cannot enumerate
	// accounts.
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrUserExists         = errors.New("username or email already exists")
	// ErrInvalidToken is shared by unknown, revoked and expired refresh
	// tokens for the same reason.
	ErrInvalidToken = errors.New("invalid refresh token")
	ErrUserInactive = errors.New("user is not active")
	ErrNotFound     = errors.New("not found")
)

// UserInfo is the user summary returned inside a session.
type UserInfo struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Session is the result of register, login and refresh: one signed access
// token, one opaque refresh token, and the owning user.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         UserInfo  `json:"user"`
}

// ValidationResult is the claims payload handed to remote validators such
// as the gateway. Identity fields are set only when IsValid is true.
type ValidationResult struct {
	IsValid  bool   `json:"isValid"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// PasswordDelivery hands a temporary password to an out-of-band channel
// (email in a real deployment). The password must never travel back in an
// HTTP response body.
type PasswordDelivery interface {
	DeliverTemporaryPassword(email, password string) error
}

// LogPasswordDelivery is the development stub: it writes the temporary
// password to the process log. Replace it with a mailer before exposing
// reset-password to real users.
type LogPasswordDelivery struct{}

func (LogPasswordDelivery) DeliverTemporaryPassword(email, password string) error {
	log.Printf("temporary password for %s: %s (configure a real delivery channel in production)", email, password)
	return nil
}

type AuthUsecase struct {
	userRepo  domain.UserRepository
	tokenRepo domain.RefreshTokenRepository
	eventRepo domain.LoginEventRepository
	issuer    *token.Issuer
	delivery  PasswordDelivery
}

func NewAuthUsecase(
	userRepo domain.UserRepository,
	tokenRepo domain.RefreshTokenRepository,
	eventRepo domain.LoginEventRepository,
	issuer *token.Issuer,
	delivery PasswordDelivery,
) *AuthUsecase {
	if delivery == nil {
		delivery = LogPasswordDelivery{}
	}
	return &AuthUsecase{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		eventRepo: eventRepo,
		issuer:    issuer,
		delivery:  delivery,
	}
}

// Register creates a new active user and opens their first session.
func (u *AuthUsecase) Register(username, email, password string) (*Session, error) {
	exists, err := u.userRepo.Exists(username, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
		IsActive:     true,
	}
	if err := u.userRepo.Create(user); err != nil {
		// The existence check and the insert are not one atomic step; the
		// unique constraints are the backstop for the race.
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return u.openSession(user)
}

// Login authenticates by username or email. Every session the user had
// before this login is revoked: one login, one active chain.
func (u *AuthUsecase) Login(usernameOrEmail, password, clientIP, userAgent string) (*Session, error) {
	user, err := u.userRepo.GetByUsernameOrEmail(usernameOrEmail)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := u.userRepo.UpdateLastLogin(user.ID); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	now := time.Now()
	user.LastLoginAt = &now

	if err := u.tokenRepo.RevokeAllForUser(user.ID, domain.RevokedNewLogin); err != nil {
		return nil, fmt.Errorf("revoke previous sessions: %w", err)
	}

	// Audit only; a failed write must not block the login.
	if err := u.eventRepo.Create(&domain.LoginEvent{
		UserID:     user.ID,
		AuthMethod: "password",
		IPAddress:  clientIP,
		UserAgent:  userAgent,
	}); err != nil {
		log.Printf("record login event for %s: %v", user.ID, err)
	}

	return u.openSession(user)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// one is issued in the same lineage. Exactly one of any set of concurrent
// calls presenting the same secret can succeed; the rest see ErrInvalidToken.
func (u *AuthUsecase) Refresh(refreshToken string) (*Session, error) {
	tokenHash := hashToken(refreshToken)

	stored, err := u.tokenRepo.GetByTokenHash(tokenHash)
	if err != nil {
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	if stored == nil || stored.Revoked || !stored.ExpiresAt.After(time.Now()) {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.GetByID(stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	accessToken, expiresAt, err := u.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	newSecret, err := u.issuer.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	next := &domain.RefreshToken{
		UserID:    user.ID,
		LineageID: stored.LineageID,
		TokenHash: hashToken(newSecret),
		ExpiresAt: time.Now().Add(u.issuer.RefreshTokenTTL()),
	}
	rotated, err := u.tokenRepo.Rotate(tokenHash, next)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !rotated {
		// Lost the race against a concurrent refresh or a revocation.
		return nil, ErrInvalidToken
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: newSecret,
		ExpiresAt:    expiresAt,
		User:         userInfo(user),
	}, nil
}

// Revoke marks a refresh token revoked. Revoking an already-revoked token
// is a no-op success; only an unknown token is an error.
func (u *AuthUsecase) Revoke(refreshToken string) error {
	tokenHash := hashToken(refreshToken)

	stored, err := u.tokenRepo.GetByTokenHash(tokenHash)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}
	if stored == nil {
		return ErrNotFound
	}
	if stored.Revoked {
		return nil
	}

	if _, err := u.tokenRepo.Revoke(tokenHash, domain.RevokedManual); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAll ends every active session of the user. Succeeds even when there
// is nothing to revoke.
func (u *AuthUsecase) RevokeAll(userID uuid.UUID) error {
	if err := u.tokenRepo.RevokeAllForUser(userID, domain.RevokedAll); err != nil {
		return fmt.Errorf("revoke all tokens: %w", err)
	}
	return nil
}

// ChangePassword replaces the hash after verifying the current password,
// then forcibly ends every session.
func (u *AuthUsecase) ChangePassword(userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := u.userRepo.GetByID(userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return ErrNotFound
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := u.userRepo.UpdatePasswordHash(user.ID, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return u.RevokeAll(user.ID)
}

// ResetPassword reports success whether or not the email is known. When it
// is, a temporary password replaces the hash, every session is revoked, and
// the password goes out through the delivery channel.
func (u *AuthUsecase) ResetPassword(email string) error {
	user, err := u.userRepo.GetByEmail(email)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil
	}

	tempPassword, err := temporaryPassword()
	if err != nil {
		return err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := u.userRepo.UpdatePasswordHash(user.ID, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := u.RevokeAll(user.ID); err != nil {
		return err
	}

	if err := u.delivery.DeliverTemporaryPassword(user.Email, tempPassword); err != nil {
		log.Printf("deliver temporary password to %s: %v", user.Email, err)
	}
	return nil
}

// Validate reports whether an access token passes full verification.
func (u *AuthUsecase) Validate(accessToken string) bool {
	_, err := u.issuer.VerifyAccessToken(accessToken)
	return err == nil
}

// ValidateWithClaims verifies an access token and, when valid, returns the
// identity claims for header propagation.
func (u *AuthUsecase) ValidateWithClaims(accessToken string) ValidationResult {
	claims, err := u.issuer.VerifyAccessToken(accessToken)
	if err != nil {
		return ValidationResult{IsValid: false}
	}
	return ValidationResult{
		IsValid:  true,
		UserID:   claims.UserID.String(),
		Username: claims.Username,
		Email:    claims.Email,
	}
}

func (u *AuthUsecase) GetUserByID(id uuid.UUID) (*domain.User, error) {
	return u.userRepo.GetByID(id)
}

func (u *AuthUsecase) LoginHistory(userID uuid.UUID, limit, offset int) ([]*domain.LoginEvent, error) {
	return u.eventRepo.ListByUser(userID, limit, offset)
}

// openSession issues a fresh access/refresh pair and starts a new rotation
// lineage for the user.
func (u *AuthUsecase) openSession(user *domain.User) (*Session, error) {
	accessToken, expiresAt, err := u.issuer.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refreshSecret, err := u.issuer.NewRefreshToken()
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		UserID:    user.ID,
		LineageID: uuid.New(),
		TokenHash: hashToken(refreshSecret),
		ExpiresAt: time.Now().Add(u.issuer.RefreshTokenTTL()),
	}
	if err := u.tokenRepo.Create(record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshSecret,
		ExpiresAt:    expiresAt,
		User:         userInfo(user),
	}, nil
}

func userInfo(user *domain.User) UserInfo {
	return UserInfo{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

const tempPasswordChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func temporaryPassword() (string, error) {
	out := make([]byte, 16)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tempPasswordChars))))
		if err != nil {
			return "", err
		}
		out[i] = tempPasswordChars[n.Int64()]
	}
	return string(out), nil
}
