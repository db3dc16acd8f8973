package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/auth-sso/backend/internal/domain"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, wrong issuer or audience, expiry, malformed input. Callers get
// no more detail than that.
var ErrInvalidToken = errors.New("invalid access token")

// refreshTokenBytes is the entropy of an opaque refresh secret.
const refreshTokenBytes = 64

// Config carries the signing material shared by the auth service and the
// gateway. It is plain immutable configuration, constructed once and passed
// explicitly; nothing in this package holds global state.
type Config struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// Claims are the identity attributes embedded in an access token. Strongly
// typed on purpose: consumers read named fields, never claim-name strings.
type Claims struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies access tokens and generates opaque refresh
// secrets. It holds no state beyond its config; every output is a function
// of the inputs, the clock and the random source.
type Issuer struct {
	cfg Config
}

func NewIssuer(cfg Config) *Issuer {
	return &Issuer{cfg: cfg}
}

func (i *Issuer) RefreshTokenTTL() time.Duration {
	return i.cfg.RefreshTokenTTL
}

// IssueAccessToken signs an HS256 token carrying the user's identity claims.
func (i *Issuer) IssueAccessToken(user *domain.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.cfg.AccessTokenTTL)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    i.cfg.Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// NewRefreshToken returns a fresh opaque secret. No identity is embedded;
// the binding to a user lives in the stored record.
func (i *Issuer) NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// VerifyAccessToken checks signature, issuer, audience and expiry, all with
// zero clock-skew tolerance. Any failure collapses to ErrInvalidToken.
func (i *Issuer) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseIgnoringExpiry verifies the signature and signing algorithm but skips
// claim validation. It exists so refresh flows can recover identity from an
// expired-but-authentic token; it must never be used to grant access.
func (i *Issuer) ParseIgnoringExpiry(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (i *Issuer) keyFunc(t *jwt.Token) (interface{}, error) {
	return []byte(i.cfg.Secret), nil
}
