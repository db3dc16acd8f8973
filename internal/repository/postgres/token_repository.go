package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/auth-sso/backend/internal/domain"
)

type RefreshTokenRepository struct {
	db *pgxpool.Pool
}

func NewRefreshTokenRepository(db *pgxpool.Pool) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const tokenColumns = `id, user_id, lineage_id, token_hash, expires_at, revoked, COALESCE(revoked_reason, ''), COALESCE(replaced_by, ''), created_at`

func scanToken(row pgx.Row) (*domain.RefreshToken, error) {
	t := &domain.RefreshToken{}
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.LineageID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.Revoked,
		&t.RevokedReason,
		&t.ReplacedBy,
		&t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *RefreshTokenRepository) Create(token *domain.RefreshToken) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO refresh_tokens (id, user_id, lineage_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.LineageID,
		token.TokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	return err
}

func (r *RefreshTokenRepository) GetByTokenHash(tokenHash string) (*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE token_hash = $1`
	return scanToken(r.db.QueryRow(ctx, query, tokenHash))
}

// Revoke is a compare-and-set on the revoked flag: only a still-active row
// is updated, and the result reports whether one was.
func (r *RefreshTokenRepository) Revoke(tokenHash, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2
		WHERE token_hash = $1 AND NOT revoked
	`
	ct, err := r.db.Exec(ctx, query, tokenHash, reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Rotate revokes the presented token and inserts its replacement in one
// transaction. The conditional update is what makes rotation one-shot: of
// two concurrent calls, the second sees zero rows and the insert never runs.
func (r *RefreshTokenRepository) Rotate(oldTokenHash string, next *domain.RefreshToken) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2, replaced_by = $3
		WHERE token_hash = $1 AND NOT revoked
	`, oldTokenHash, domain.RevokedRotation, next.TokenHash)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	if next.ID == uuid.Nil {
		next.ID = uuid.New()
	}
	next.CreatedAt = time.Now()

	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, lineage_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, next.ID, next.UserID, next.LineageID, next.TokenHash, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RefreshTokenRepository) RevokeAllForUser(userID uuid.UUID, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		UPDATE refresh_tokens SET revoked = TRUE, revoked_reason = $2
		WHERE user_id = $1 AND NOT revoked
	`
	_, err := r.db.Exec(ctx, query, userID, reason)
	return err
}

func (r *RefreshTokenRepository) ListByLineage(lineageID uuid.UUID) ([]*domain.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `SELECT ` + tokenColumns + ` FROM refresh_tokens WHERE lineage_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*domain.RefreshToken
	for rows.Next() {
		t := &domain.RefreshToken{}
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.LineageID, &t.TokenHash, &t.ExpiresAt,
			&t.Revoked, &t.RevokedReason, &t.ReplacedBy, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *RefreshTokenRepository) DeleteExpiredRevoked(olderThan time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	query := `DELETE FROM refresh_tokens WHERE revoked AND expires_at < $1`
	_, err := r.db.Exec(ctx, query, olderThan)
	return err
}
