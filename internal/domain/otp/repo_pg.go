package otp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyncure/zyncure/internal/platform/db"
)

type codeRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &codeRepoPG{pool: pool} }

const codeCols = `id, user_id, email, code_hash, expires_at, used, attempts, created_at, used_at`

func scanCode(row pgx.Row) (*Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.UserID, &c.Email, &c.CodeHash, &c.ExpiresAt, &c.Used,
		&c.Attempts, &c.CreatedAt, &c.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *codeRepoPG) Create(ctx context.Context, c *Code) error {
	c.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO otp_codes (id, user_id, email, code_hash, expires_at)
		VALUES ($1, $2, lower($3), $4, $5)
		RETURNING created_at`,
		c.ID, c.UserID, strings.TrimSpace(c.Email), c.CodeHash, c.ExpiresAt,
	).Scan(&c.CreatedAt)
}

func (r *codeRepoPG) Latest(ctx context.Context, email string) (*Code, error) {
	return scanCode(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+codeCols+` FROM otp_codes
		WHERE email = lower($1) AND NOT used
		ORDER BY created_at DESC
		LIMIT 1`, strings.TrimSpace(email)))
}

func (r *codeRepoPG) InvalidateForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE otp_codes SET used = true, used_at = now() WHERE user_id = $1 AND NOT used`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *codeRepoPG) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE otp_codes SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCodeNotFound
	}
	return n, err
}

func (r *codeRepoPG) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE otp_codes SET used = true, used_at = $2 WHERE id = $1 AND NOT used`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
