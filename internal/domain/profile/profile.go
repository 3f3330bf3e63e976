// Package profile reads the account profiles other domains need for
// ownership checks and notifications.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/db"
)

var ErrNotFound = apperr.NotFound("profile_not_found", "profile not found")

// Profile is the public part of an account.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
}

// FullName joins the name parts, falling back to the email.
func (p *Profile) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		return p.Email
	}
	return name
}

// Repository looks profiles up by id or email.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const cols = `id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), role, COALESCE(status, 'active')`

func scan(row pgx.Row) (*Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.Role, &p.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+cols+` FROM profiles WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Profile, error) {
	return scan(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+cols+` FROM profiles WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

// MemoryRepo is an in-memory Repository for tests of dependent packages.
type MemoryRepo struct {
	Profiles map[uuid.UUID]*Profile
}

func NewMemoryRepo(profiles ...*Profile) *MemoryRepo {
	m := &MemoryRepo{Profiles: make(map[uuid.UUID]*Profile)}
	for _, p := range profiles {
		m.Profiles[p.ID] = p
	}
	return m
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	p, ok := m.Profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *MemoryRepo) GetByEmail(_ context.Context, email string) (*Profile, error) {
	for _, p := range m.Profiles {
		if strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			return p, nil
		}
	}
	return nil, ErrNotFound
}
