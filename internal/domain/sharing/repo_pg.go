package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyncure/zyncure/internal/platform/db"
)

// =========== Connection Repository ===========

type connectionRepoPG struct{ pool *pgxpool.Pool }

func NewConnectionRepoPG(pool *pgxpool.Pool) ConnectionRepository {
	return &connectionRepoPG{pool: pool}
}

// openPairConstraint is the partial unique index over the unordered pair of
// pending and accepted connections.
const openPairConstraint = "connections_open_pair_key"

const connCols = `id, requester_id, requester_type, target_id, target_type, status, created_at, responded_at`

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(&c.ID, &c.RequesterID, &c.RequesterType, &c.TargetID, &c.TargetType,
		&c.Status, &c.CreatedAt, &c.RespondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectConnections(rows pgx.Rows) ([]*Connection, error) {
	defer rows.Close()
	var items []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *connectionRepoPG) Create(ctx context.Context, c *Connection) error {
	c.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO connections (id, requester_id, requester_type, target_id, target_type, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		c.ID, c.RequesterID, c.RequesterType, c.TargetID, c.TargetType, c.Status,
	).Scan(&c.CreatedAt)
	if db.IsUniqueViolation(err, openPairConstraint) {
		return ErrDuplicateRequest
	}
	return err
}

func (r *connectionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Connection, error) {
	return scanConnection(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+connCols+` FROM connections WHERE id = $1`, id))
}

func (r *connectionRepoPG) FindOpen(ctx context.Context, a, b uuid.UUID) (*Connection, error) {
	return scanConnection(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+connCols+` FROM connections
		WHERE ((requester_id = $1 AND target_id = $2) OR (requester_id = $2 AND target_id = $1))
			AND status IN ('pending', 'accepted')
		ORDER BY created_at DESC
		LIMIT 1`, a, b))
}

func (r *connectionRepoPG) Respond(ctx context.Context, id uuid.UUID, status ConnectionStatus) (*Connection, bool, error) {
	c, err := scanConnection(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE connections SET status = $2, responded_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+connCols, id, status))
	if errors.Is(err, ErrConnectionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (r *connectionRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}
	return nil
}

func (r *connectionRepoPG) ListForUser(ctx context.Context, userID uuid.UUID, status *ConnectionStatus, limit, offset int) ([]*Connection, int, error) {
	q := db.Conn(ctx, r.pool)
	where := ` WHERE (requester_id = $1 OR target_id = $1)`
	args := []interface{}{userID}
	if status != nil {
		args = append(args, *status)
		where += ` AND status = $2`
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM connections`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+connCols+` FROM connections`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectConnections(rows)
	return items, total, err
}

func (r *connectionRepoPG) ListIncoming(ctx context.Context, userID uuid.UUID) ([]*Connection, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+connCols+` FROM connections
		WHERE target_id = $1 AND status = 'pending'
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return collectConnections(rows)
}

func (r *connectionRepoPG) CountIncomingPending(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM connections WHERE target_id = $1 AND status = 'pending'`, userID).Scan(&n)
	return n, err
}

// =========== Grant Repository ===========

type grantRepoPG struct{ pool *pgxpool.Pool }

func NewGrantRepoPG(pool *pgxpool.Pool) GrantRepository { return &grantRepoPG{pool: pool} }

const grantCols = `id, owner_id, shared_with_id, resource_type, resource_id, expires_at,
	is_active, created_at, revoked_at`

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.OwnerID, &g.SharedWithID, &g.ResourceType, &g.ResourceID, &g.ExpiresAt,
		&g.IsActive, &g.CreatedAt, &g.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *grantRepoPG) Create(ctx context.Context, g *Grant) error {
	g.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO file_shares (id, owner_id, shared_with_id, resource_type, resource_id, expires_at, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		g.ID, g.OwnerID, g.SharedWithID, g.ResourceType, g.ResourceID, g.ExpiresAt, g.IsActive,
	).Scan(&g.CreatedAt)
}

func (r *grantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return scanGrant(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+grantCols+` FROM file_shares WHERE id = $1`, id))
}

func (r *grantRepoPG) Revoke(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return scanGrant(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE file_shares SET is_active = false, revoked_at = COALESCE(revoked_at, NOW())
		WHERE id = $1
		RETURNING `+grantCols, id))
}

func (r *grantRepoPG) RevokeBetween(ctx context.Context, a, b uuid.UUID) (int, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE file_shares SET is_active = false, revoked_at = NOW()
		WHERE is_active
			AND ((owner_id = $1 AND shared_with_id = $2) OR (owner_id = $2 AND shared_with_id = $1))`, a, b)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *grantRepoPG) List(ctx context.Context, userID uuid.UUID, dir Direction, effectiveAt *time.Time, limit, offset int) ([]*Grant, int, error) {
	q := db.Conn(ctx, r.pool)
	col := "owner_id"
	if dir == DirectionReceived {
		col = "shared_with_id"
	}
	where := ` WHERE ` + col + ` = $1`
	args := []interface{}{userID}
	if effectiveAt != nil {
		args = append(args, *effectiveAt)
		where += ` AND is_active AND (expires_at IS NULL OR expires_at > $2)`
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM file_shares`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+grantCols+` FROM file_shares`+where+
		` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, g)
	}
	return items, total, rows.Err()
}

// =========== Resource Repository ===========

type resourceRepoPG struct{ pool *pgxpool.Pool }

func NewResourceRepoPG(pool *pgxpool.Pool) ResourceRepository { return &resourceRepoPG{pool: pool} }

var resourceTables = map[ResourceType]string{
	ResourceFile:   "medical_files",
	ResourceFolder: "folders",
}

func (r *resourceRepoPG) OwnerOf(ctx context.Context, typ ResourceType, id uuid.UUID) (uuid.UUID, error) {
	table, ok := resourceTables[typ]
	if !ok {
		return uuid.Nil, ErrResourceNotFound
	}
	var owner uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT owner_id FROM `+table+` WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrResourceNotFound
	}
	return owner, err
}
