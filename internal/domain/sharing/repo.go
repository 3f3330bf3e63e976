package sharing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ConnectionRepository interface {
	// Create inserts a pending request. It returns ErrDuplicateRequest when a
	// pending or accepted row exists for the same unordered pair.
	Create(ctx context.Context, c *Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Connection, error)
	// FindOpen returns the pending or accepted connection between a and b in
	// either direction, or ErrConnectionNotFound.
	FindOpen(ctx context.Context, a, b uuid.UUID) (*Connection, error)
	// Respond moves a pending request to status. ok is false when the row is
	// missing or no longer pending.
	Respond(ctx context.Context, id uuid.UUID, status ConnectionStatus) (c *Connection, ok bool, err error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID, status *ConnectionStatus, limit, offset int) ([]*Connection, int, error)
	ListIncoming(ctx context.Context, userID uuid.UUID) ([]*Connection, error)
	CountIncomingPending(ctx context.Context, userID uuid.UUID) (int, error)
}

type GrantRepository interface {
	Create(ctx context.Context, g *Grant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Grant, error)
	// Revoke deactivates the grant, keeping the first revocation time.
	Revoke(ctx context.Context, id uuid.UUID) (*Grant, error)
	// RevokeBetween deactivates every active grant either party gave the other.
	RevokeBetween(ctx context.Context, a, b uuid.UUID) (int, error)
	// List returns the grants on userID's side. When effectiveAt is set only
	// grants effective at that instant are returned.
	List(ctx context.Context, userID uuid.UUID, dir Direction, effectiveAt *time.Time, limit, offset int) ([]*Grant, int, error)
}

// ResourceRepository resolves the owner of a shareable resource.
type ResourceRepository interface {
	OwnerOf(ctx context.Context, typ ResourceType, id uuid.UUID) (uuid.UUID, error)
}
