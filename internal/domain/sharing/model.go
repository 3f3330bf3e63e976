// Package sharing manages patient–doctor connections and the time-bounded
// grants that let one party read the other's files and folders.
package sharing

import (
	"time"

	"github.com/google/uuid"
)

// PartyType is the kind of account on one side of a connection.
type PartyType string

const (
	PartyDoctor  PartyType = "doctor"
	PartyPatient PartyType = "patient"
)

func (p PartyType) Valid() bool { return p == PartyDoctor || p == PartyPatient }

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

func (s ConnectionStatus) Valid() bool {
	return s == ConnectionPending || s == ConnectionAccepted || s == ConnectionRejected
}

// Connection is a directional request that becomes a two-way link once the
// target accepts it.
type Connection struct {
	ID            uuid.UUID        `json:"id"`
	RequesterID   uuid.UUID        `json:"requester_id"`
	RequesterType PartyType        `json:"requester_type"`
	TargetID      uuid.UUID        `json:"target_id"`
	TargetType    PartyType        `json:"target_type"`
	Status        ConnectionStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	RespondedAt   *time.Time       `json:"responded_at,omitempty"`
}

// Involves reports whether id is either party.
func (c *Connection) Involves(id uuid.UUID) bool {
	return c.RequesterID == id || c.TargetID == id
}

// Other returns the party that is not id.
func (c *Connection) Other(id uuid.UUID) uuid.UUID {
	if c.RequesterID == id {
		return c.TargetID
	}
	return c.RequesterID
}

type ResourceType string

const (
	ResourceFile   ResourceType = "file"
	ResourceFolder ResourceType = "folder"
)

func (r ResourceType) Valid() bool { return r == ResourceFile || r == ResourceFolder }

// Grant lets SharedWithID read one of OwnerID's resources until it expires
// or is revoked. Revoked grants are kept for audit.
type Grant struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	SharedWithID uuid.UUID    `json:"shared_with_id"`
	ResourceType ResourceType `json:"resource_type"`
	ResourceID   uuid.UUID    `json:"resource_id"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
}

// IsGrantEffective reports whether g grants access at now.
func IsGrantEffective(g *Grant, now time.Time) bool {
	return g.IsActive && (g.ExpiresAt == nil || g.ExpiresAt.After(now))
}

// GrantView is a grant as returned to clients, with its effectiveness at the
// time of the read.
type GrantView struct {
	*Grant
	Effective bool `json:"effective"`
}

// Direction selects grants by the actor's side.
type Direction string

const (
	DirectionOwned    Direction = "owned"
	DirectionReceived Direction = "received"
)
