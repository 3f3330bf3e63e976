package sharing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zyncure/zyncure/internal/domain/profile"
	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/clock"
	"github.com/zyncure/zyncure/internal/platform/db"
)

type Service struct {
	connections ConnectionRepository
	grants      GrantRepository
	resources   ResourceRepository
	profiles    profile.Repository
	tx          db.Transactor
	clock       clock.Clock
	logger      zerolog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(conns ConnectionRepository, grants GrantRepository, resources ResourceRepository,
	profiles profile.Repository, tx db.Transactor, opts ...Option) *Service {
	s := &Service{
		connections: conns,
		grants:      grants,
		resources:   resources,
		profiles:    profiles,
		tx:          tx,
		clock:       clock.New(),
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// -- Connections --

// ConnectionRequest names both sides of a new request.
type ConnectionRequest struct {
	RequesterID   uuid.UUID
	RequesterType PartyType
	TargetID      uuid.UUID
	TargetType    PartyType
}

// CreateConnectionRequest opens a pending request from requester to target.
func (s *Service) CreateConnectionRequest(ctx context.Context, actor auth.Actor, req ConnectionRequest) (*Connection, error) {
	if !actor.IsAdmin() && actor.ID != req.RequesterID {
		return nil, apperr.Forbidden("not_requester", "requests can only be sent as yourself")
	}
	if !req.RequesterType.Valid() || !req.TargetType.Valid() {
		return nil, apperr.Validation("invalid_party_type", "party types must be doctor or patient")
	}
	if req.RequesterType == req.TargetType {
		return nil, apperr.Validation("same_party_type", "connections link a doctor and a patient")
	}
	if req.RequesterID == req.TargetID {
		return nil, apperr.Validation("self_connection", "cannot connect to yourself")
	}
	target, err := s.profiles.GetByID(ctx, req.TargetID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, apperr.NotFound("target_not_found", "target account not found")
		}
		return nil, apperr.FromStore("get target", err)
	}
	if target.Role != string(req.TargetType) {
		return nil, apperr.Validation("target_type_mismatch", "target account is not a "+string(req.TargetType))
	}

	if _, err := s.connections.FindOpen(ctx, req.RequesterID, req.TargetID); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, ErrConnectionNotFound) {
		return nil, apperr.FromStore("find connection", err)
	}

	c := &Connection{
		RequesterID:   req.RequesterID,
		RequesterType: req.RequesterType,
		TargetID:      req.TargetID,
		TargetType:    req.TargetType,
		Status:        ConnectionPending,
	}
	if err := s.connections.Create(ctx, c); err != nil {
		return nil, apperr.FromStore("create connection", err)
	}
	return c, nil
}

// RespondToRequest lets the target accept or reject a pending request.
// Accepting does not create any grants.
func (s *Service) RespondToRequest(ctx context.Context, actor auth.Actor, id uuid.UUID, accept bool) (*Connection, error) {
	c, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("get connection", err)
	}
	if c.TargetID != actor.ID {
		return nil, ErrNotTarget
	}
	if c.Status != ConnectionPending {
		return nil, ErrNotPending
	}
	status := ConnectionRejected
	if accept {
		status = ConnectionAccepted
	}
	updated, ok, err := s.connections.Respond(ctx, id, status)
	if err != nil {
		return nil, apperr.FromStore("update connection", err)
	}
	if !ok {
		return nil, ErrNotPending
	}
	s.logger.Info().
		Str("connection_id", id.String()).
		Str("status", string(status)).
		Msg("connection request answered")
	return updated, nil
}

func (s *Service) ListConnections(ctx context.Context, actor auth.Actor, status *ConnectionStatus, limit, offset int) ([]*Connection, int, error) {
	items, total, err := s.connections.ListForUser(ctx, actor.ID, status, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore("list connections", err)
	}
	return items, total, nil
}

// ListIncomingRequests returns the pending requests waiting on actor.
func (s *Service) ListIncomingRequests(ctx context.Context, actor auth.Actor) ([]*Connection, error) {
	items, err := s.connections.ListIncoming(ctx, actor.ID)
	return items, apperr.FromStore("list incoming requests", err)
}

// PendingCount is the badge count of requests waiting on actor, computed
// from the store on every call.
func (s *Service) PendingCount(ctx context.Context, actor auth.Actor) (int, error) {
	n, err := s.connections.CountIncomingPending(ctx, actor.ID)
	return n, apperr.FromStore("count incoming requests", err)
}

// Disconnect removes an accepted connection and revokes every active grant
// between the two parties in one transaction. It returns the number of
// grants revoked.
func (s *Service) Disconnect(ctx context.Context, actor auth.Actor, id uuid.UUID) (int, error) {
	var revoked int
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.connections.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !c.Involves(actor.ID) {
			return ErrNotParty
		}
		if c.Status != ConnectionAccepted {
			return ErrNotAccepted
		}
		if err := s.connections.Delete(ctx, id); err != nil {
			return err
		}
		revoked, err = s.grants.RevokeBetween(ctx, c.RequesterID, c.TargetID)
		return err
	})
	if err != nil {
		return 0, apperr.FromStore("disconnect", err)
	}
	s.logger.Info().
		Str("connection_id", id.String()).
		Int("grants_revoked", revoked).
		Msg("connection removed")
	return revoked, nil
}

// -- Grants --

// GrantRequest describes a new share from the acting owner.
type GrantRequest struct {
	SharedWithID uuid.UUID
	ResourceType ResourceType
	ResourceID   uuid.UUID
	Duration     DurationSpec
	// Location is the owner's IANA zone; empty means UTC.
	Location string
}

// CreateShareGrant shares one of actor's resources with a connected party.
func (s *Service) CreateShareGrant(ctx context.Context, actor auth.Actor, req GrantRequest) (*Grant, error) {
	if !req.ResourceType.Valid() {
		return nil, apperr.Validation("invalid_resource_type", "resource_type must be file or folder")
	}
	if req.SharedWithID == actor.ID {
		return nil, apperr.Validation("self_share", "cannot share with yourself")
	}
	loc := time.UTC
	if req.Location != "" {
		l, err := time.LoadLocation(req.Location)
		if err != nil {
			return nil, apperr.Validation("invalid_timezone", "unknown time zone "+req.Location)
		}
		loc = l
	}
	now := s.clock.Now()
	expiresAt, err := req.Duration.ExpiresAt(now, loc)
	if err != nil {
		return nil, err
	}

	conn, err := s.connections.FindOpen(ctx, actor.ID, req.SharedWithID)
	if errors.Is(err, ErrConnectionNotFound) || (err == nil && conn.Status != ConnectionAccepted) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, apperr.FromStore("find connection", err)
	}

	owner, err := s.resources.OwnerOf(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		return nil, apperr.FromStore("get resource", err)
	}
	if owner != actor.ID {
		return nil, ErrNotOwner
	}

	g := &Grant{
		OwnerID:      actor.ID,
		SharedWithID: req.SharedWithID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		ExpiresAt:    expiresAt,
		IsActive:     true,
	}
	if err := s.grants.Create(ctx, g); err != nil {
		return nil, apperr.FromStore("create grant", err)
	}
	return g, nil
}

// RevokeShareGrant deactivates a grant. Revoking an inactive grant is a no-op.
func (s *Service) RevokeShareGrant(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Grant, error) {
	g, err := s.grants.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("get grant", err)
	}
	if g.OwnerID != actor.ID && !actor.IsAdmin() {
		return nil, ErrNotOwner
	}
	if !g.IsActive {
		return g, nil
	}
	g, err = s.grants.Revoke(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("revoke grant", err)
	}
	return g, nil
}

// ListGrants returns actor's owned or received grants.
func (s *Service) ListGrants(ctx context.Context, actor auth.Actor, dir Direction, effectiveOnly bool, limit, offset int) ([]GrantView, int, error) {
	if dir != DirectionOwned && dir != DirectionReceived {
		return nil, 0, apperr.Validation("invalid_direction", "direction must be owned or received")
	}
	now := s.clock.Now()
	var at *time.Time
	if effectiveOnly {
		at = &now
	}
	items, total, err := s.grants.List(ctx, actor.ID, dir, at, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore("list grants", err)
	}
	views := make([]GrantView, len(items))
	for i, g := range items {
		views[i] = GrantView{Grant: g, Effective: IsGrantEffective(g, now)}
	}
	return views, total, nil
}
