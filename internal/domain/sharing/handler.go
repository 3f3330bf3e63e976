package sharing

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	g.POST("/connections", h.CreateConnection)
	g.GET("/connections", h.ListConnections)
	g.GET("/connections/incoming", h.ListIncoming)
	g.GET("/connections/pending-count", h.PendingCount)
	g.POST("/connections/:id/respond", h.Respond)
	g.DELETE("/connections/:id", h.Disconnect)

	g.POST("/shares", h.CreateGrant)
	g.GET("/shares", h.ListGrants)
	g.POST("/shares/:id/revoke", h.RevokeGrant)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid_body", "request body could not be parsed"))
	}
	if err := c.Validate(req); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}

// -- Connections --

type connectionRequest struct {
	TargetID   uuid.UUID `json:"target_id" validate:"required"`
	TargetType PartyType `json:"target_type" validate:"omitempty,oneof=doctor patient"`
}

func (h *Handler) CreateConnection(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req connectionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	requesterType := PartyType(actor.Role)
	targetType := req.TargetType
	if targetType == "" {
		targetType = PartyDoctor
		if requesterType == PartyDoctor {
			targetType = PartyPatient
		}
	}
	conn, err := h.svc.CreateConnectionRequest(c.Request().Context(), actor, ConnectionRequest{
		RequesterID:   actor.ID,
		RequesterType: requesterType,
		TargetID:      req.TargetID,
		TargetType:    targetType,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, conn)
}

func (h *Handler) ListConnections(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	var status *ConnectionStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := ConnectionStatus(raw)
		if !st.Valid() {
			return apperr.ToHTTP(apperr.Validation("invalid_status", "unknown status "+raw))
		}
		status = &st
	}
	items, total, err := h.svc.ListConnections(c.Request().Context(), actor, status, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ListIncoming(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListIncomingRequests(c.Request().Context(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) PendingCount(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	n, err := h.svc.PendingCount(c.Request().Context(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"pending": n})
}

type respondRequest struct {
	Action string `json:"action" validate:"required,oneof=accept reject"`
}

func (h *Handler) Respond(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req respondRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	conn, err := h.svc.RespondToRequest(c.Request().Context(), actor, id, req.Action == "accept")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, conn)
}

func (h *Handler) Disconnect(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	revoked, err := h.svc.Disconnect(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]int{"grants_revoked": revoked})
}

// -- Grants --

type grantRequest struct {
	SharedWithID uuid.UUID    `json:"shared_with_id" validate:"required"`
	ResourceType ResourceType `json:"resource_type" validate:"required,oneof=file folder"`
	ResourceID   uuid.UUID    `json:"resource_id" validate:"required"`
	Duration     DurationSpec `json:"duration"`
	Timezone     string       `json:"timezone" validate:"omitempty,max=64"`
}

func (h *Handler) CreateGrant(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req grantRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	g, err := h.svc.CreateShareGrant(c.Request().Context(), actor, GrantRequest{
		SharedWithID: req.SharedWithID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Duration:     req.Duration,
		Location:     req.Timezone,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (h *Handler) ListGrants(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	dir := Direction(c.QueryParam("direction"))
	if dir == "" {
		dir = DirectionOwned
	}
	effectiveOnly, _ := strconv.ParseBool(c.QueryParam("effective"))
	items, total, err := h.svc.ListGrants(c.Request().Context(), actor, dir, effectiveOnly, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) RevokeGrant(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	g, err := h.svc.RevokeShareGrant(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, g)
}
