package credential

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctor.POST("/doctors/me/license", h.Upload)
	doctor.GET("/doctors/me/license", h.GetOwn)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/doctors/:id/verification", h.Get)
	admin.POST("/doctors/:id/verification", h.Verify)
	admin.GET("/doctors/:id/license", h.LicenseURL)
}

func idParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Upload(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("file_required", "multipart field \"file\" is required"))
	}
	src, err := file.Open()
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid_upload", "uploaded file could not be read"))
	}
	defer src.Close()

	l, err := h.svc.UploadLicense(c.Request().Context(), actor, src)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *Handler) GetOwn(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLicense(c.Request().Context(), actor, actor.ID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	l, err := h.svc.GetLicense(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, l)
}

type verifyRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=approve reject"`
	Note     string   `json:"note" validate:"max=1000"`
}

func (h *Handler) Verify(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return apperr.ToHTTP(apperr.Validation("invalid_body", "request body could not be parsed"))
	}
	if err := c.Validate(&req); err != nil {
		return apperr.ToHTTP(err)
	}
	l, err := h.svc.Verify(c.Request().Context(), actor, id, req.Decision, req.Note)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *Handler) LicenseURL(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	signed, err := h.svc.SignedURL(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, signed)
}
