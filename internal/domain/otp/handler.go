package otp

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
)

// Response is the envelope of every function response.
type Response struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const allowHeaders = "authorization, x-client-info, apikey, content-type"

type Handler struct {
	svc     *Service
	origins []string
}

// NewHandler serves the functions. An empty origins list allows any origin.
func NewHandler(svc *Service, origins []string) *Handler {
	return &Handler{svc: svc, origins: origins}
}

// RegisterRoutes mounts the functions on g. sendAuth, when set, guards
// send-otp; the other two functions are public. limit is applied after the
// CORS headers are written so rejected requests still carry them.
func (h *Handler) RegisterRoutes(g *echo.Group, limit, sendAuth echo.MiddlewareFunc) {
	g.Use(h.CORS)
	if limit != nil {
		g.Use(limit)
	}
	g.Any("/issue-otp", h.postOnly(h.IssueOTP))
	if sendAuth != nil {
		g.Any("/send-otp", h.postOnly(h.SendOTP), sendAuth)
	} else {
		g.Any("/send-otp", h.postOnly(h.SendOTP))
	}
	g.Any("/verify-otp", h.postOnly(h.VerifyOTP))
}

func (h *Handler) allowOrigin(origin string) string {
	if len(h.origins) == 0 {
		return "*"
	}
	for _, o := range h.origins {
		o = strings.TrimSpace(o)
		if o == "*" || strings.EqualFold(o, origin) {
			if o == "*" {
				return "*"
			}
			return origin
		}
	}
	return strings.TrimSpace(h.origins[0])
}

// CORS writes the CORS headers on every response of the group.
func (h *Handler) CORS(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		hdr := c.Response().Header()
		hdr.Set(echo.HeaderAccessControlAllowOrigin, h.allowOrigin(c.Request().Header.Get(echo.HeaderOrigin)))
		hdr.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)
		hdr.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		hdr.Add(echo.HeaderVary, echo.HeaderOrigin)
		return next(c)
	}
}

func (h *Handler) postOnly(fn echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.Request().Method {
		case http.MethodOptions:
			return c.NoContent(http.StatusOK)
		case http.MethodPost:
			return fn(c)
		}
		c.Response().Header().Set(echo.HeaderAllow, "POST, OPTIONS")
		return c.JSON(http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
	}
}

// RateLimited is the rejection written by the functions' rate limiter.
func RateLimited(c echo.Context, _ int) error {
	return c.JSON(http.StatusTooManyRequests, Response{Error: "too many requests, try again later"})
}

func fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	body := Response{Error: "internal server error"}

	var ae *apperr.Error
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Error = ErrInvalidCredentials.Error()
	case errors.As(err, &ae) && ae.Kind == apperr.KindValidation:
		status = http.StatusBadRequest
		body.Error = ae.Message
		body.Code = ae.Code
	case errors.As(err, &ae) && ae.Kind == apperr.KindForbidden:
		status = http.StatusForbidden
		body.Error = ae.Message
		body.Code = ae.Code
	case errors.As(err, &ae) && ae.Kind == apperr.KindUpstream:
		body.Error = ae.Message
		body.Code = ae.Code
	}
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("otp function failed: %v", err)
	}
	return c.JSON(status, body)
}

func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("invalid_body", "request body could not be parsed")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	return nil
}

type issueRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) IssueOTP(c echo.Context) error {
	var req issueRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	issued, err := h.svc.IssueWithPassword(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "verification code sent", Data: issued})
}

type sendRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

var errNotSelf = apperr.Forbidden("not_self", "codes can only be requested for your own account")

func (h *Handler) SendOTP(c echo.Context) error {
	var req sendRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fail(c, apperr.Validation("invalid_user_id", "user_id must be a uuid"))
	}
	if actor, ok := auth.ActorFromContext(c.Request().Context()); ok && !actor.IsAdmin() && actor.ID != userID {
		return fail(c, errNotSelf)
	}
	issued, err := h.svc.IssueForUser(c.Request().Context(), userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "verification code sent", Data: issued})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

func (h *Handler) VerifyOTP(c echo.Context) error {
	var req verifyRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	v, err := h.svc.Verify(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, Response{Success: true, Message: "code verified", Data: v})
}
