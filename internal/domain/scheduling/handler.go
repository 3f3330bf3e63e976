package scheduling

import (
	"net/http"
	"time"

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
	// Calendar reads – any signed-in role
	readGroup := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleDoctor))
	readGroup.GET("/doctors/:doctorId/templates", h.ListTemplates)
	readGroup.GET("/doctors/:doctorId/exceptions", h.ListExceptions)
	readGroup.GET("/doctors/:doctorId/slots", h.ListSlots)
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/counts", h.StatusCounts)
	readGroup.GET("/appointments/:id", h.GetAppointment)

	// Booking – patients
	patientGroup := api.Group("", auth.RequireRole(auth.RolePatient))
	patientGroup.POST("/appointments", h.RequestAppointment)

	// Availability and status management – doctors
	doctorGroup := api.Group("", auth.RequireRole(auth.RoleDoctor))
	doctorGroup.POST("/doctors/:doctorId/templates", h.CreateTemplate)
	doctorGroup.PUT("/templates/:id", h.UpdateTemplate)
	doctorGroup.DELETE("/templates/:id", h.DeleteTemplate)
	doctorGroup.POST("/doctors/:doctorId/exceptions", h.CreateException)
	doctorGroup.DELETE("/exceptions/:id", h.DeleteException)
	doctorGroup.GET("/appointments/agenda", h.Agenda)
	doctorGroup.POST("/appointments/:id/confirm", h.Confirm)
	doctorGroup.POST("/appointments/:id/cancel", h.Cancel)
	doctorGroup.POST("/appointments/:id/reschedule", h.Reschedule)
	doctorGroup.POST("/appointments/:id/complete", h.Complete)
}

// doctorParam resolves :doctorId, where "me" names the caller.
func doctorParam(c echo.Context, actor auth.Actor) (uuid.UUID, error) {
	raw := c.Param("doctorId")
	if raw == "me" {
		return actor.ID, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid doctor id")
	}
	return id, nil
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

func optionalDate(c echo.Context, name string) (*Date, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	d, err := ParseDate(raw)
	if err != nil {
		return nil, apperr.ToHTTP(apperr.Validation("invalid_date", err.Error()))
	}
	return &d, nil
}

// -- Templates --

type templateRequest struct {
	DayOfWeek    *int       `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime    *ClockTime `json:"start_time" validate:"required"`
	EndTime      *ClockTime `json:"end_time" validate:"required"`
	SlotDuration int        `json:"slot_duration_minutes" validate:"required,oneof=15 30 45 60"`
	IsActive     *bool      `json:"is_active"`
}

func (h *Handler) ListTemplates(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID, err := doctorParam(c, actor)
	if err != nil {
		return err
	}
	items, err := h.svc.ListTemplates(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID, err := doctorParam(c, actor)
	if err != nil {
		return err
	}
	var req templateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	t := &Template{
		DoctorID:     doctorID,
		DayOfWeek:    time.Weekday(*req.DayOfWeek),
		StartTime:    *req.StartTime,
		EndTime:      *req.EndTime,
		SlotDuration: req.SlotDuration,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.svc.CreateTemplate(c.Request().Context(), actor, t); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

type templatePatchRequest struct {
	DayOfWeek    *int       `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime    *ClockTime `json:"start_time"`
	EndTime      *ClockTime `json:"end_time"`
	SlotDuration *int       `json:"slot_duration_minutes" validate:"omitempty,oneof=15 30 45 60"`
	IsActive     *bool      `json:"is_active"`
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req templatePatchRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	patch := TemplatePatch{
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		SlotDuration: req.SlotDuration,
		IsActive:     req.IsActive,
	}
	if req.DayOfWeek != nil {
		d := time.Weekday(*req.DayOfWeek)
		patch.DayOfWeek = &d
	}
	t, err := h.svc.UpdateTemplate(c.Request().Context(), actor, id, patch)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTemplate(c.Request().Context(), actor, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Exceptions --

type exceptionRequest struct {
	UnavailableDate *Date      `json:"unavailable_date" validate:"required"`
	StartTime       *ClockTime `json:"start_time"`
	EndTime         *ClockTime `json:"end_time"`
	Reason          *string    `json:"reason" validate:"omitempty,max=500"`
}

func (h *Handler) ListExceptions(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID, err := doctorParam(c, actor)
	if err != nil {
		return err
	}
	from, err := optionalDate(c, "from")
	if err != nil {
		return err
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		return err
	}
	items, err := h.svc.ListExceptions(c.Request().Context(), doctorID, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) CreateException(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID, err := doctorParam(c, actor)
	if err != nil {
		return err
	}
	var req exceptionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	e := &Exception{
		DoctorID:        doctorID,
		UnavailableDate: *req.UnavailableDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Reason:          req.Reason,
	}
	if err := h.svc.AddException(c.Request().Context(), actor, e); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) DeleteException(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteException(c.Request().Context(), actor, id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Slots --

func (h *Handler) ListSlots(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID, err := doctorParam(c, actor)
	if err != nil {
		return err
	}
	date, err := optionalDate(c, "date")
	if err != nil {
		return err
	}
	if date == nil {
		return apperr.ToHTTP(apperr.Validation("invalid_date", "date is required"))
	}
	slots, err := h.svc.DeriveBookableSlots(c.Request().Context(), doctorID, *date)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Appointments --

type bookingRequest struct {
	DoctorID  uuid.UUID  `json:"doctor_id" validate:"required"`
	PatientID *uuid.UUID `json:"patient_id"`
	Date      *Date      `json:"date" validate:"required"`
	Time      *ClockTime `json:"time" validate:"required"`
	Reason    *string    `json:"reason" validate:"omitempty,max=1000"`
}

func (h *Handler) RequestAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	var req bookingRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	patientID := actor.ID
	if req.PatientID != nil {
		patientID = *req.PatientID
	}
	a, err := h.svc.RequestAppointment(c.Request().Context(), actor, BookingRequest{
		DoctorID:  req.DoctorID,
		PatientID: patientID,
		Date:      *req.Date,
		Time:      *req.Time,
		Reason:    req.Reason,
	})
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), actor, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var f AppointmentFilter
	if raw := c.QueryParam("status"); raw != "" {
		st, ok := ParseStatus(raw)
		if !ok {
			return apperr.ToHTTP(apperr.Validation("invalid_status", "unknown status "+raw))
		}
		f.Status = &st
	}
	for name, dst := range map[string]**uuid.UUID{"doctor_id": &f.DoctorID, "patient_id": &f.PatientID} {
		if raw := c.QueryParam(name); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
			}
			*dst = &id
		}
	}
	if f.From, err = optionalDate(c, "from"); err != nil {
		return err
	}
	if f.To, err = optionalDate(c, "to"); err != nil {
		return err
	}

	items, total, err := h.svc.ListAppointments(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) StatusCounts(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	counts, err := h.svc.StatusCounts(c.Request().Context(), actor)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) Agenda(c echo.Context) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	doctorID := actor.ID
	if raw := c.QueryParam("doctor_id"); raw != "" {
		if doctorID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor_id")
		}
	}
	from, err := optionalDate(c, "from")
	if err != nil {
		return err
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		return err
	}
	if from == nil {
		today := h.svc.Today()
		from = &today
	}
	if to == nil {
		end := from.AddDays(6)
		to = &end
	}
	ag, err := h.svc.Agenda(c.Request().Context(), actor, doctorID, *from, *to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ag)
}

type reasonRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=1000"`
}

func (h *Handler) Confirm(c echo.Context) error {
	return h.mutate(c, func(actor auth.Actor, id uuid.UUID, _ *string) (*Appointment, error) {
		return h.svc.Confirm(c.Request().Context(), actor, id)
	})
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.mutate(c, func(actor auth.Actor, id uuid.UUID, reason *string) (*Appointment, error) {
		return h.svc.Cancel(c.Request().Context(), actor, id, reason)
	})
}

func (h *Handler) Reschedule(c echo.Context) error {
	return h.mutate(c, func(actor auth.Actor, id uuid.UUID, reason *string) (*Appointment, error) {
		return h.svc.Reschedule(c.Request().Context(), actor, id, reason)
	})
}

func (h *Handler) Complete(c echo.Context) error {
	return h.mutate(c, func(actor auth.Actor, id uuid.UUID, _ *string) (*Appointment, error) {
		return h.svc.Complete(c.Request().Context(), actor, id)
	})
}

func (h *Handler) mutate(c echo.Context, fn func(auth.Actor, uuid.UUID, *string) (*Appointment, error)) error {
	actor, err := auth.RequireActor(c)
	if err != nil {
		return err
	}
	id, err := idParam(c)
	if err != nil {
		return err
	}
	var req reasonRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}
	a, err := fn(actor, id, req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
