package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zyncure/zyncure/internal/domain/profile"
	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/clock"
	"github.com/zyncure/zyncure/internal/platform/notification"
)

// MaxAgendaDays bounds the range of a single agenda query.
const MaxAgendaDays = 62

// defaultAgendaLimit caps the appointments listed per agenda. Counters are
// always exact.
const defaultAgendaLimit = 1000

// Notifier delivers best-effort emails. Failures are handled by the
// implementation and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, templateID, recipient string, data map[string]string)
}

type Service struct {
	templates    TemplateRepository
	exceptions   ExceptionRepository
	appointments AppointmentRepository
	profiles     profile.Repository
	notifier     Notifier
	clock        clock.Clock
	loc          *time.Location
	logger       zerolog.Logger
	agendaLimit  int
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

// WithLocation sets the zone appointment dates and times are read in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(tmpl TemplateRepository, exc ExceptionRepository, appt AppointmentRepository, profiles profile.Repository, opts ...Option) *Service {
	s := &Service{
		templates:    tmpl,
		exceptions:   exc,
		appointments: appt,
		profiles:     profiles,
		clock:        clock.New(),
		loc:          time.UTC,
		logger:       zerolog.Nop(),
		agendaLimit:  defaultAgendaLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current date in the clinic zone.
func (s *Service) Today() Date { return DateOf(s.clock.Now().In(s.loc)) }

func canManage(actor auth.Actor, doctorID uuid.UUID) bool {
	return actor.IsAdmin() || (actor.IsDoctor() && actor.ID == doctorID)
}

// -- Templates --

func (s *Service) ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]*Template, error) {
	items, err := s.templates.ListByDoctor(ctx, doctorID)
	return items, apperr.FromStore("list templates", err)
}

func (s *Service) CreateTemplate(ctx context.Context, actor auth.Actor, t *Template) error {
	if !canManage(actor, t.DoctorID) {
		return ErrNotOwner
	}
	existing, err := s.templates.ListByDoctor(ctx, t.DoctorID)
	if err != nil {
		return apperr.FromStore("list templates", err)
	}
	t.ID = uuid.Nil
	if err := ValidateTemplate(t, existing); err != nil {
		return err
	}
	return apperr.FromStore("create template", s.templates.Create(ctx, t))
}

// TemplatePatch carries the fields of an update. Nil fields keep their value.
type TemplatePatch struct {
	DayOfWeek    *time.Weekday
	StartTime    *ClockTime
	EndTime      *ClockTime
	SlotDuration *int
	IsActive     *bool
}

func (s *Service) UpdateTemplate(ctx context.Context, actor auth.Actor, id uuid.UUID, p TemplatePatch) (*Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("get template", err)
	}
	if !canManage(actor, t.DoctorID) {
		return nil, ErrNotOwner
	}
	if p.DayOfWeek != nil {
		t.DayOfWeek = *p.DayOfWeek
	}
	if p.StartTime != nil {
		t.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		t.EndTime = *p.EndTime
	}
	if p.SlotDuration != nil {
		t.SlotDuration = *p.SlotDuration
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}

	existing, err := s.templates.ListByDoctor(ctx, t.DoctorID)
	if err != nil {
		return nil, apperr.FromStore("list templates", err)
	}
	if err := ValidateTemplate(t, existing); err != nil {
		return nil, err
	}
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, apperr.FromStore("update template", err)
	}
	return t, nil
}

func (s *Service) DeleteTemplate(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return apperr.FromStore("get template", err)
	}
	if !canManage(actor, t.DoctorID) {
		return ErrNotOwner
	}
	return apperr.FromStore("delete template", s.templates.Delete(ctx, id))
}

// -- Exceptions --

func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to *Date) ([]*Exception, error) {
	items, err := s.exceptions.ListByDoctor(ctx, doctorID, from, to)
	return items, apperr.FromStore("list unavailable dates", err)
}

func (s *Service) AddException(ctx context.Context, actor auth.Actor, e *Exception) error {
	if !canManage(actor, e.DoctorID) {
		return ErrNotOwner
	}
	if err := ValidateException(e); err != nil {
		return err
	}
	return apperr.FromStore("create unavailable date", s.exceptions.Create(ctx, e))
}

func (s *Service) DeleteException(ctx context.Context, actor auth.Actor, id uuid.UUID) error {
	e, err := s.exceptions.GetByID(ctx, id)
	if err != nil {
		return apperr.FromStore("get unavailable date", err)
	}
	if !canManage(actor, e.DoctorID) {
		return ErrNotOwner
	}
	return apperr.FromStore("delete unavailable date", s.exceptions.Delete(ctx, id))
}

// -- Slots --

// DeriveBookableSlots returns the free slots of doctorID on date.
func (s *Service) DeriveBookableSlots(ctx context.Context, doctorID uuid.UUID, date Date) ([]TimeSlot, error) {
	templates, err := s.templates.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperr.FromStore("list templates", err)
	}
	exceptions, err := s.exceptions.ListByDoctor(ctx, doctorID, &date, &date)
	if err != nil {
		return nil, apperr.FromStore("list unavailable dates", err)
	}
	booked, err := s.appointments.ListOccupying(ctx, doctorID, date)
	if err != nil {
		return nil, apperr.FromStore("list appointments", err)
	}
	return DeriveSlots(date, templates, exceptions, booked), nil
}

// -- Appointments --

// BookingRequest is a patient's request for one slot.
type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Date      Date
	Time      ClockTime
	Reason    *string
}

// RequestAppointment books the slot starting at req.Time if it is currently
// bookable. Concurrent bookings of the same slot are settled by the store.
func (s *Service) RequestAppointment(ctx context.Context, actor auth.Actor, req BookingRequest) (*Appointment, error) {
	if !actor.IsAdmin() && actor.ID != req.PatientID {
		return nil, apperr.Forbidden("not_patient", "appointments can only be requested for yourself")
	}
	if req.DoctorID == req.PatientID {
		return nil, apperr.Validation("invalid_doctor", "doctor and patient must differ")
	}
	doc, err := s.profiles.GetByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return nil, apperr.NotFound("doctor_not_found", "doctor not found")
		}
		return nil, apperr.FromStore("get doctor", err)
	}
	if doc.Role != auth.RoleDoctor {
		return nil, apperr.NotFound("doctor_not_found", "doctor not found")
	}
	if !req.Date.At(req.Time, s.loc).After(s.clock.Now()) {
		return nil, apperr.Validation("slot_in_past", "appointment time must be in the future")
	}

	slots, err := s.DeriveBookableSlots(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}
	if _, ok := FindSlot(slots, req.Time); !ok {
		return nil, ErrSlotUnavailable
	}

	a := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      req.Date,
		Time:      req.Time,
		Status:    StatusRequested,
		Reason:    optionalText(req.Reason),
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, apperr.FromStore("create appointment", err)
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Str("date", a.Date.String()).
		Str("time", a.Time.String()).
		Msg("appointment requested")
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("get appointment", err)
	}
	if !actor.IsAdmin() && actor.ID != a.DoctorID && actor.ID != a.PatientID {
		return nil, apperr.Forbidden("not_participant", "not a participant of this appointment")
	}
	return a, nil
}

// optionalText returns nil for a missing or blank string.
func optionalText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// scope restricts f to the actor's own appointments unless the actor is an
// admin.
func scope(actor auth.Actor, f AppointmentFilter) AppointmentFilter {
	if actor.IsAdmin() {
		return f
	}
	id := actor.ID
	if actor.IsDoctor() {
		f.DoctorID = &id
	} else {
		f.PatientID = &id
	}
	return f
}

func (s *Service) ListAppointments(ctx context.Context, actor auth.Actor, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	items, total, err := s.appointments.List(ctx, scope(actor, f), limit, offset)
	if err != nil {
		return nil, 0, apperr.FromStore("list appointments", err)
	}
	return items, total, nil
}

// StatusCounts returns the number of the actor's appointments per status.
func (s *Service) StatusCounts(ctx context.Context, actor auth.Actor) (map[Status]int, error) {
	counts, err := s.appointments.CountByStatus(ctx, scope(actor, AppointmentFilter{}))
	if err != nil {
		return nil, apperr.FromStore("count appointments", err)
	}
	return counts, nil
}

// Agenda groups a doctor's appointments in [from, to] by day and status.
func (s *Service) Agenda(ctx context.Context, actor auth.Actor, doctorID uuid.UUID, from, to Date) (*Agenda, error) {
	if !canManage(actor, doctorID) {
		return nil, ErrNotOwner
	}
	if to.Before(from) {
		return nil, apperr.Validation("invalid_range", "to must not be before from")
	}
	if from.DaysUntil(to) >= MaxAgendaDays {
		return nil, apperr.Validation("invalid_range", fmt.Sprintf("range must not exceed %d days", MaxAgendaDays))
	}
	filter := AppointmentFilter{DoctorID: &doctorID, From: &from, To: &to}
	items, total, err := s.appointments.List(ctx, filter, s.agendaLimit, 0)
	if err != nil {
		return nil, apperr.FromStore("list appointments", err)
	}
	counts, err := s.appointments.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperr.FromStore("count appointments", err)
	}
	ag := &Agenda{
		From:      from,
		To:        to,
		ByDay:     make(map[string][]*Appointment),
		ByStatus:  counts,
		Total:     total,
		Truncated: total > len(items),
	}
	for _, a := range items {
		day := a.Date.String()
		ag.ByDay[day] = append(ag.ByDay[day], a)
	}
	return ag, nil
}

func (s *Service) Confirm(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionConfirm, nil)
}

func (s *Service) Cancel(ctx context.Context, actor auth.Actor, id uuid.UUID, reason *string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionCancel, reason)
}

// Reschedule marks a confirmed appointment rescheduled. The slot stays held
// until the appointment is cancelled; the patient books a new slot separately.
func (s *Service) Reschedule(ctx context.Context, actor auth.Actor, id uuid.UUID, reason *string) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionReschedule, reason)
}

func (s *Service) Complete(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, actor, id, ActionComplete, nil)
}

func (s *Service) transition(ctx context.Context, actor auth.Actor, id uuid.UUID, action Action, reason *string) (*Appointment, error) {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.FromStore("get appointment", err)
	}
	if !canManage(actor, current.DoctorID) {
		return nil, ErrNotOwner
	}
	if !CanTransition(current.Status, action) {
		return nil, transitionError(current.Status, action)
	}

	tr := transitions[action]
	updated, ok, err := s.appointments.Transition(ctx, id, fromStates(action), tr.to, reason)
	if err != nil {
		return nil, apperr.FromStore("update appointment", err)
	}
	if !ok {
		// Lost a race with another update; report against the fresh state.
		latest, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return nil, apperr.FromStore("get appointment", err)
		}
		return nil, transitionError(latest.Status, action)
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(current.Status)).
		Str("to", string(updated.Status)).
		Str("actor_id", actor.ID.String()).
		Msg("appointment status changed")
	s.notify(ctx, updated, action)
	return updated, nil
}

var actionTemplates = map[Action]string{
	ActionConfirm:    notification.TemplateAppointmentConfirmed,
	ActionCancel:     notification.TemplateAppointmentCancelled,
	ActionReschedule: notification.TemplateAppointmentRescheduled,
}

func (s *Service) notify(ctx context.Context, a *Appointment, action Action) {
	templateID, ok := actionTemplates[action]
	if !ok || s.notifier == nil {
		return
	}
	patient, err := s.profiles.GetByID(ctx, a.PatientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skip notification: patient lookup failed")
		return
	}
	doctorName := "your doctor"
	if doc, err := s.profiles.GetByID(ctx, a.DoctorID); err == nil {
		doctorName = doc.FullName()
	}
	reason := "not given"
	switch {
	case a.Status == StatusCancelled && a.CancellationReason != nil:
		reason = *a.CancellationReason
	case a.Status == StatusRescheduled && a.RescheduleReason != nil:
		reason = *a.RescheduleReason
	}
	s.notifier.Notify(ctx, templateID, patient.Email, map[string]string{
		"patient_name": patient.FullName(),
		"doctor_name":  doctorName,
		"date":         a.Date.String(),
		"time":         a.Time.String(),
		"reason":       reason,
	})
}
