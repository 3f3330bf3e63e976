package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zyncure/zyncure/internal/domain/profile"
	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/clock"
	"github.com/zyncure/zyncure/internal/platform/notification"
)

// -- Mock Repositories --

type mockTemplateRepo struct {
	store map[uuid.UUID]*Template
}

func newMockTemplateRepo() *mockTemplateRepo {
	return &mockTemplateRepo{store: make(map[uuid.UUID]*Template)}
}

func (m *mockTemplateRepo) Create(_ context.Context, t *Template) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *mockTemplateRepo) GetByID(_ context.Context, id uuid.UUID) (*Template, error) {
	t, ok := m.store[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTemplateRepo) Update(_ context.Context, t *Template) error {
	if _, ok := m.store[t.ID]; !ok {
		return ErrTemplateNotFound
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *mockTemplateRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockTemplateRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Template, error) {
	var r []*Template
	for _, t := range m.store {
		if t.DoctorID == doctorID {
			cp := *t
			r = append(r, &cp)
		}
	}
	return r, nil
}

type mockExceptionRepo struct {
	store map[uuid.UUID]*Exception
}

func newMockExceptionRepo() *mockExceptionRepo {
	return &mockExceptionRepo{store: make(map[uuid.UUID]*Exception)}
}

func (m *mockExceptionRepo) Create(_ context.Context, e *Exception) error {
	e.ID = uuid.New()
	m.store[e.ID] = e
	return nil
}

func (m *mockExceptionRepo) GetByID(_ context.Context, id uuid.UUID) (*Exception, error) {
	e, ok := m.store[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	return e, nil
}

func (m *mockExceptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *mockExceptionRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to *Date) ([]*Exception, error) {
	var r []*Exception
	for _, e := range m.store {
		if e.DoctorID != doctorID {
			continue
		}
		if from != nil && e.UnavailableDate.Before(*from) {
			continue
		}
		if to != nil && e.UnavailableDate.After(*to) {
			continue
		}
		r = append(r, e)
	}
	return r, nil
}

type mockAppointmentRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]*Appointment
	// beforeTransition runs once before the next Transition, to simulate a
	// concurrent writer.
	beforeTransition func()
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{store: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.store {
		if other.DoctorID == a.DoctorID && other.Date == a.Date && other.Time == a.Time && other.Status.Occupies() {
			return ErrSlotUnavailable
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	if s, ok := ParseStatus(string(cp.Status)); ok {
		cp.Status = s
	}
	return &cp, nil
}

func (m *mockAppointmentRepo) match(a *Appointment, f AppointmentFilter) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Status != nil {
		st, _ := ParseStatus(string(a.Status))
		if st != *f.Status {
			return false
		}
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	return true
}

func (m *mockAppointmentRepo) List(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r []*Appointment
	for _, a := range m.store {
		if m.match(a, f) {
			cp := *a
			r = append(r, &cp)
		}
	}
	sort.Slice(r, func(i, j int) bool {
		if r[i].Date != r[j].Date {
			return r[i].Date.Before(r[j].Date)
		}
		return r[i].Time < r[j].Time
	})
	total := len(r)
	if offset >= len(r) {
		return []*Appointment{}, total, nil
	}
	end := offset + limit
	if end > len(r) {
		end = len(r)
	}
	return r[offset:end], total, nil
}

func (m *mockAppointmentRepo) ListOccupying(_ context.Context, doctorID uuid.UUID, date Date) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r []*Appointment
	for _, a := range m.store {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Occupies() {
			cp := *a
			r = append(r, &cp)
		}
	}
	return r, nil
}

func (m *mockAppointmentRepo) CountByStatus(_ context.Context, f AppointmentFilter) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[Status]int)
	for _, a := range m.store {
		if m.match(a, f) {
			st, _ := ParseStatus(string(a.Status))
			counts[st]++
		}
	}
	return counts, nil
}

func (m *mockAppointmentRepo) Transition(_ context.Context, id uuid.UUID, from []Status, to Status, reason *string) (*Appointment, bool, error) {
	if hook := m.beforeTransition; hook != nil {
		m.beforeTransition = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.store[id]
	if !ok {
		return nil, false, nil
	}
	allowed := false
	for _, s := range from {
		if a.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, false, nil
	}
	a.Status = to
	switch to {
	case StatusCancelled:
		if reason != nil {
			a.CancellationReason = reason
		}
	case StatusRescheduled:
		if reason != nil {
			a.RescheduleReason = reason
		}
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, true, nil
}

// -- Fixtures --

type fixture struct {
	svc     *Service
	tmpl    *mockTemplateRepo
	exc     *mockExceptionRepo
	appts   *mockAppointmentRepo
	clock   *clock.Managed
	sender  *notification.MockEmailSender
	doctor  auth.Actor
	patient auth.Actor
	admin   auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tmpl:    newMockTemplateRepo(),
		exc:     newMockExceptionRepo(),
		appts:   newMockAppointmentRepo(),
		clock:   clock.NewManaged(time.Date(2030, time.June, 1, 8, 0, 0, 0, time.UTC)),
		sender:  &notification.MockEmailSender{},
		doctor:  auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor},
		patient: auth.Actor{ID: uuid.New(), Role: auth.RolePatient},
		admin:   auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin},
	}
	profiles := profile.NewMemoryRepo(
		&profile.Profile{ID: f.doctor.ID, Email: "doc@example.com", FirstName: "Lea", LastName: "Cruz", Role: auth.RoleDoctor},
		&profile.Profile{ID: f.patient.ID, Email: "pat@example.com", FirstName: "Ben", LastName: "Santos", Role: auth.RolePatient},
	)
	notifier := notification.NewNotifier(f.sender, notification.NewTemplateEngine(), zerolog.Nop())
	f.svc = NewService(f.tmpl, f.exc, f.appts, profiles,
		WithClock(f.clock), WithLocation(time.UTC), WithNotifier(notifier))
	return f
}

func (f *fixture) mondayMorning(t *testing.T) *Template {
	t.Helper()
	tmpl := &Template{DoctorID: f.doctor.ID, DayOfWeek: time.Monday, StartTime: ct("09:00"), EndTime: ct("10:00"), SlotDuration: 30, IsActive: true}
	if err := f.svc.CreateTemplate(context.Background(), f.doctor, tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	return tmpl
}

func (f *fixture) book(t *testing.T, at string) *Appointment {
	t.Helper()
	a, err := f.svc.RequestAppointment(context.Background(), f.patient, BookingRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday, Time: ct(at),
	})
	if err != nil {
		t.Fatalf("book %s: %v", at, err)
	}
	return a
}

// -- Template Tests --

func TestService_CreateTemplate_Overlap(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)

	err := f.svc.CreateTemplate(context.Background(), f.doctor, &Template{
		DoctorID: f.doctor.ID, DayOfWeek: time.Monday, StartTime: ct("09:30"), EndTime: ct("11:00"), SlotDuration: 30, IsActive: true,
	})
	if !errors.Is(err, ErrTemplateOverlap) {
		t.Errorf("expected ErrTemplateOverlap, got %v", err)
	}
}

func TestService_CreateTemplate_NotOwner(t *testing.T) {
	f := newFixture(t)
	other := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	err := f.svc.CreateTemplate(context.Background(), other, &Template{
		DoctorID: f.doctor.ID, DayOfWeek: time.Monday, StartTime: ct("09:00"), EndTime: ct("10:00"), SlotDuration: 30, IsActive: true,
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := f.svc.CreateTemplate(context.Background(), f.admin, &Template{
		DoctorID: f.doctor.ID, DayOfWeek: time.Monday, StartTime: ct("09:00"), EndTime: ct("10:00"), SlotDuration: 30, IsActive: true,
	}); err != nil {
		t.Errorf("expected admin to manage templates, got %v", err)
	}
}

func TestService_UpdateTemplate(t *testing.T) {
	f := newFixture(t)
	tmpl := f.mondayMorning(t)
	end := ct("11:00")
	updated, err := f.svc.UpdateTemplate(context.Background(), f.doctor, tmpl.ID, TemplatePatch{EndTime: &end})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.EndTime != end {
		t.Errorf("expected end 11:00, got %s", updated.EndTime)
	}

	start := ct("12:00")
	if _, err := f.svc.UpdateTemplate(context.Background(), f.doctor, tmpl.ID, TemplatePatch{StartTime: &start}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error for start after end, got %v", err)
	}
	if _, err := f.svc.UpdateTemplate(context.Background(), f.doctor, uuid.New(), TemplatePatch{}); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_DeleteTemplate(t *testing.T) {
	f := newFixture(t)
	tmpl := f.mondayMorning(t)
	if err := f.svc.DeleteTemplate(context.Background(), f.patient, tmpl.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner for patient, got %v", err)
	}
	if err := f.svc.DeleteTemplate(context.Background(), f.doctor, tmpl.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.tmpl.store) != 0 {
		t.Error("expected template to be deleted")
	}
}

// -- Slot Tests --

func TestService_BookingScenario(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()

	slots, err := f.svc.DeriveBookableSlots(ctx, f.doctor.ID, monday)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}

	a := f.book(t, "09:00")
	if a.Status != StatusRequested {
		t.Errorf("expected requested, got %s", a.Status)
	}

	slots, _ = f.svc.DeriveBookableSlots(ctx, f.doctor.ID, monday)
	if len(slots) != 1 || slots[0].Start != ct("09:30") || slots[0].End != ct("10:00") {
		t.Fatalf("expected only 09:30-10:00, got %v", slots)
	}

	_, err = f.svc.RequestAppointment(ctx, f.patient, BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday, Time: ct("09:00")})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable on double booking, got %v", err)
	}
}

func TestService_ExceptionBlocksBooking(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()

	e := &Exception{DoctorID: f.doctor.ID, UnavailableDate: monday}
	if err := f.svc.AddException(ctx, f.doctor, e); err != nil {
		t.Fatalf("add exception: %v", err)
	}
	slots, _ := f.svc.DeriveBookableSlots(ctx, f.doctor.ID, monday)
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %v", slots)
	}
	if _, err := f.svc.RequestAppointment(ctx, f.patient, BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday, Time: ct("09:00")}); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("expected ErrSlotUnavailable, got %v", err)
	}

	other := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	if err := f.svc.DeleteException(ctx, other, e.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if err := f.svc.DeleteException(ctx, f.doctor, e.ID); err != nil {
		t.Fatalf("delete exception: %v", err)
	}
	slots, _ = f.svc.DeriveBookableSlots(ctx, f.doctor.ID, monday)
	if len(slots) != 2 {
		t.Errorf("expected slots back after deleting exception, got %d", len(slots))
	}
}

func TestService_RequestAppointment_OptionalReason(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()
	blank, given := "   ", " follow-up "

	tests := []struct {
		name   string
		at     string
		reason *string
	}{
		{"no reason", "09:00", nil},
		{"blank reason", "09:30", &blank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := f.svc.RequestAppointment(ctx, f.patient, BookingRequest{
				DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday, Time: ct(tt.at), Reason: tt.reason,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if a.Reason != nil {
				t.Errorf("expected nil reason, got %q", *a.Reason)
			}
		})
	}

	a, err := f.svc.RequestAppointment(ctx, f.patient, BookingRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday.AddDays(7), Time: ct("09:00"), Reason: &given,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Reason == nil || *a.Reason != "follow-up" {
		t.Errorf("expected trimmed reason, got %v", a.Reason)
	}
}

func TestService_RequestAppointment_Validation(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Actor
		req   BookingRequest
		want  apperr.Kind
	}{
		{"off grid", f.patient, BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday, Time: ct("09:15")}, apperr.KindConflict},
		{"for someone else", f.patient, BookingRequest{DoctorID: f.doctor.ID, PatientID: uuid.New(), Date: monday, Time: ct("09:00")}, apperr.KindForbidden},
		{"unknown doctor", f.patient, BookingRequest{DoctorID: uuid.New(), PatientID: f.patient.ID, Date: monday, Time: ct("09:00")}, apperr.KindNotFound},
		{"patient as doctor", f.patient, BookingRequest{DoctorID: f.patient.ID, PatientID: f.patient.ID, Date: monday, Time: ct("09:00")}, apperr.KindValidation},
		{"in the past", f.patient, BookingRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, Date: monday.AddDays(-7), Time: ct("09:00")}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RequestAppointment(ctx, tt.actor, tt.req)
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("expected %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

// -- Lifecycle Tests --

func TestService_ConfirmTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	ctx := context.Background()

	confirmed, err := f.svc.Confirm(ctx, f.doctor, a.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if _, err := f.svc.Confirm(ctx, f.doctor, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestService_CancelLegality(t *testing.T) {
	ctx := context.Background()
	for _, start := range []Status{StatusRequested, StatusPending, StatusConfirmed} {
		t.Run(string(start), func(t *testing.T) {
			f := newFixture(t)
			f.mondayMorning(t)
			a := f.book(t, "09:00")
			f.appts.store[a.ID].Status = start

			reason := "doctor unavailable"
			cancelled, err := f.svc.Cancel(ctx, f.doctor, a.ID, &reason)
			if err != nil {
				t.Fatalf("cancel from %s: %v", start, err)
			}
			if cancelled.Status != StatusCancelled || cancelled.CancellationReason == nil || *cancelled.CancellationReason != reason {
				t.Errorf("unexpected result %+v", cancelled)
			}
		})
	}
	for _, start := range []Status{StatusCancelled, StatusCompleted} {
		t.Run(string(start), func(t *testing.T) {
			f := newFixture(t)
			f.mondayMorning(t)
			a := f.book(t, "09:00")
			f.appts.store[a.ID].Status = start

			if _, err := f.svc.Cancel(ctx, f.doctor, a.ID, nil); !errors.Is(err, ErrAlreadyTerminal) {
				t.Errorf("expected ErrAlreadyTerminal from %s, got %v", start, err)
			}
		})
	}
}

func TestService_CancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	if _, err := f.svc.Cancel(context.Background(), f.doctor, a.ID, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again := f.book(t, "09:00")
	if again.ID == a.ID {
		t.Error("expected a new appointment row")
	}
}

func TestService_RescheduleAndComplete(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()

	a := f.book(t, "09:00")
	if _, err := f.svc.Reschedule(ctx, f.doctor, a.ID, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected reschedule from requested to fail, got %v", err)
	}
	f.svc.Confirm(ctx, f.doctor, a.ID)
	reason := "conference"
	r, err := f.svc.Reschedule(ctx, f.doctor, a.ID, &reason)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if r.Status != StatusRescheduled || r.RescheduleReason == nil {
		t.Errorf("unexpected result %+v", r)
	}
	slots, _ := f.svc.DeriveBookableSlots(ctx, f.doctor.ID, monday)
	if len(slots) != 1 {
		t.Errorf("expected rescheduled appointment to keep its slot, got %v", slots)
	}
	if _, err := f.svc.Complete(ctx, f.doctor, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected complete from rescheduled to fail, got %v", err)
	}

	b := f.book(t, "09:30")
	f.svc.Confirm(ctx, f.doctor, b.ID)
	done, err := f.svc.Complete(ctx, f.doctor, b.ID)
	if err != nil || done.Status != StatusCompleted {
		t.Fatalf("complete: %v %+v", err, done)
	}
}

func TestService_TransitionRequiresDoctor(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	if _, err := f.svc.Confirm(context.Background(), f.patient, a.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if _, err := f.svc.Confirm(context.Background(), f.doctor, uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_TransitionLostRace(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	f.appts.beforeTransition = func() {
		f.appts.store[a.ID].Status = StatusCancelled
	}
	if _, err := f.svc.Confirm(context.Background(), f.doctor, a.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition after concurrent cancel, got %v", err)
	}
}

func TestService_NotifiesPatient(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	ctx := context.Background()

	f.svc.Confirm(ctx, f.doctor, a.ID)
	reason := "emergency"
	f.svc.Cancel(ctx, f.doctor, a.ID, &reason)

	calls := f.sender.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(calls))
	}
	if calls[0].To != "pat@example.com" {
		t.Errorf("expected email to patient, got %s", calls[0].To)
	}
	if calls[1].Subject != "Your appointment on 2030-06-03 was cancelled" {
		t.Errorf("unexpected subject %q", calls[1].Subject)
	}
}

func TestService_NotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	f.sender.ShouldFail = true
	f.sender.FailError = "provider down"

	confirmed, err := f.svc.Confirm(context.Background(), f.doctor, a.ID)
	if err != nil {
		t.Fatalf("expected confirm to succeed, got %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
}

// -- Read Tests --

func TestService_GetAppointment_Participants(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	a := f.book(t, "09:00")
	ctx := context.Background()

	for _, actor := range []auth.Actor{f.doctor, f.patient, f.admin} {
		if _, err := f.svc.GetAppointment(ctx, actor, a.ID); err != nil {
			t.Errorf("%s: unexpected error %v", actor.Role, err)
		}
	}
	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	if _, err := f.svc.GetAppointment(ctx, stranger, a.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestService_ListAppointments_ScopedToActor(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	f.book(t, "09:00")
	ctx := context.Background()

	stranger := auth.Actor{ID: uuid.New(), Role: auth.RolePatient}
	items, total, err := f.svc.ListAppointments(ctx, stranger, AppointmentFilter{DoctorID: &f.doctor.ID}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected stranger to see nothing, got %d", total)
	}

	_, total, _ = f.svc.ListAppointments(ctx, f.patient, AppointmentFilter{}, 20, 0)
	if total != 1 {
		t.Errorf("expected patient to see 1, got %d", total)
	}

	pending := StatusRequested
	_, total, _ = f.svc.ListAppointments(ctx, f.admin, AppointmentFilter{Status: &pending}, 20, 0)
	if total != 1 {
		t.Errorf("expected admin to see 1 requested, got %d", total)
	}
}

func TestService_StatusCountsAndAgenda(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()
	a := f.book(t, "09:00")
	f.book(t, "09:30")
	f.svc.Confirm(ctx, f.doctor, a.ID)

	counts, err := f.svc.StatusCounts(ctx, f.doctor)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[StatusConfirmed] != 1 || counts[StatusRequested] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	ag, err := f.svc.Agenda(ctx, f.doctor, f.doctor.ID, monday, monday.AddDays(6))
	if err != nil {
		t.Fatalf("agenda: %v", err)
	}
	if ag.Total != 2 || len(ag.ByDay["2030-06-03"]) != 2 || ag.ByStatus[StatusConfirmed] != 1 {
		t.Errorf("unexpected agenda %+v", ag)
	}

	if _, err := f.svc.Agenda(ctx, f.doctor, f.doctor.ID, monday, monday.AddDays(MaxAgendaDays)); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected range validation error, got %v", err)
	}
	if _, err := f.svc.Agenda(ctx, f.patient, f.doctor.ID, monday, monday); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner for patient, got %v", err)
	}
}

func TestService_AgendaCountsBeyondLimit(t *testing.T) {
	f := newFixture(t)
	f.mondayMorning(t)
	ctx := context.Background()
	a := f.book(t, "09:00")
	f.book(t, "09:30")
	f.svc.Confirm(ctx, f.doctor, a.ID)
	f.svc.agendaLimit = 1

	ag, err := f.svc.Agenda(ctx, f.doctor, f.doctor.ID, monday, monday)
	if err != nil {
		t.Fatalf("agenda: %v", err)
	}
	if len(ag.ByDay["2030-06-03"]) != 1 {
		t.Errorf("expected one listed appointment, got %d", len(ag.ByDay["2030-06-03"]))
	}
	if ag.Total != 2 || !ag.Truncated {
		t.Errorf("expected total 2 and truncated, got %d %v", ag.Total, ag.Truncated)
	}
	if ag.ByStatus[StatusConfirmed] != 1 || ag.ByStatus[StatusRequested] != 1 {
		t.Errorf("expected exact status counts, got %v", ag.ByStatus)
	}
}
