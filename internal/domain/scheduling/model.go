package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Allowed slot lengths in minutes.
var SlotDurations = []int{15, 30, 45, 60}

// Template is a doctor's recurring weekly availability window.
type Template struct {
	ID           uuid.UUID    `json:"id"`
	DoctorID     uuid.UUID    `json:"doctor_id"`
	DayOfWeek    time.Weekday `json:"day_of_week"`
	StartTime    ClockTime    `json:"start_time"`
	EndTime      ClockTime    `json:"end_time"`
	SlotDuration int          `json:"slot_duration_minutes"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Exception blocks a date, or a window of it when both bounds are set.
type Exception struct {
	ID              uuid.UUID  `json:"id"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	UnavailableDate Date       `json:"unavailable_date"`
	StartTime       *ClockTime `json:"start_time,omitempty"`
	EndTime         *ClockTime `json:"end_time,omitempty"`
	Reason          *string    `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// WholeDay reports whether the exception blocks the entire date.
func (e *Exception) WholeDay() bool {
	return e.StartTime == nil || e.EndTime == nil
}

// Status is an appointment lifecycle state.
type Status string

const (
	StatusRequested   Status = "requested"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"

	// StatusPending is the legacy spelling of StatusRequested. It is accepted
	// on input and never written.
	StatusPending Status = "pending"
)

// ParseStatus normalizes s, folding the legacy alias into requested.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusRequested:
		return StatusRequested, true
	case StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return st, true
	}
	return "", false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Occupies reports whether an appointment in this state holds its slot.
func (s Status) Occupies() bool { return s != StatusCancelled }

// Appointment is a patient's booking of one slot with a doctor.
type Appointment struct {
	ID                 uuid.UUID `json:"id"`
	DoctorID           uuid.UUID `json:"doctor_id"`
	PatientID          uuid.UUID `json:"patient_id"`
	Date               Date      `json:"date"`
	Time               ClockTime `json:"time"`
	Status             Status    `json:"status"`
	Reason             *string   `json:"reason,omitempty"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
	RescheduleReason   *string   `json:"reschedule_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// StartsAt returns the appointment start instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return a.Date.At(a.Time, loc)
}

// TimeSlot is a bookable window on a date.
type TimeSlot struct {
	Date  Date      `json:"date"`
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (s TimeSlot) Minutes() int { return int(s.End - s.Start) }

// Contains reports whether t falls in [Start, End).
func (s TimeSlot) Contains(t ClockTime) bool { return s.Start <= t && t < s.End }

// Overlaps reports half-open intersection with [start, end).
func (s TimeSlot) Overlaps(start, end ClockTime) bool { return s.Start < end && start < s.End }

// AppointmentFilter narrows ListAppointments. Zero fields are ignored.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *Status
	From      *Date
	To        *Date
}

// Agenda groups a doctor's appointments for calendar views. Truncated is set
// when ByDay holds fewer appointments than Total.
type Agenda struct {
	From      Date                      `json:"from"`
	To        Date                      `json:"to"`
	ByDay     map[string][]*Appointment `json:"by_day"`
	ByStatus  map[Status]int            `json:"by_status"`
	Total     int                       `json:"total"`
	Truncated bool                      `json:"truncated"`
}
