package scheduling

import (
	"context"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Template, error)
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *Exception) error
	GetByID(ctx context.Context, id uuid.UUID) (*Exception, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctor returns exceptions on dates in [from, to]; nil bounds are open.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to *Date) ([]*Exception, error)
}

type AppointmentRepository interface {
	// Create inserts a requested appointment. It returns ErrSlotUnavailable
	// when another non-cancelled appointment holds the same slot.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	ListOccupying(ctx context.Context, doctorID uuid.UUID, date Date) ([]*Appointment, error)
	CountByStatus(ctx context.Context, f AppointmentFilter) (map[Status]int, error)
	// Transition moves the appointment to `to` only if its current status is
	// one of from. ok is false when no row matched.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, reason *string) (a *Appointment, ok bool, err error)
}
