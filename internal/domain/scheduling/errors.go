package scheduling

import "github.com/zyncure/zyncure/internal/platform/apperr"

var (
	ErrTemplateNotFound    = apperr.NotFound("template_not_found", "availability template not found")
	ErrExceptionNotFound   = apperr.NotFound("exception_not_found", "unavailable date not found")
	ErrAppointmentNotFound = apperr.NotFound("appointment_not_found", "appointment not found")

	ErrTemplateOverlap   = apperr.Conflict("template_overlap", "template overlaps an active template on the same day")
	ErrSlotUnavailable   = apperr.Conflict("slot_unavailable", "the requested slot is not available")
	ErrInvalidTransition = apperr.InvalidTransition("invalid_transition", "appointment cannot move to that status")
	ErrAlreadyTerminal   = apperr.InvalidTransition("already_terminal", "appointment is already cancelled or completed")

	ErrNotOwner = apperr.Forbidden("not_owner", "only the owning doctor can change this resource")
)
