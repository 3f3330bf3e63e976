// Package credential handles doctor licence uploads and their review by an
// administrator.
package credential

import (
	"time"

	"github.com/google/uuid"

	"github.com/zyncure/zyncure/internal/platform/apperr"
)

type Status string

const (
	StatusNone          Status = "none"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Status() Status {
	if d == DecisionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// License is the verification state of one doctor.
type License struct {
	DoctorID    uuid.UUID  `json:"doctor_id"`
	Path        *string    `json:"license_path,omitempty"`
	ContentType *string    `json:"content_type,omitempty"`
	Status      Status     `json:"status"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
	ReviewNote  *string    `json:"review_note,omitempty"`
	ReviewedBy  *uuid.UUID `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

// Review is an administrator's decision on a pending licence.
type Review struct {
	Decision   Decision
	Note       string
	ReviewerID uuid.UUID
	At         time.Time
}

// SignedLicense is a time-limited link to a stored licence.
type SignedLicense struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

var (
	ErrDoctorNotFound = apperr.NotFound("doctor_not_found", "doctor not found")
	ErrNoLicense      = apperr.NotFound("license_not_found", "no licence has been uploaded")
	ErrNotPending     = apperr.InvalidTransition("not_pending_review", "licence is not awaiting review")
	ErrNotDoctor      = apperr.Forbidden("not_doctor", "only doctors can upload a licence")
	ErrAdminOnly      = apperr.Forbidden("admin_only", "only administrators can review licences")
)
