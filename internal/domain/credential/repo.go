package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Get(ctx context.Context, doctorID uuid.UUID) (*License, error)
	// SetLicense records a new upload and puts the doctor back into review.
	SetLicense(ctx context.Context, doctorID uuid.UUID, path, contentType string, at time.Time) (*License, error)
	// Review applies r to a licence in pending_review. ok is false when the
	// licence was not pending.
	Review(ctx context.Context, doctorID uuid.UUID, r Review) (l *License, ok bool, err error)
}
