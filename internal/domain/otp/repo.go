package otp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Code) error
	// Latest returns the newest unused code for email, or ErrCodeNotFound.
	Latest(ctx context.Context, email string) (*Code, error)
	// InvalidateForUser marks every unused code of the user as used.
	InvalidateForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	// MarkUsed flips an unused code to used. ok is false when the code was
	// already used.
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (ok bool, err error)
}
