// Package otp issues, delivers and verifies the six digit one-time codes
// used as the second sign-in factor.
package otp

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zyncure/zyncure/internal/platform/apperr"
)

const (
	CodeLength = 6
	// MaxAttempts is the number of wrong guesses a code survives.
	MaxAttempts = 5
	DefaultTTL  = 5 * time.Minute
)

// Code is a stored one-time code. Only the bcrypt hash of the digits is kept.
type Code struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	CodeHash  string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// Expired reports whether the code can no longer be used at now.
func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Issued is returned to the caller after a code has been emailed.
type Issued struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Verified identifies the account whose code was accepted.
type Verified struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

var (
	ErrCodeNotFound = errors.New("otp code not found")

	// ErrInvalidCredentials is a failed password check against the auth
	// service.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUnknownUser     = apperr.Validation("unknown_user", "user not found")
	ErrInvalidCode     = apperr.Validation("invalid_code", "invalid or expired code")
	ErrCodeExpired     = apperr.Validation("code_expired", "code has expired, request a new one")
	ErrTooManyAttempts = apperr.Validation("too_many_attempts", "too many attempts, request a new code")
)
