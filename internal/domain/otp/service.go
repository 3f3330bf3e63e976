package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/zyncure/zyncure/internal/domain/profile"
	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/clock"
	"github.com/zyncure/zyncure/internal/platform/notification"
)

// Sender renders and delivers a templated email, reporting failures.
type Sender interface {
	Send(ctx context.Context, templateID, recipient string, data map[string]string) error
}

type Service struct {
	codes     Repository
	profiles  profile.Repository
	passwords PasswordVerifier
	sender    Sender
	clock     clock.Clock
	ttl       time.Duration
	hashCost  int
	generate  func() (string, error)
	logger    zerolog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithHashCost sets the bcrypt cost of stored codes.
func WithHashCost(cost int) Option { return func(s *Service) { s.hashCost = cost } }

// WithGenerator replaces the random code source.
func WithGenerator(fn func() (string, error)) Option { return func(s *Service) { s.generate = fn } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(codes Repository, profiles profile.Repository, passwords PasswordVerifier, sender Sender, opts ...Option) *Service {
	s := &Service{
		codes:     codes,
		profiles:  profiles,
		passwords: passwords,
		sender:    sender,
		clock:     clock.New(),
		ttl:       DefaultTTL,
		hashCost:  bcrypt.DefaultCost,
		generate:  GenerateCode,
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GenerateCode returns CodeLength uniformly random decimal digits.
func GenerateCode() (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("read random digit: %w", err)
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// IssueWithPassword checks the password with the auth service and emails a
// fresh code to the account.
func (s *Service) IssueWithPassword(ctx context.Context, email, password string) (*Issued, error) {
	userID, err := s.passwords.VerifyPassword(ctx, email, password)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warn().Err(err).Msg("password check failed")
		}
		return nil, ErrInvalidCredentials
	}
	recipient := strings.ToLower(strings.TrimSpace(email))
	if p, err := s.profiles.GetByID(ctx, userID); err == nil && p.Email != "" {
		recipient = strings.ToLower(p.Email)
	}
	return s.issue(ctx, userID, recipient)
}

// IssueForUser emails a fresh code to the profile email of userID.
func (s *Service) IssueForUser(ctx context.Context, userID uuid.UUID) (*Issued, error) {
	p, err := s.profiles.GetByID(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, apperr.FromStore("load profile", err)
	}
	if p.Email == "" {
		return nil, ErrUnknownUser
	}
	return s.issue(ctx, userID, strings.ToLower(p.Email))
}

func (s *Service) issue(ctx context.Context, userID uuid.UUID, email string) (*Issued, error) {
	code, err := s.generate()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}

	if _, err := s.codes.InvalidateForUser(ctx, userID); err != nil {
		return nil, apperr.FromStore("invalidate previous codes", err)
	}
	rec := &Code{
		UserID:    userID,
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: s.clock.Now().Add(s.ttl),
	}
	if err := s.codes.Create(ctx, rec); err != nil {
		return nil, apperr.FromStore("store code", err)
	}

	err = s.sender.Send(ctx, notification.TemplateOTPCode, email, map[string]string{
		"code":        code,
		"ttl_minutes": strconv.Itoa(int(s.ttl / time.Minute)),
	})
	if err != nil {
		return nil, apperr.Upstream("failed to send verification email", err)
	}

	s.logger.Info().Str("user_id", userID.String()).Msg("otp issued")
	return &Issued{UserID: userID, Email: email, ExpiresAt: rec.ExpiresAt}, nil
}

// Verify checks code against the newest unused code for email and consumes
// it on success. Expired and exhausted codes are consumed as well.
func (s *Service) Verify(ctx context.Context, email, code string) (*Verified, error) {
	rec, err := s.codes.Latest(ctx, email)
	if errors.Is(err, ErrCodeNotFound) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, apperr.FromStore("load code", err)
	}

	now := s.clock.Now()
	if rec.Expired(now) {
		s.consume(ctx, rec.ID, now)
		return nil, ErrCodeExpired
	}
	if rec.Attempts >= MaxAttempts {
		s.consume(ctx, rec.ID, now)
		return nil, ErrTooManyAttempts
	}

	if bcrypt.CompareHashAndPassword([]byte(rec.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		attempts, err := s.codes.IncrementAttempts(ctx, rec.ID)
		if err != nil {
			return nil, apperr.FromStore("record attempt", err)
		}
		if attempts >= MaxAttempts {
			s.consume(ctx, rec.ID, now)
		}
		return nil, ErrInvalidCode
	}

	ok, err := s.codes.MarkUsed(ctx, rec.ID, now)
	if err != nil {
		return nil, apperr.FromStore("consume code", err)
	}
	if !ok {
		return nil, ErrInvalidCode
	}
	return &Verified{UserID: rec.UserID, Email: rec.Email}, nil
}

func (s *Service) consume(ctx context.Context, id uuid.UUID, now time.Time) {
	if _, err := s.codes.MarkUsed(ctx, id, now); err != nil {
		s.logger.Warn().Err(err).Str("otp_id", id.String()).Msg("failed to consume code")
	}
}
