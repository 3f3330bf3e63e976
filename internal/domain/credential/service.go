package credential

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/blobstore"
	"github.com/zyncure/zyncure/internal/platform/clock"
)

// SignedURLTTL is how long a licence link handed to an administrator works.
const SignedURLTTL = 15 * time.Minute

type Service struct {
	repo   Repository
	store  blobstore.Store
	clock  clock.Clock
	logger zerolog.Logger
}

type Option func(*Service)

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(repo Repository, store blobstore.Store, opts ...Option) *Service {
	s := &Service{repo: repo, store: store, clock: clock.New(), logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, blobstore.ErrEmptyFile):
		return apperr.Validation("empty_file", "file is empty")
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return apperr.Validation("file_too_large", "file exceeds 10 MB")
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return apperr.Validation("unsupported_type", "licence must be a PNG, JPEG or PDF")
	}
	return apperr.Upstream("read upload", err)
}

// UploadLicense stores the licence image of the calling doctor and marks the
// account for review. A replaced file is removed after the new one is
// recorded.
func (s *Service) UploadLicense(ctx context.Context, actor auth.Actor, content io.Reader) (*License, error) {
	if !actor.IsDoctor() {
		return nil, ErrNotDoctor
	}
	prev, err := s.repo.Get(ctx, actor.ID)
	if err != nil {
		return nil, apperr.FromStore("load doctor", err)
	}

	obj, err := blobstore.Prepare(content, actor.ID.String())
	if err != nil {
		return nil, uploadError(err)
	}
	if err := s.store.Put(ctx, obj.Path, obj.ContentType, obj.Content); err != nil {
		return nil, apperr.Upstream("store licence", err)
	}

	l, err := s.repo.SetLicense(ctx, actor.ID, obj.Path, obj.ContentType, s.clock.Now())
	if err != nil {
		if delErr := s.store.Delete(ctx, obj.Path); delErr != nil {
			s.logger.Warn().Err(delErr).Str("path", obj.Path).Msg("orphaned licence object")
		}
		return nil, apperr.FromStore("record licence", err)
	}

	if prev.Path != nil && *prev.Path != obj.Path {
		if err := s.store.Delete(ctx, *prev.Path); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Warn().Err(err).Str("path", *prev.Path).Msg("failed to remove replaced licence")
		}
	}
	s.logger.Info().Str("doctor_id", actor.ID.String()).Str("path", obj.Path).Msg("licence uploaded")
	return l, nil
}

// GetLicense returns the verification state. Doctors see their own; admins
// see anyone's.
func (s *Service) GetLicense(ctx context.Context, actor auth.Actor, doctorID uuid.UUID) (*License, error) {
	if !actor.IsAdmin() && actor.ID != doctorID {
		return nil, ErrAdminOnly
	}
	l, err := s.repo.Get(ctx, doctorID)
	return l, apperr.FromStore("load licence", err)
}

// Verify records an administrator's decision on a pending licence.
func (s *Service) Verify(ctx context.Context, actor auth.Actor, doctorID uuid.UUID, decision Decision, note string) (*License, error) {
	if !actor.IsAdmin() {
		return nil, ErrAdminOnly
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, apperr.Validation("invalid_decision", "decision must be approve or reject")
	}
	if decision == DecisionReject && note == "" {
		return nil, apperr.Validation("note_required", "a note is required when rejecting")
	}

	l, ok, err := s.repo.Review(ctx, doctorID, Review{
		Decision:   decision,
		Note:       note,
		ReviewerID: actor.ID,
		At:         s.clock.Now(),
	})
	if err != nil {
		return nil, apperr.FromStore("review licence", err)
	}
	if !ok {
		return nil, ErrNotPending
	}
	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Str("decision", string(decision)).
		Str("reviewer", actor.ID.String()).
		Msg("licence reviewed")
	return l, nil
}

// SignedURL returns a short-lived link to the stored licence.
func (s *Service) SignedURL(ctx context.Context, actor auth.Actor, doctorID uuid.UUID) (*SignedLicense, error) {
	l, err := s.GetLicense(ctx, actor, doctorID)
	if err != nil {
		return nil, err
	}
	if l.Path == nil {
		return nil, ErrNoLicense
	}
	url, err := s.store.SignedURL(ctx, *l.Path, SignedURLTTL)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, ErrNoLicense
	}
	if err != nil {
		return nil, apperr.Upstream("sign licence url", err)
	}
	return &SignedLicense{URL: url, ExpiresAt: s.clock.Now().Add(SignedURLTTL)}, nil
}
