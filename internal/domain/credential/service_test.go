package credential

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zyncure/zyncure/internal/platform/apperr"
	"github.com/zyncure/zyncure/internal/platform/auth"
	"github.com/zyncure/zyncure/internal/platform/blobstore"
	"github.com/zyncure/zyncure/internal/platform/clock"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")
	pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
)

// -- Mock Repository --

type mockLicenseRepo struct {
	mu       sync.Mutex
	licenses map[uuid.UUID]*License
	failSet  error
}

func newMockLicenseRepo(doctors ...uuid.UUID) *mockLicenseRepo {
	m := &mockLicenseRepo{licenses: make(map[uuid.UUID]*License)}
	for _, id := range doctors {
		m.licenses[id] = &License{DoctorID: id, Status: StatusNone}
	}
	return m
}

func (m *mockLicenseRepo) Get(_ context.Context, doctorID uuid.UUID) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *mockLicenseRepo) SetLicense(_ context.Context, doctorID uuid.UUID, path, contentType string, at time.Time) (*License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return nil, m.failSet
	}
	l, ok := m.licenses[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	l.Path, l.ContentType, l.UploadedAt = &path, &contentType, &at
	l.Status = StatusPendingReview
	l.ReviewNote, l.ReviewedBy, l.ReviewedAt = nil, nil, nil
	cp := *l
	return &cp, nil
}

func (m *mockLicenseRepo) Review(_ context.Context, doctorID uuid.UUID, r Review) (*License, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.licenses[doctorID]
	if !ok {
		return nil, false, ErrDoctorNotFound
	}
	if l.Status != StatusPendingReview {
		cp := *l
		return &cp, false, nil
	}
	l.Status = r.Decision.Status()
	if r.Note != "" {
		note := r.Note
		l.ReviewNote = &note
	}
	reviewer, at := r.ReviewerID, r.At
	l.ReviewedBy, l.ReviewedAt = &reviewer, &at
	cp := *l
	return &cp, true, nil
}

// -- Fixture --

type fixture struct {
	svc    *Service
	repo   *mockLicenseRepo
	store  *blobstore.MemoryStore
	doctor auth.Actor
	admin  auth.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		doctor: auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor},
		admin:  auth.Actor{ID: uuid.New(), Role: auth.RoleAdmin},
		store:  blobstore.NewMemoryStore(),
	}
	f.repo = newMockLicenseRepo(f.doctor.ID)
	f.svc = NewService(f.repo, f.store, WithClock(clock.NewManaged(time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC))))
	return f
}

// -- Tests --

func TestUploadLicense(t *testing.T) {
	f := newFixture(t)
	l, err := f.svc.UploadLicense(context.Background(), f.doctor, bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Status != StatusPendingReview || l.Path == nil {
		t.Fatalf("unexpected licence %+v", l)
	}
	if !strings.HasPrefix(*l.Path, f.doctor.ID.String()+"/") {
		t.Errorf("expected path under doctor id, got %s", *l.Path)
	}
	if _, ct, ok := f.store.Get(*l.Path); !ok || ct != "image/png" {
		t.Errorf("expected stored png, got %q %v", ct, ok)
	}
}

func TestUploadLicense_ReplacesPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, _ := f.svc.UploadLicense(ctx, f.doctor, bytes.NewReader(pngBytes))
	second, err := f.svc.UploadLicense(ctx, f.doctor, bytes.NewReader(pdfBytes))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, ok := f.store.Get(*first.Path); ok {
		t.Error("expected replaced licence to be removed")
	}
	if _, _, ok := f.store.Get(*second.Path); !ok {
		t.Error("expected new licence to be stored")
	}
}

func TestUploadLicense_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Actor
		data  []byte
		code  string
	}{
		{"patient", auth.Actor{ID: uuid.New(), Role: auth.RolePatient}, pngBytes, "not_doctor"},
		{"empty", f.doctor, nil, "empty_file"},
		{"text file", f.doctor, []byte("plain text, not a licence"), "unsupported_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UploadLicense(ctx, tt.actor, bytes.NewReader(tt.data))
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestUploadLicense_StoreFailureRemovesObject(t *testing.T) {
	f := newFixture(t)
	f.repo.failSet = errors.New("db down")
	_, err := f.svc.UploadLicense(context.Background(), f.doctor, bytes.NewReader(pngBytes))
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	p, _ := blobstore.Prepare(bytes.NewReader(pngBytes), f.doctor.ID.String())
	if _, _, ok := f.store.Get(p.Path); ok {
		t.Error("expected orphaned object to be deleted")
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Verify(ctx, f.admin, f.doctor.ID, DecisionApprove, ""); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected not pending before upload, got %v", err)
	}

	f.svc.UploadLicense(ctx, f.doctor, bytes.NewReader(pngBytes))

	if _, err := f.svc.Verify(ctx, f.doctor, f.doctor.ID, DecisionApprove, ""); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("expected admin only, got %v", err)
	}
	if _, err := f.svc.Verify(ctx, f.admin, f.doctor.ID, DecisionReject, ""); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected rejection without note to fail, got %v", err)
	}

	l, err := f.svc.Verify(ctx, f.admin, f.doctor.ID, DecisionApprove, "looks good")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Status != StatusApproved || l.ReviewedBy == nil || *l.ReviewedBy != f.admin.ID {
		t.Errorf("unexpected licence %+v", l)
	}

	if _, err := f.svc.Verify(ctx, f.admin, f.doctor.ID, DecisionReject, "again"); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected second review to fail, got %v", err)
	}
}

func TestSignedURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SignedURL(ctx, f.admin, f.doctor.ID); !errors.Is(err, ErrNoLicense) {
		t.Fatalf("expected no licence, got %v", err)
	}
	f.svc.UploadLicense(ctx, f.doctor, bytes.NewReader(pngBytes))

	signed, err := f.svc.SignedURL(ctx, f.admin, f.doctor.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(signed.URL, "expires_in=900") {
		t.Errorf("expected 15 minute link, got %s", signed.URL)
	}

	other := auth.Actor{ID: uuid.New(), Role: auth.RoleDoctor}
	if _, err := f.svc.SignedURL(ctx, other, f.doctor.ID); !errors.Is(err, ErrAdminOnly) {
		t.Errorf("expected other doctor to be refused, got %v", err)
	}
}
