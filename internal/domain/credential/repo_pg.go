package credential

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zyncure/zyncure/internal/platform/db"
)

type licenseRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &licenseRepoPG{pool: pool} }

const licenseCols = `id, license_path, license_content_type, COALESCE(license_status, 'none'),
	license_uploaded_at, review_note, reviewed_by, reviewed_at`

func scanLicense(row pgx.Row) (*License, error) {
	var l License
	err := row.Scan(&l.DoctorID, &l.Path, &l.ContentType, &l.Status,
		&l.UploadedAt, &l.ReviewNote, &l.ReviewedBy, &l.ReviewedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDoctorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *licenseRepoPG) Get(ctx context.Context, doctorID uuid.UUID) (*License, error) {
	return scanLicense(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+licenseCols+` FROM medicalprofessionals WHERE id = $1`, doctorID))
}

func (r *licenseRepoPG) SetLicense(ctx context.Context, doctorID uuid.UUID, path, contentType string, at time.Time) (*License, error) {
	return scanLicense(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medicalprofessionals SET
			license_path = $2, license_content_type = $3, license_uploaded_at = $4,
			license_status = 'pending_review',
			review_note = NULL, reviewed_by = NULL, reviewed_at = NULL
		WHERE id = $1
		RETURNING `+licenseCols,
		doctorID, path, contentType, at))
}

func (r *licenseRepoPG) Review(ctx context.Context, doctorID uuid.UUID, rv Review) (*License, bool, error) {
	var note *string
	if rv.Note != "" {
		note = &rv.Note
	}
	l, err := scanLicense(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE medicalprofessionals SET
			license_status = $2, review_note = $3, reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND license_status = 'pending_review'
		RETURNING `+licenseCols,
		doctorID, rv.Decision.Status(), note, rv.ReviewerID, rv.At))
	if errors.Is(err, ErrDoctorNotFound) {
		cur, getErr := r.Get(ctx, doctorID)
		if getErr != nil {
			return nil, false, getErr
		}
		return cur, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return l, true, nil
}
