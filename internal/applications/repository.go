package applications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// errGuardRejected is returned when a conditional write matched no row
// because the guard (status, applicant) no longer held.
var errGuardRejected = errors.New("guard rejected")

// Guard restricts a conditional write. Nil fields do not restrict.
type Guard struct {
	Statuses    []models.ApplicationStatus
	ApplicantID *uuid.UUID
}

// Allows reports whether app satisfies the guard.
func (g Guard) Allows(app *models.Application) bool {
	if g.ApplicantID != nil && app.ApplicantID != *g.ApplicantID {
		return false
	}
	if g.Statuses == nil {
		return true
	}
	for _, s := range g.Statuses {
		if app.Status == s {
			return true
		}
	}
	return false
}

func (g Guard) statuses() []string {
	if g.Statuses == nil {
		return nil
	}
	out := make([]string, len(g.Statuses))
	for i, s := range g.Statuses {
		out[i] = string(s)
	}
	return out
}

// Filter narrows List within the caller's organization.
type Filter struct {
	Status      *models.ApplicationStatus
	Type        *models.ApplicationKind
	ApplicantID *uuid.UUID
}

// Repository handles application persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an applications repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const appColumns = `a.id, a.organization_id, a.applicant_id, a.type, a.title, a.purpose, a.status,
	a.estimated_amount, a.actual_amount, a.start_date, a.end_date, a.destination,
	a.details, a.attachments, a.created_at, a.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner, withApplicant bool) (*models.Application, error) {
	var a models.Application
	var details, attachments []byte
	dest := []interface{}{
		&a.ID, &a.OrganizationID, &a.ApplicantID, &a.Type, &a.Title, &a.Purpose, &a.Status,
		&a.EstimatedAmount, &a.ActualAmount, &a.StartDate, &a.EndDate, &a.Destination,
		&details, &attachments, &a.CreatedAt, &a.UpdatedAt,
	}
	var name *string
	var dept *string
	if withApplicant {
		dest = append(dest, &name, &dept)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
	}
	a.Attachments = []models.Attachment{}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &a.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
		if a.Attachments == nil {
			a.Attachments = []models.Attachment{}
		}
	}
	if name != nil {
		a.Applicant = &models.Applicant{FullName: *name, Department: dept}
	}
	return &a, nil
}

func encodeJSON(app *models.Application) (details, attachments []byte, err error) {
	details, err = json.Marshal(app.Details)
	if err != nil {
		return nil, nil, apperr.Validation("encode details", "%v", err)
	}
	atts := app.Attachments
	if atts == nil {
		atts = []models.Attachment{}
	}
	attachments, err = json.Marshal(atts)
	if err != nil {
		return nil, nil, apperr.Store("encode attachments", err)
	}
	return details, attachments, nil
}

// Create inserts an application and fills its generated fields.
func (r *Repository) Create(ctx context.Context, app *models.Application) error {
	details, attachments, err := encodeJSON(app)
	if err != nil {
		return err
	}
	const q = `INSERT INTO applications (organization_id, applicant_id, type, title, purpose, status,
			estimated_amount, actual_amount, start_date, end_date, destination, details, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`
	err = r.pool.QueryRow(ctx, q, app.OrganizationID, app.ApplicantID, app.Type, app.Title, app.Purpose,
		app.Status, app.EstimatedAmount, app.ActualAmount, app.StartDate, app.EndDate, app.Destination,
		details, attachments).Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return apperr.Store("create application", err)
	}
	return nil
}

// Get returns an application of an organization with its applicant embedded.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.Application, error) {
	q := `SELECT ` + appColumns + `, m.full_name, m.department
		FROM applications a
		LEFT JOIN members m ON m.id = a.applicant_id
		WHERE a.organization_id = $1 AND a.id = $2`
	app, err := scanApplication(r.pool.QueryRow(ctx, q, orgID, id), true)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("get application", "application")
		}
		return nil, apperr.Store("get application", err)
	}
	return app, nil
}

// List returns applications of an organization, newest first, applicant embedded.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID, f Filter) ([]*models.Application, error) {
	where := []string{"a.organization_id = $1"}
	args := []interface{}{orgID}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)))
	}
	if f.Type != nil {
		args = append(args, string(*f.Type))
		where = append(where, fmt.Sprintf("a.type = $%d", len(args)))
	}
	if f.ApplicantID != nil {
		args = append(args, *f.ApplicantID)
		where = append(where, fmt.Sprintf("a.applicant_id = $%d", len(args)))
	}
	q := `SELECT ` + appColumns + `, m.full_name, m.department
		FROM applications a
		LEFT JOIN members m ON m.id = a.applicant_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY a.created_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Store("list applications", err)
	}
	defer rows.Close()
	list := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows, true)
		if err != nil {
			return nil, apperr.Store("list applications", err)
		}
		list = append(list, app)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list applications", err)
	}
	return list, nil
}

func (r *Repository) guarded(ctx context.Context, op, q string, args ...interface{}) (*models.Application, error) {
	app, err := scanApplication(r.pool.QueryRow(ctx, q, args...), false)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, errGuardRejected
		}
		return nil, apperr.Store(op, err)
	}
	return app, nil
}

// Update writes the editable fields of app if the guard holds. Status is
// never changed here.
func (r *Repository) Update(ctx context.Context, app *models.Application, g Guard) (*models.Application, error) {
	details, attachments, err := encodeJSON(app)
	if err != nil {
		return nil, err
	}
	q := `UPDATE applications a SET title = $3, purpose = $4, estimated_amount = $5, actual_amount = $6,
			start_date = $7, end_date = $8, destination = $9, details = $10, attachments = $11, updated_at = $12
		WHERE a.organization_id = $1 AND a.id = $2
			AND ($13::text[] IS NULL OR a.status = ANY($13))
			AND ($14::uuid IS NULL OR a.applicant_id = $14)
		RETURNING ` + appColumns
	return r.guarded(ctx, "update application", q, app.OrganizationID, app.ID, app.Title, app.Purpose,
		app.EstimatedAmount, app.ActualAmount, app.StartDate, app.EndDate, app.Destination,
		details, attachments, time.Now(), g.statuses(), g.ApplicantID)
}

// Transition moves an application to status to if the guard holds. A
// rejected transition leaves the row untouched.
func (r *Repository) Transition(ctx context.Context, orgID, id uuid.UUID, g Guard, to models.ApplicationStatus) (*models.Application, error) {
	q := `UPDATE applications a SET status = $3, updated_at = $4
		WHERE a.organization_id = $1 AND a.id = $2
			AND ($5::text[] IS NULL OR a.status = ANY($5))
			AND ($6::uuid IS NULL OR a.applicant_id = $6)
		RETURNING ` + appColumns
	return r.guarded(ctx, "transition application", q, orgID, id, to, time.Now(), g.statuses(), g.ApplicantID)
}

// AppendAttachment adds att to the attachment list if the guard holds.
func (r *Repository) AppendAttachment(ctx context.Context, orgID, id uuid.UUID, g Guard, att models.Attachment) (*models.Application, error) {
	raw, err := json.Marshal([]models.Attachment{att})
	if err != nil {
		return nil, apperr.Store("append attachment", err)
	}
	q := `UPDATE applications a SET attachments = COALESCE(a.attachments, '[]'::jsonb) || $3::jsonb, updated_at = $4
		WHERE a.organization_id = $1 AND a.id = $2
			AND ($5::text[] IS NULL OR a.status = ANY($5))
			AND ($6::uuid IS NULL OR a.applicant_id = $6)
		RETURNING ` + appColumns
	return r.guarded(ctx, "append attachment", q, orgID, id, raw, time.Now(), g.statuses(), g.ApplicantID)
}

// Delete removes an application if the guard holds and returns the removed row.
func (r *Repository) Delete(ctx context.Context, orgID, id uuid.UUID, g Guard) (*models.Application, error) {
	q := `DELETE FROM applications a
		WHERE a.organization_id = $1 AND a.id = $2
			AND ($3::text[] IS NULL OR a.status = ANY($3))
			AND ($4::uuid IS NULL OR a.applicant_id = $4)
		RETURNING ` + appColumns
	return r.guarded(ctx, "delete application", q, orgID, id, g.statuses(), g.ApplicantID)
}
