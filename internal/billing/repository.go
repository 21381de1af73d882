package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// errNotPending is returned by SetStatus when the record is missing or
// already settled.
var errNotPending = errors.New("billing record not pending")

// Repository handles billing_history and the plan columns of organizations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a billing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `id, organization_id, period, plan_type, amount, status, invoice_url, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.BillingRecord, error) {
	var b models.BillingRecord
	err := row.Scan(&b.ID, &b.OrganizationID, &b.Period, &b.PlanType, &b.Amount, &b.Status, &b.InvoiceURL, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

const insertRecord = `INSERT INTO billing_history (organization_id, period, plan_type, amount, status, invoice_url)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING ` + recordColumns

// List returns an organization's billing history, newest first.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]*models.BillingRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM billing_history
		WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, apperr.Store("list billing", err)
	}
	defer rows.Close()
	list := make([]*models.BillingRecord, 0)
	for rows.Next() {
		b, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Store("list billing", err)
		}
		list = append(list, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list billing", err)
	}
	return list, nil
}

// Get returns one billing record of an organization.
func (r *Repository) Get(ctx context.Context, orgID, id uuid.UUID) (*models.BillingRecord, error) {
	b, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM billing_history
		WHERE organization_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("get billing record", "billing record")
		}
		return nil, apperr.Store("get billing record", err)
	}
	return b, nil
}

// Create appends a record.
func (r *Repository) Create(ctx context.Context, rec *models.BillingRecord) (*models.BillingRecord, error) {
	b, err := scanRecord(r.pool.QueryRow(ctx, insertRecord,
		rec.OrganizationID, rec.Period, rec.PlanType, rec.Amount, rec.Status, rec.InvoiceURL))
	if err != nil {
		return nil, apperr.Store("create billing record", err)
	}
	return b, nil
}

// SetStatus settles a pending record. It returns errNotPending when no
// pending record matched.
func (r *Repository) SetStatus(ctx context.Context, orgID, id uuid.UUID, status models.BillingStatus) (*models.BillingRecord, error) {
	b, err := scanRecord(r.pool.QueryRow(ctx, `UPDATE billing_history SET status = $3
		WHERE organization_id = $1 AND id = $2 AND status = 'pending'
		RETURNING `+recordColumns, orgID, id, status))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, errNotPending
		}
		return nil, apperr.Store("set billing status", err)
	}
	return b, nil
}

// ChangePlan switches the organization's plan and appends rec in one
// transaction.
func (r *Repository) ChangePlan(ctx context.Context, orgID uuid.UUID, plan models.PlanType, userLimit int, rec *models.BillingRecord) (*models.Organization, *models.BillingRecord, error) {
	var org models.Organization
	var created *models.BillingRecord
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `UPDATE organizations SET plan_type = $2, user_limit = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING id, name, plan_type, user_limit, created_at, updated_at`, orgID, plan, userLimit).
			Scan(&org.ID, &org.Name, &org.PlanType, &org.UserLimit, &org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return err
		}
		created, err = scanRecord(tx.QueryRow(ctx, insertRecord,
			orgID, rec.Period, plan, rec.Amount, rec.Status, rec.InvoiceURL))
		return err
	})
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil, apperr.NotFound("change plan", "organization")
		}
		return nil, nil, apperr.Store("change plan", err)
	}
	return &org, created, nil
}
