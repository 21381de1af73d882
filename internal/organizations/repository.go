package organizations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// Repository handles organization persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orgColumns = `id, name, plan_type, user_limit, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrganization(row rowScanner) (*models.Organization, error) {
	var o models.Organization
	if err := row.Scan(&o.ID, &o.Name, &o.PlanType, &o.UserLimit, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts an organization.
func (r *Repository) Create(ctx context.Context, name string, plan models.PlanType, userLimit int) (*models.Organization, error) {
	q := `INSERT INTO organizations (name, plan_type, user_limit)
		VALUES ($1, $2, $3)
		RETURNING ` + orgColumns
	org, err := scanOrganization(r.pool.QueryRow(ctx, q, name, plan, userLimit))
	if err != nil {
		return nil, apperr.Store("create organization", err)
	}
	return org, nil
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	q := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	org, err := scanOrganization(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("get organization", "organization")
		}
		return nil, apperr.Store("get organization", err)
	}
	return org, nil
}

// Rename changes the display name.
func (r *Repository) Rename(ctx context.Context, id uuid.UUID, name string) (*models.Organization, error) {
	q := `UPDATE organizations SET name = $2, updated_at = $3 WHERE id = $1 RETURNING ` + orgColumns
	org, err := scanOrganization(r.pool.QueryRow(ctx, q, id, name, time.Now()))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("rename organization", "organization")
		}
		return nil, apperr.Store("rename organization", err)
	}
	return org, nil
}
