package allowances

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// Repository handles allowance_settings persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an allowances repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const rateColumns = `id, organization_id, position, domestic_daily, domestic_accommodation,
	overseas_daily, overseas_accommodation, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRate(row rowScanner) (*models.AllowanceRate, error) {
	var a models.AllowanceRate
	err := row.Scan(&a.ID, &a.OrganizationID, &a.Position, &a.DomesticDaily, &a.DomesticAccommodation,
		&a.OverseasDaily, &a.OverseasAccommodation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Get returns the rate of one position.
func (r *Repository) Get(ctx context.Context, orgID uuid.UUID, position models.Position) (*models.AllowanceRate, error) {
	q := `SELECT ` + rateColumns + ` FROM allowance_settings WHERE organization_id = $1 AND position = $2`
	a, err := scanRate(r.pool.QueryRow(ctx, q, orgID, position))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("get allowance", "allowance for position "+string(position))
		}
		return nil, apperr.Store("get allowance", err)
	}
	return a, nil
}

// List returns every rate of an organization.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]*models.AllowanceRate, error) {
	q := `SELECT ` + rateColumns + ` FROM allowance_settings WHERE organization_id = $1`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, apperr.Store("list allowances", err)
	}
	defer rows.Close()
	list := make([]*models.AllowanceRate, 0, len(models.Positions))
	for rows.Next() {
		a, err := scanRate(rows)
		if err != nil {
			return nil, apperr.Store("list allowances", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list allowances", err)
	}
	return list, nil
}

const upsertRate = `INSERT INTO allowance_settings (organization_id, position, domestic_daily,
		domestic_accommodation, overseas_daily, overseas_accommodation)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (organization_id, position) DO UPDATE SET
		domestic_daily = EXCLUDED.domestic_daily,
		domestic_accommodation = EXCLUDED.domestic_accommodation,
		overseas_daily = EXCLUDED.overseas_daily,
		overseas_accommodation = EXCLUDED.overseas_accommodation,
		updated_at = $7
	RETURNING ` + rateColumns

// Upsert writes the rates of a position, keyed on (organization, position).
func (r *Repository) Upsert(ctx context.Context, orgID uuid.UUID, position models.Position, rates models.Rates) (*models.AllowanceRate, error) {
	a, err := scanRate(r.pool.QueryRow(ctx, upsertRate, orgID, position, rates.DomesticDaily,
		rates.DomesticAccommodation, rates.OverseasDaily, rates.OverseasAccommodation, time.Now()))
	if err != nil {
		return nil, apperr.Store("upsert allowance", err)
	}
	return a, nil
}

// SeedDefaults writes the default table for every position in one batch.
func (r *Repository) SeedDefaults(ctx context.Context, orgID uuid.UUID) error {
	batch := &pgx.Batch{}
	now := time.Now()
	for _, p := range models.Positions {
		rates := models.DefaultRates[p]
		batch.Queue(upsertRate, orgID, p, rates.DomesticDaily, rates.DomesticAccommodation,
			rates.OverseasDaily, rates.OverseasAccommodation, now)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range models.Positions {
		if _, err := br.Exec(); err != nil {
			return apperr.Store("seed allowances", err)
		}
	}
	return nil
}
