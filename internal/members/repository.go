package members

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// Repository handles member persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a members repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const memberColumns = `m.id, m.organization_id, m.credential_id, m.full_name, m.email, m.phone,
	m.position, m.department, m.role, m.status, m.created_at, m.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func memberDest(m *models.Member) []interface{} {
	return []interface{}{
		&m.ID, &m.OrganizationID, &m.CredentialID, &m.FullName, &m.Email, &m.Phone,
		&m.Position, &m.Department, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	}
}

func scanMember(row rowScanner) (*models.Member, error) {
	var m models.Member
	if err := row.Scan(memberDest(&m)...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) getOne(ctx context.Context, op, q string, args ...interface{}) (*models.Member, error) {
	m, err := scanMember(r.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound(op, "member")
		}
		return nil, apperr.Store(op, err)
	}
	return m, nil
}

func (r *Repository) list(ctx context.Context, op, q string, args ...interface{}) ([]*models.Member, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	defer rows.Close()
	list := make([]*models.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, apperr.Store(op, err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store(op, err)
	}
	return list, nil
}

// Create inserts a member and fills its generated fields.
func (r *Repository) Create(ctx context.Context, m *models.Member) error {
	const q = `INSERT INTO members (organization_id, credential_id, full_name, email, phone, position, department, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, m.OrganizationID, m.CredentialID, m.FullName, m.Email, m.Phone,
		m.Position, m.Department, m.Role, m.Status).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperr.Validation("create member", "a member with email %s already exists", m.Email)
		}
		return apperr.Store("create member", err)
	}
	return nil
}

// GetByCredential returns the member bound to a credential joined with its
// organization in one read.
func (r *Repository) GetByCredential(ctx context.Context, credentialID uuid.UUID) (*models.Member, *models.Organization, error) {
	q := `SELECT ` + memberColumns + `,
		o.id, o.name, o.plan_type, o.user_limit, o.created_at, o.updated_at
		FROM members m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.credential_id = $1`
	var m models.Member
	var o models.Organization
	dest := append(memberDest(&m), &o.ID, &o.Name, &o.PlanType, &o.UserLimit, &o.CreatedAt, &o.UpdatedAt)
	if err := r.pool.QueryRow(ctx, q, credentialID).Scan(dest...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil, apperr.NotFound("resolve member", "member")
		}
		return nil, nil, apperr.Store("resolve member", err)
	}
	return &m, &o, nil
}

// GetByID returns a member of an organization.
func (r *Repository) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m WHERE m.organization_id = $1 AND m.id = $2`
	return r.getOne(ctx, "get member", q, orgID, id)
}

// List returns the members of an organization ordered by name.
func (r *Repository) List(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m WHERE m.organization_id = $1 ORDER BY m.full_name, m.created_at`
	return r.list(ctx, "list members", q, orgID)
}

// ListApprovers returns the active admin and approver members of an organization.
func (r *Repository) ListApprovers(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m
		WHERE m.organization_id = $1 AND m.status = 'active' AND m.role IN ('admin', 'approver')
		ORDER BY m.created_at`
	return r.list(ctx, "list approvers", q, orgID)
}

// CountSeats counts active and invited members of an organization.
func (r *Repository) CountSeats(ctx context.Context, orgID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM members WHERE organization_id = $1 AND status IN ('active', 'invited')`
	var n int
	if err := r.pool.QueryRow(ctx, q, orgID).Scan(&n); err != nil {
		return 0, apperr.Store("count seats", err)
	}
	return n, nil
}

// GetInvitedByEmail returns the oldest pending invitation for email.
func (r *Repository) GetInvitedByEmail(ctx context.Context, email string) (*models.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members m
		WHERE lower(m.email) = lower($1) AND m.status = 'invited' AND m.credential_id IS NULL
		ORDER BY m.created_at LIMIT 1`
	m, err := r.getOne(ctx, "get invitation", q, email)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("get invitation", "invitation")
	}
	return m, err
}

// Activate links an invited member to its credential and marks it active.
func (r *Repository) Activate(ctx context.Context, memberID, credentialID uuid.UUID, fullName string) (*models.Member, error) {
	q := `UPDATE members m SET credential_id = $2, full_name = $3, status = 'active', updated_at = $4
		WHERE m.id = $1 AND m.status = 'invited'
		RETURNING ` + memberColumns
	m, err := r.getOne(ctx, "activate member", q, memberID, credentialID, fullName, time.Now())
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, apperr.NotFound("activate member", "invitation")
	}
	return m, err
}

// Update writes the editable fields of a member.
func (r *Repository) Update(ctx context.Context, m *models.Member) (*models.Member, error) {
	q := `UPDATE members m SET full_name = $3, phone = $4, position = $5, department = $6,
		role = $7, status = $8, updated_at = $9
		WHERE m.organization_id = $1 AND m.id = $2
		RETURNING ` + memberColumns
	return r.getOne(ctx, "update member", q, m.OrganizationID, m.ID, m.FullName, m.Phone,
		m.Position, m.Department, m.Role, m.Status, time.Now())
}
