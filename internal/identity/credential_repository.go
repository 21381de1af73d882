package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/pkg/database"
)

// Credential is an email/password identity held by the credential service.
type Credential struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ErrEmailTaken is returned when a credential for the email already exists.
var ErrEmailTaken = apperr.Validation("sign up", "email already registered")

// CredentialRepository handles credential persistence.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a credential repository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// Create inserts a credential.
func (r *CredentialRepository) Create(ctx context.Context, email, passwordHash string) (*Credential, error) {
	const q = `INSERT INTO credentials (email, password_hash) VALUES ($1, $2)
		RETURNING id, email, password_hash, created_at`
	var c Credential
	err := r.pool.QueryRow(ctx, q, email, passwordHash).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Store("create credential", err)
	}
	return &c, nil
}

// GetByEmail returns a credential by email.
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*Credential, error) {
	const q = `SELECT id, email, password_hash, created_at FROM credentials WHERE email = $1`
	var c Credential
	err := r.pool.QueryRow(ctx, q, email).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperr.NotFound("get credential", "credential")
		}
		return nil, apperr.Store("get credential", err)
	}
	return &c, nil
}
