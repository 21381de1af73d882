package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Directory reads a member joined with its organization.
type Directory interface {
	GetByCredential(ctx context.Context, credentialID uuid.UUID) (*models.Member, *models.Organization, error)
}

// Resolver maps a credential to exactly one member and one organization.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the active member bound to credentialID and its organization.
func (r *Resolver) Resolve(ctx context.Context, credentialID uuid.UUID) (*models.Member, *models.Organization, error) {
	member, org, err := r.dir.GetByCredential(ctx, credentialID)
	if err != nil {
		return nil, nil, apperr.Store("resolve identity", err)
	}
	if member.Status != models.MemberActive {
		return nil, nil, apperr.Forbidden("resolve identity", "member is %s", member.Status)
	}
	if member.OrganizationID != org.ID {
		return nil, nil, apperr.NotFound("resolve identity", "organization")
	}
	return member, org, nil
}
