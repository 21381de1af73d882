package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Registration steps reported by a partial registration failure.
const (
	StepOrganization = "organization"
	StepMember       = "member"
	StepAllowances   = "allowances"
	StepSession      = "session"
)

// OrganizationCreator creates tenants.
type OrganizationCreator interface {
	Create(ctx context.Context, name string, plan models.PlanType, userLimit int) (*models.Organization, error)
}

// MemberWriter creates members and activates invited ones.
type MemberWriter interface {
	Create(ctx context.Context, m *models.Member) error
	GetInvitedByEmail(ctx context.Context, email string) (*models.Member, error)
	Activate(ctx context.Context, memberID, credentialID uuid.UUID, fullName string) (*models.Member, error)
}

// AllowanceSeeder seeds the default allowance table of a new organization.
type AllowanceSeeder interface {
	SeedDefaults(ctx context.Context, orgID uuid.UUID) error
}

// RegisterInput is a new organization with its first member.
type RegisterInput struct {
	Email            string
	Password         string
	FullName         string
	OrganizationName string
	Department       *string
	Position         *models.Position
}

// Registration is the result of a completed registration or invitation acceptance.
type Registration struct {
	Token        string               `json:"token"`
	Member       *models.Member       `json:"user"`
	Organization *models.Organization `json:"organization"`
}

// Registrar runs the multi-step registration. Steps that committed are not
// rolled back when a later step fails.
type Registrar struct {
	creds      *CredentialService
	orgs       OrganizationCreator
	members    MemberWriter
	allowances AllowanceSeeder
	resolver   *Resolver
	logger     *zap.Logger
}

// NewRegistrar creates a registrar.
func NewRegistrar(creds *CredentialService, orgs OrganizationCreator, members MemberWriter, allowances AllowanceSeeder, resolver *Resolver, logger *zap.Logger) *Registrar {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrar{creds: creds, orgs: orgs, members: members, allowances: allowances, resolver: resolver, logger: logger}
}

// Register creates a credential, a free organization, its admin member and
// the default allowance table, then signs the new member in.
func (r *Registrar) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.OrganizationName = strings.TrimSpace(in.OrganizationName)
	if in.FullName == "" {
		return nil, apperr.Validation("register", "full_name is required")
	}
	if in.OrganizationName == "" {
		return nil, apperr.Validation("register", "organization_name is required")
	}
	if in.Position != nil && !in.Position.Valid() {
		return nil, apperr.Validation("register", "unknown position %q", *in.Position)
	}

	cred, err := r.creds.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	plan := models.PlanFree
	org, err := r.orgs.Create(ctx, in.OrganizationName, plan, plan.SeatLimit())
	if err != nil {
		return nil, r.partial(StepOrganization, err, zap.String("credential_id", cred.ID.String()))
	}

	member := &models.Member{
		OrganizationID: org.ID,
		CredentialID:   &cred.ID,
		FullName:       in.FullName,
		Email:          cred.Email,
		Position:       in.Position,
		Department:     in.Department,
		Role:           models.RoleAdmin,
		Status:         models.MemberActive,
	}
	if err := r.members.Create(ctx, member); err != nil {
		return nil, r.partial(StepMember, err, zap.String("organization_id", org.ID.String()))
	}

	if err := r.allowances.SeedDefaults(ctx, org.ID); err != nil {
		return nil, r.partial(StepAllowances, err, zap.String("organization_id", org.ID.String()))
	}

	token, err := r.creds.issue(ctx, cred)
	if err != nil {
		return nil, r.partial(StepSession, err, zap.String("organization_id", org.ID.String()))
	}
	r.logger.Info("organization registered",
		zap.String("organization_id", org.ID.String()),
		zap.String("member_id", member.ID.String()),
	)
	return &Registration{Token: token.Value, Member: member, Organization: org}, nil
}

// AcceptInvitation creates a credential for an invited email, links it to
// the invited member and activates that member.
func (r *Registrar) AcceptInvitation(ctx context.Context, email, password, fullName string) (*Registration, error) {
	invited, err := r.members.GetInvitedByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	cred, err := r.creds.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(fullName)
	if name == "" {
		name = invited.FullName
	}
	if _, err := r.members.Activate(ctx, invited.ID, cred.ID, name); err != nil {
		return nil, r.partial(StepMember, err, zap.String("member_id", invited.ID.String()))
	}
	member, org, err := r.resolver.Resolve(ctx, cred.ID)
	if err != nil {
		return nil, r.partial(StepSession, err, zap.String("member_id", invited.ID.String()))
	}
	token, err := r.creds.issue(ctx, cred)
	if err != nil {
		return nil, r.partial(StepSession, err, zap.String("member_id", invited.ID.String()))
	}
	r.logger.Info("invitation accepted",
		zap.String("organization_id", org.ID.String()),
		zap.String("member_id", member.ID.String()),
	)
	return &Registration{Token: token.Value, Member: member, Organization: org}, nil
}

func (r *Registrar) partial(step string, err error, fields ...zap.Field) error {
	r.logger.Error("registration incomplete", append(fields, zap.String("step", step), zap.Error(err))...)
	return apperr.PartialRegistration(step, err)
}
