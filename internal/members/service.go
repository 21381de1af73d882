package members

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Store is the member persistence the service needs.
type Store interface {
	Create(ctx context.Context, m *models.Member) error
	GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.Member, error)
	List(ctx context.Context, orgID uuid.UUID) ([]*models.Member, error)
	CountSeats(ctx context.Context, orgID uuid.UUID) (int, error)
	Update(ctx context.Context, m *models.Member) (*models.Member, error)
}

// OrganizationReader loads the caller's organization for seat checks.
type OrganizationReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// ProfileInput is a self-service profile edit. Nil fields are left unchanged;
// an empty phone or department clears it.
type ProfileInput struct {
	FullName   *string `json:"full_name"`
	Phone      *string `json:"phone"`
	Department *string `json:"department"`
}

// AdminInput is an admin edit of another member.
type AdminInput struct {
	Role       *models.Role         `json:"role"`
	Position   *models.Position     `json:"position"`
	Department *string              `json:"department"`
	Status     *models.MemberStatus `json:"status"`
}

// InviteInput creates an invited member.
type InviteInput struct {
	Email      string           `json:"email"`
	FullName   string           `json:"full_name"`
	Role       models.Role      `json:"role"`
	Position   *models.Position `json:"position"`
	Department *string          `json:"department"`
}

// Service implements member listing, profile edits and invitations.
type Service struct {
	store  Store
	orgs   OrganizationReader
	logger *zap.Logger
}

// NewService creates a members service.
func NewService(store Store, orgs OrganizationReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, orgs: orgs, logger: logger}
}

// List returns the members of the actor's organization.
func (s *Service) List(ctx context.Context, actor *models.Member) ([]*models.Member, error) {
	return s.store.List(ctx, actor.OrganizationID)
}

// UpdateProfile edits the actor's own name and contact fields.
func (s *Service) UpdateProfile(ctx context.Context, actor *models.Member, in ProfileInput) (*models.Member, error) {
	m, err := s.store.GetByID(ctx, actor.OrganizationID, actor.ID)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, apperr.Validation("update profile", "full_name must not be empty")
		}
		m.FullName = name
	}
	if in.Phone != nil {
		m.Phone = optional(*in.Phone)
	}
	if in.Department != nil {
		m.Department = optional(*in.Department)
	}
	return s.store.Update(ctx, m)
}

// AdminUpdate edits role, position, department or status of a member of the
// actor's organization. Admins cannot demote or deactivate themselves.
func (s *Service) AdminUpdate(ctx context.Context, actor *models.Member, id uuid.UUID, in AdminInput) (*models.Member, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("update member", "admin role required")
	}
	m, err := s.store.GetByID(ctx, actor.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return nil, apperr.Validation("update member", "unknown role %q", *in.Role)
		}
		if m.ID == actor.ID && *in.Role != models.RoleAdmin {
			return nil, apperr.Validation("update member", "admins cannot change their own role")
		}
		m.Role = *in.Role
	}
	if in.Position != nil {
		if *in.Position == "" {
			m.Position = nil
		} else if !in.Position.Valid() {
			return nil, apperr.Validation("update member", "unknown position %q", *in.Position)
		} else {
			p := *in.Position
			m.Position = &p
		}
	}
	if in.Department != nil {
		m.Department = optional(*in.Department)
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperr.Validation("update member", "unknown status %q", *in.Status)
		}
		if m.ID == actor.ID && *in.Status != models.MemberActive {
			return nil, apperr.Validation("update member", "admins cannot deactivate themselves")
		}
		if m.Status == models.MemberInactive && *in.Status != models.MemberInactive {
			if err := s.checkSeat(ctx, actor.OrganizationID, "update member"); err != nil {
				return nil, err
			}
		}
		m.Status = *in.Status
	}
	updated, err := s.store.Update(ctx, m)
	if err != nil {
		return nil, err
	}
	s.logger.Info("member updated",
		zap.String("organization_id", actor.OrganizationID.String()),
		zap.String("member_id", updated.ID.String()),
		zap.String("by", actor.ID.String()),
	)
	return updated, nil
}

// Invite adds an invited member to the actor's organization if a seat is free.
func (s *Service) Invite(ctx context.Context, actor *models.Member, in InviteInput) (*models.Member, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("invite member", "admin role required")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Validation("invite member", "invalid email")
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, apperr.Validation("invite member", "full_name is required")
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, apperr.Validation("invite member", "unknown role %q", role)
	}
	if in.Position != nil && !in.Position.Valid() {
		return nil, apperr.Validation("invite member", "unknown position %q", *in.Position)
	}
	if err := s.checkSeat(ctx, actor.OrganizationID, "invite member"); err != nil {
		return nil, err
	}
	m := &models.Member{
		OrganizationID: actor.OrganizationID,
		FullName:       name,
		Email:          email,
		Position:       in.Position,
		Department:     in.Department,
		Role:           role,
		Status:         models.MemberInvited,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info("member invited",
		zap.String("organization_id", actor.OrganizationID.String()),
		zap.String("member_id", m.ID.String()),
	)
	return m, nil
}

// checkSeat fails when the organization's seat limit is used up. A limit of
// zero is unlimited.
func (s *Service) checkSeat(ctx context.Context, orgID uuid.UUID, op string) error {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return err
	}
	if org.UserLimit <= 0 {
		return nil
	}
	used, err := s.store.CountSeats(ctx, orgID)
	if err != nil {
		return err
	}
	if used >= org.UserLimit {
		return apperr.Validation(op, "seat limit of %d reached for plan %s", org.UserLimit, org.PlanType)
	}
	return nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
