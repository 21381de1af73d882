package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's authority inside its organization.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleApprover Role = "approver"
	RoleUser     Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleApprover || r == RoleUser
}

// CanApprove reports whether the role belongs to the approval chain.
func (r Role) CanApprove() bool {
	return r == RoleAdmin || r == RoleApprover
}

// MemberStatus is the soft lifecycle of a member.
type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
	MemberInvited  MemberStatus = "invited"
)

// Valid reports whether s is a known member status.
func (s MemberStatus) Valid() bool {
	return s == MemberActive || s == MemberInactive || s == MemberInvited
}

// Member is a person's account within exactly one organization.
type Member struct {
	ID             uuid.UUID    `json:"id"`
	OrganizationID uuid.UUID    `json:"organization_id"`
	CredentialID   *uuid.UUID   `json:"auth_user_id,omitempty"`
	FullName       string       `json:"full_name"`
	Email          string       `json:"email"`
	Phone          *string      `json:"phone"`
	Position       *Position    `json:"position"`
	Department     *string      `json:"department"`
	Role           Role         `json:"role"`
	Status         MemberStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// CanApprove reports whether the member may decide pending applications.
func (m *Member) CanApprove() bool {
	return m != nil && m.Status == MemberActive && m.Role.CanApprove()
}

// IsAdmin reports whether the member holds the admin role.
func (m *Member) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}

// Applicant is the applicant summary embedded in application reads.
type Applicant struct {
	FullName   string  `json:"full_name"`
	Department *string `json:"department"`
}
