package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanType is the billing tier of an organization.
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// Valid reports whether p is a known plan tier.
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// SeatLimit returns the member seat limit of the plan. Zero means unlimited.
func (p PlanType) SeatLimit() int {
	switch p {
	case PlanPro:
		return 50
	case PlanEnterprise:
		return 0
	default:
		return 1
	}
}

// MonthlyPrice returns the monthly charge of the plan in yen.
func (p PlanType) MonthlyPrice() float64 {
	switch p {
	case PlanPro:
		return 9800
	case PlanEnterprise:
		return 49800
	default:
		return 0
	}
}

// Organization is the tenant boundary. Every other entity carries its ID.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	PlanType  PlanType  `json:"plan_type"`
	UserLimit int       `json:"user_limit"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
