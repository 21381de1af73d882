package models

import (
	"time"

	"github.com/google/uuid"
)

// BillingStatus is the payment state of a billing record.
type BillingStatus string

const (
	BillingPending BillingStatus = "pending"
	BillingPaid    BillingStatus = "paid"
	BillingFailed  BillingStatus = "failed"
)

// BillingRecord is an append-only ledger row; only Status changes after insert.
type BillingRecord struct {
	ID             uuid.UUID     `json:"id"`
	OrganizationID uuid.UUID     `json:"organization_id"`
	Period         string        `json:"period"`
	PlanType       PlanType      `json:"plan_type"`
	Amount         float64       `json:"amount"`
	Status         BillingStatus `json:"status"`
	InvoiceURL     *string       `json:"invoice_url"`
	CreatedAt      time.Time     `json:"created_at"`
}
