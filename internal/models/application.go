package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplicationKind distinguishes trip requests from plain expense claims.
type ApplicationKind string

const (
	KindBusinessTrip ApplicationKind = "business_trip"
	KindExpense      ApplicationKind = "expense"
)

// Valid reports whether k is a known kind.
func (k ApplicationKind) Valid() bool {
	return k == KindBusinessTrip || k == KindExpense
}

// ApplicationStatus is a state of the approval state machine.
type ApplicationStatus string

const (
	StatusDraft    ApplicationStatus = "draft"
	StatusPending  ApplicationStatus = "pending"
	StatusApproved ApplicationStatus = "approved"
	StatusRejected ApplicationStatus = "rejected"
	StatusReturned ApplicationStatus = "returned"
)

// Terminal reports whether no transition leaves s.
func (s ApplicationStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Editable reports whether the applicant may still edit in state s.
func (s ApplicationStatus) Editable() bool {
	return s == StatusDraft || s == StatusReturned
}

// Application is a reimbursement or trip request.
type Application struct {
	ID              uuid.UUID         `json:"id"`
	OrganizationID  uuid.UUID         `json:"organization_id"`
	ApplicantID     uuid.UUID         `json:"applicant_id"`
	Type            ApplicationKind   `json:"type"`
	Title           string            `json:"title"`
	Purpose         *string           `json:"purpose"`
	Status          ApplicationStatus `json:"status"`
	EstimatedAmount float64           `json:"estimated_amount"`
	ActualAmount    float64           `json:"actual_amount"`
	StartDate       *time.Time        `json:"start_date"`
	EndDate         *time.Time        `json:"end_date"`
	Destination     *string           `json:"destination"`
	Details         Details           `json:"details"`
	Attachments     []Attachment      `json:"attachments"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Applicant       *Applicant        `json:"applicant,omitempty"`
}

// TripDetails is the structured payload of a business_trip application.
type TripDetails struct {
	Region                 Region  `json:"region"`
	Days                   int     `json:"days"`
	Nights                 int     `json:"nights"`
	Transportation         string  `json:"transportation,omitempty"`
	TransportationCost     float64 `json:"transportation_cost"`
	DailyAllowance         float64 `json:"daily_allowance"`
	AccommodationAllowance float64 `json:"accommodation_allowance"`
	OtherCost              float64 `json:"other_cost"`
	Notes                  string  `json:"notes,omitempty"`
}

// ExpenseItem is one line of an expense claim.
type ExpenseItem struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

// ExpenseDetails is the structured payload of an expense application.
type ExpenseDetails struct {
	Category    string        `json:"category"`
	Vendor      string        `json:"vendor,omitempty"`
	ExpenseDate *time.Time    `json:"expense_date,omitempty"`
	Items       []ExpenseItem `json:"items,omitempty"`
}

// Total sums the item amounts.
func (d *ExpenseDetails) Total() float64 {
	var sum float64
	for _, it := range d.Items {
		sum += it.Amount
	}
	return sum
}

// Details is a tagged union keyed by application kind. At most one of Trip or
// Expense is set; the zero value means "no details".
type Details struct {
	Trip    *TripDetails
	Expense *ExpenseDetails
}

// Kind returns the kind the payload belongs to, or "" when empty.
func (d Details) Kind() ApplicationKind {
	switch {
	case d.Trip != nil:
		return KindBusinessTrip
	case d.Expense != nil:
		return KindExpense
	}
	return ""
}

// IsZero reports whether no payload is set.
func (d Details) IsZero() bool {
	return d.Trip == nil && d.Expense == nil
}

type detailsEnvelope struct {
	Kind ApplicationKind `json:"kind"`
}

// MarshalJSON encodes the payload flattened with a "kind" tag.
func (d Details) MarshalJSON() ([]byte, error) {
	switch {
	case d.Trip != nil && d.Expense != nil:
		return nil, fmt.Errorf("details: both trip and expense payloads set")
	case d.Trip != nil:
		return json.Marshal(struct {
			Kind ApplicationKind `json:"kind"`
			*TripDetails
		}{KindBusinessTrip, d.Trip})
	case d.Expense != nil:
		return json.Marshal(struct {
			Kind ApplicationKind `json:"kind"`
			*ExpenseDetails
		}{KindExpense, d.Expense})
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes a payload by its "kind" tag.
func (d *Details) UnmarshalJSON(data []byte) error {
	*d = Details{}
	if len(data) == 0 || string(data) == "null" || string(data) == "{}" {
		return nil
	}
	var env detailsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case KindBusinessTrip:
		var t TripDetails
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		d.Trip = &t
	case KindExpense:
		var e ExpenseDetails
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		d.Expense = &e
	default:
		return fmt.Errorf("details: unknown kind %q", env.Kind)
	}
	return nil
}

// Attachment references an uploaded receipt or document in object storage.
type Attachment struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UploadedBy  uuid.UUID `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
