package models

import (
	"time"

	"github.com/google/uuid"
)

// Region selects the domestic or overseas column of an allowance rate.
type Region string

const (
	RegionDomestic Region = "domestic"
	RegionOverseas Region = "overseas"
)

// Rates are the four reimbursement amounts of one position.
type Rates struct {
	DomesticDaily         float64 `json:"domestic_daily"`
	DomesticAccommodation float64 `json:"domestic_accommodation"`
	OverseasDaily         float64 `json:"overseas_daily"`
	OverseasAccommodation float64 `json:"overseas_accommodation"`
}

// AllowanceRate is keyed by (organization, position); at most one row per key.
type AllowanceRate struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Position       Position  `json:"position"`
	Rates
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRates is the table seeded into every new organization.
var DefaultRates = map[Position]Rates{
	PositionTopExecutive:   {DomesticDaily: 8000, DomesticAccommodation: 15000, OverseasDaily: 12000, OverseasAccommodation: 25000},
	PositionDirector:       {DomesticDaily: 7000, DomesticAccommodation: 12000, OverseasDaily: 10500, OverseasAccommodation: 20000},
	PositionDepartmentHead: {DomesticDaily: 6000, DomesticAccommodation: 10000, OverseasDaily: 9000, OverseasAccommodation: 18000},
	PositionSectionHead:    {DomesticDaily: 5500, DomesticAccommodation: 9000, OverseasDaily: 8250, OverseasAccommodation: 16000},
	PositionSupervisor:     {DomesticDaily: 5000, DomesticAccommodation: 8000, OverseasDaily: 7500, OverseasAccommodation: 14000},
	PositionStaff:          {DomesticDaily: 5000, DomesticAccommodation: 8000, OverseasDaily: 7500, OverseasAccommodation: 14000},
}
