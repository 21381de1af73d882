package allowances

import (
	"github.com/ryohi-cloud/backend/internal/apperr"
	"github.com/ryohi-cloud/backend/internal/models"
)

// Estimate is the allowance part of a business trip.
type Estimate struct {
	Position      models.Position `json:"position"`
	Region        models.Region   `json:"region"`
	Days          int             `json:"days"`
	Nights        int             `json:"nights"`
	DailyRate     float64         `json:"daily_rate"`
	LodgingRate   float64         `json:"accommodation_rate"`
	Daily         float64         `json:"daily_allowance"`
	Accommodation float64         `json:"accommodation_allowance"`
	Total         float64         `json:"total"`
}

// Calculate applies rate to a trip of days and nights in region.
func Calculate(rate *models.AllowanceRate, region models.Region, days, nights int) (Estimate, error) {
	if days < 0 || nights < 0 {
		return Estimate{}, apperr.Validation("estimate allowance", "days and nights must not be negative")
	}
	if nights > days {
		return Estimate{}, apperr.Validation("estimate allowance", "nights cannot exceed days")
	}
	e := Estimate{Position: rate.Position, Region: region, Days: days, Nights: nights}
	switch region {
	case models.RegionDomestic, "":
		e.Region = models.RegionDomestic
		e.DailyRate, e.LodgingRate = rate.DomesticDaily, rate.DomesticAccommodation
	case models.RegionOverseas:
		e.DailyRate, e.LodgingRate = rate.OverseasDaily, rate.OverseasAccommodation
	default:
		return Estimate{}, apperr.Validation("estimate allowance", "unknown region %q", region)
	}
	e.Daily = e.DailyRate * float64(days)
	e.Accommodation = e.LodgingRate * float64(nights)
	e.Total = e.Daily + e.Accommodation
	return e, nil
}
