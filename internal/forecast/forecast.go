// Package forecast turns monthly receipts into a revenue forecast and a volume tier.
package forecast

import (
	"errors"
	"fmt"
	"sort"

	"prospector/internal/model"
)

// VenueProfile is the empirical alcohol/food revenue split for a venue type.
type VenueProfile struct {
	Label      string  `json:"label" yaml:"label"`
	AlcoholPct float64 `json:"alcoholPct" yaml:"alcohol_pct"`
	FoodPct    float64 `json:"foodPct" yaml:"food_pct"`
}

const (
	FineDining       = "fine_dining"
	DefaultVenueType = "casual_dining"

	// fineDiningFoodMultiplier is applied on top of the fine dining ratio only.
	fineDiningFoodMultiplier = 1.75
)

// Profiles is the fixed venue table.
var Profiles = map[string]VenueProfile{
	"bar":           {Label: "Bar / Tavern", AlcoholPct: 0.85, FoodPct: 0.15},
	"nightclub":     {Label: "Nightclub", AlcoholPct: 0.90, FoodPct: 0.10},
	"sports_bar":    {Label: "Sports Bar", AlcoholPct: 0.60, FoodPct: 0.40},
	"brewpub":       {Label: "Brewpub", AlcoholPct: 0.55, FoodPct: 0.45},
	"casual_dining": {Label: "Casual Dining", AlcoholPct: 0.30, FoodPct: 0.70},
	FineDining:      {Label: "Fine Dining", AlcoholPct: 0.35, FoodPct: 0.65},
	"hotel":         {Label: "Hotel", AlcoholPct: 0.40, FoodPct: 0.60},
	"event_venue":   {Label: "Event Venue", AlcoholPct: 0.50, FoodPct: 0.50},
}

var ErrUnknownVenue = errors.New("unknown venue type")

// Result is a current-state forecast for one account.
type Result struct {
	VenueType     string  `json:"venueType"`
	Months        int     `json:"months"`
	AvgAlcohol    float64 `json:"avgAlcohol"`
	EstFood       float64 `json:"estFood"`
	ForecastTotal float64 `json:"forecastTotal"`
	AlcoholPct    float64 `json:"alcoholPct"`
	FoodPct       float64 `json:"foodPct"`
	Tier          string  `json:"tier"`
}

// Profile resolves a venue type; an empty type maps to the default profile.
func Profile(venueType string) (string, VenueProfile, error) {
	if venueType == "" {
		venueType = DefaultVenueType
	}
	p, ok := Profiles[venueType]
	if !ok {
		return venueType, VenueProfile{}, fmt.Errorf("%w: %s", ErrUnknownVenue, venueType)
	}
	return venueType, p, nil
}

// VenueTypes lists the table keys in stable order.
func VenueTypes() []string {
	out := make([]string, 0, len(Profiles))
	for k := range Profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Compute forecasts revenue for the given history and venue type.
func Compute(history []model.MonthlyReceipt, venueType string) (Result, error) {
	vt, p, err := Profile(venueType)
	if err != nil {
		return Result{}, err
	}
	res := computeWith(history, p)
	if vt == FineDining {
		res.EstFood *= fineDiningFoodMultiplier
		res.ForecastTotal = res.AvgAlcohol + res.EstFood
	}
	res.VenueType = vt
	res.Tier = TierFor(res.ForecastTotal)
	return res, nil
}

// computeWith applies the generic ratio with no venue-specific overrides.
func computeWith(history []model.MonthlyReceipt, p VenueProfile) Result {
	sum, n := 0.0, 0
	for _, m := range history {
		if m.Total > 0 {
			sum += m.Total
			n++
		}
	}
	res := Result{Months: n, AlcoholPct: p.AlcoholPct, FoodPct: p.FoodPct}
	if n > 0 {
		res.AvgAlcohol = sum / float64(n)
	}
	if p.AlcoholPct > 0 {
		res.EstFood = res.AvgAlcohol / p.AlcoholPct * p.FoodPct
	}
	res.ForecastTotal = res.AvgAlcohol + res.EstFood
	return res
}
