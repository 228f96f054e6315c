// Package features turns the collected tract dataset into model inputs:
// cleaning and min-max normalization, derived ratios, and the weighted
// success score.
package features

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cafe-compass/compass-cli/internal/model"
)

// NumericColumns are the inputs Prepare normalizes, in matrix order.
var NumericColumns = []string{
	"Median Age",
	"Median Household Income",
	"Percent People in Poverty",
	"Population Density (Persons/Acre)",
	"nearby_restaurants",
	"nearby_coffee_shops",
	"nearby_mosques",
	"transit_stops",
	"pedestrian_score",
}

// Prepared is a cleaned tract with its numeric inputs scaled to [0, 1].
// Brackets are taken from the raw values before scaling.
type Prepared struct {
	TractID              string   `csv:"Tract Code (id)" json:"tract_id"`
	City                 string   `csv:"City" json:"city"`
	CountyID             string   `csv:"county_id" json:"county_id"`
	Lat                  float64  `csv:"lat" json:"lat"`
	Lon                  float64  `csv:"lon" json:"lon"`
	MedianAge            float64  `csv:"Median Age" json:"median_age"`
	MedianIncome         float64  `csv:"Median Household Income" json:"median_income"`
	Poverty              float64  `csv:"Percent People in Poverty" json:"poverty"`
	PopulationDensity    float64  `csv:"Population Density (Persons/Acre)" json:"population_density"`
	NearbyRestaurants    float64  `csv:"nearby_restaurants" json:"nearby_restaurants"`
	NearbyCoffeeShops    float64  `csv:"nearby_coffee_shops" json:"nearby_coffee_shops"`
	NearbyMosques        float64  `csv:"nearby_mosques" json:"nearby_mosques"`
	TransitStops         float64  `csv:"transit_stops" json:"transit_stops"`
	PedestrianScore      float64  `csv:"pedestrian_score" json:"pedestrian_score"`
	AvgRentPerSqft       *float64 `csv:"avg_rent_per_sqft" json:"avg_rent_per_sqft,omitempty"`
	CoffeeSearchInterest *float64 `csv:"coffee_search_interest" json:"coffee_search_interest,omitempty"`
	IncomeBracket        string   `csv:"income_bracket" json:"income_bracket"`
	DensityBracket       string   `csv:"density_bracket" json:"density_bracket"`
}

// numeric returns pointers to the NumericColumns fields, in order.
func (p *Prepared) numeric() []*float64 {
	return []*float64{
		&p.MedianAge, &p.MedianIncome, &p.Poverty, &p.PopulationDensity,
		&p.NearbyRestaurants, &p.NearbyCoffeeShops, &p.NearbyMosques,
		&p.TransitStops, &p.PedestrianScore,
	}
}

// PrepareReport describes what Prepare dropped.
type PrepareReport struct {
	Input           int            `json:"input"`
	Kept            int            `json:"kept"`
	Dropped         []string       `json:"dropped,omitempty"`
	MissingByColumn map[string]int `json:"missing_by_column"`
}

// Prepare drops rows missing any numeric input or coordinate (nil, NaN or
// infinite), converts poverty percent to a fraction, assigns income and
// density brackets, and min-max scales the numeric inputs across the kept
// rows.
func Prepare(tracts []model.Tract) ([]Prepared, PrepareReport) {
	rep := PrepareReport{Input: len(tracts), MissingByColumn: make(map[string]int)}

	rows := make([]Prepared, 0, len(tracts))
	for i := range tracts {
		t := &tracts[i]
		vals := []*float64{
			t.MedianAge, t.MedianIncome, t.PovertyPercent, t.PopulationDensity,
			t.NearbyRestaurants, t.NearbyCoffeeShops, t.NearbyMosques,
			t.TransitStops, t.PedestrianScore,
		}
		complete := true
		if missing(t.Lat) {
			rep.MissingByColumn["lat"]++
			complete = false
		}
		if missing(t.Lon) {
			rep.MissingByColumn["lon"]++
			complete = false
		}
		for j, v := range vals {
			if missing(v) {
				rep.MissingByColumn[NumericColumns[j]]++
				complete = false
			}
		}
		if !complete {
			rep.Dropped = append(rep.Dropped, t.TractID)
			continue
		}

		p := Prepared{
			TractID:              t.TractID,
			City:                 t.City,
			CountyID:             t.CountyID,
			Lat:                  *t.Lat,
			Lon:                  *t.Lon,
			AvgRentPerSqft:       t.AvgRentPerSqft,
			CoffeeSearchInterest: t.CoffeeSearchInterest,
			IncomeBracket:        IncomeBracket(*t.MedianIncome),
			DensityBracket:       DensityBracket(*t.PopulationDensity),
		}
		for j, dst := range p.numeric() {
			*dst = *vals[j]
		}
		p.Poverty /= 100
		rows = append(rows, p)
	}

	scaleColumns(len(rows), len(NumericColumns), func(i, j int) *float64 {
		return rows[i].numeric()[j]
	})

	rep.Kept = len(rows)
	return rows, rep
}

// missing reports whether v is absent or not a finite number.
func missing(v *float64) bool {
	return v == nil || math.IsNaN(*v) || math.IsInf(*v, 0)
}

// IncomeBracket buckets raw median household income with right-closed
// bins. Non-positive income has no bracket.
func IncomeBracket(income float64) string {
	switch {
	case income <= 0:
		return ""
	case income <= 35000:
		return "Low"
	case income <= 60000:
		return "Middle"
	case income <= 100000:
		return "Upper-Middle"
	default:
		return "High"
	}
}

// DensityBracket buckets raw persons per acre with right-closed bins.
func DensityBracket(density float64) string {
	switch {
	case density <= 0:
		return ""
	case density <= 5:
		return "Low"
	case density <= 20:
		return "Moderate"
	case density <= 50:
		return "Dense"
	default:
		return "Very Dense"
	}
}

// MinMax scales xs in place to [0, 1]. A constant column becomes all zeros.
func MinMax(xs []float64) {
	if len(xs) == 0 {
		return
	}
	lo, hi := floats.Min(xs), floats.Max(xs)
	floats.AddConst(-lo, xs)
	if span := hi - lo; span != 0 {
		floats.Scale(1/span, xs)
	}
}

// scaleColumns min-max scales each of cols columns of an n-row table
// addressed through cell.
func scaleColumns(n, cols int, cell func(i, j int) *float64) {
	if n == 0 {
		return
	}
	col := make([]float64, n)
	for j := 0; j < cols; j++ {
		for i := 0; i < n; i++ {
			col[i] = *cell(i, j)
		}
		MinMax(col)
		for i := 0; i < n; i++ {
			*cell(i, j) = col[i]
		}
	}
}
