package dataset

import (
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/pkg/usda"
)

// MergeRent left-joins rent onto rows by zero-padded 3-digit county and
// returns how many rows matched. Unmatched rows keep their current value.
func MergeRent(rows []model.Tract, rentByCounty map[string]float64) int {
	matched := 0
	for i := range rows {
		if rows[i].CountyID == "" {
			continue
		}
		if v, ok := rentByCounty[usda.PadCounty(rows[i].CountyID)]; ok {
			rows[i].AvgRentPerSqft = model.Float(v)
			matched++
		}
	}
	return matched
}
