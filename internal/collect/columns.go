package collect

import "github.com/cafe-compass/compass-cli/internal/model"

// Collected column names, as they appear in the dataset header.
const (
	ColRestaurants    = "nearby_restaurants"
	ColCoffeeShops    = "nearby_coffee_shops"
	ColMosques        = "nearby_mosques"
	ColTransitStops   = "transit_stops"
	ColPedestrian     = "pedestrian_score"
	ColRent           = "avg_rent_per_sqft"
	ColSearchInterest = "coffee_search_interest"
)

func field(t *model.Tract, col string) **float64 {
	switch col {
	case ColRestaurants:
		return &t.NearbyRestaurants
	case ColCoffeeShops:
		return &t.NearbyCoffeeShops
	case ColMosques:
		return &t.NearbyMosques
	case ColTransitStops:
		return &t.TransitStops
	case ColPedestrian:
		return &t.PedestrianScore
	case ColRent:
		return &t.AvgRentPerSqft
	case ColSearchInterest:
		return &t.CoffeeSearchInterest
	}
	return nil
}

// Apply writes collected values onto t and returns the columns it did not
// recognise.
func Apply(t *model.Tract, values map[string]float64) []string {
	var unknown []string
	for col, v := range values {
		f := field(t, col)
		if f == nil {
			unknown = append(unknown, col)
			continue
		}
		*f = model.Float(v)
	}
	return unknown
}
