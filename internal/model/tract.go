// Package model defines the tract dataset schema and the records shared by
// the collection, scoring and classification stages.
package model

// Tract is one row of the tract dataset. The first block of columns comes
// from the demographic export the dataset is seeded with and keeps its
// original headers; everything after it is filled in by collect stages.
//
// Collected numeric values are pointers so that "not collected yet" and
// "collection failed" stay distinguishable from a real zero.
type Tract struct {
	TractID              string   `csv:"Tract Code (id)" json:"tract_id"`
	City                 string   `csv:"City" json:"city"`
	MedianAge            *float64 `csv:"Median Age" json:"median_age"`
	MedianIncome         *float64 `csv:"Median Household Income" json:"median_income"`
	PovertyPercent       *float64 `csv:"Percent People in Poverty" json:"poverty_percent"`
	PopulationDensity    *float64 `csv:"Population Density (Persons/Acre)" json:"population_density"`
	CountyID             string   `csv:"county_id" json:"county_id"`
	Lat                  *float64 `csv:"lat" json:"lat"`
	Lon                  *float64 `csv:"lon" json:"lon"`
	NearbyRestaurants    *float64 `csv:"nearby_restaurants" json:"nearby_restaurants"`
	NearbyCoffeeShops    *float64 `csv:"nearby_coffee_shops" json:"nearby_coffee_shops"`
	NearbyMosques        *float64 `csv:"nearby_mosques" json:"nearby_mosques"`
	TransitStops         *float64 `csv:"transit_stops" json:"transit_stops"`
	PedestrianScore      *float64 `csv:"pedestrian_score" json:"pedestrian_score"`
	AvgRentPerSqft       *float64 `csv:"avg_rent_per_sqft" json:"avg_rent_per_sqft"`
	CoffeeSearchInterest *float64 `csv:"coffee_search_interest" json:"coffee_search_interest"`
}

// HasLocation reports whether the tract has resolved coordinates.
func (t *Tract) HasLocation() bool {
	return t.Lat != nil && t.Lon != nil
}

// HasPlaceCounts reports whether all three nearby-place counts are present.
func (t *Tract) HasPlaceCounts() bool {
	return t.NearbyRestaurants != nil && t.NearbyCoffeeShops != nil && t.NearbyMosques != nil
}

// HasMobility reports whether transit and pedestrian values are present.
func (t *Tract) HasMobility() bool {
	return t.TransitStops != nil && t.PedestrianScore != nil
}

// Missing returns the names of required columns that have no value.
// Rent and search interest are optional enrichments and never reported.
func (t *Tract) Missing() []string {
	var missing []string
	check := func(name string, v *float64) {
		if v == nil {
			missing = append(missing, name)
		}
	}
	if t.TractID == "" {
		missing = append(missing, "tract_id")
	}
	check("median_age", t.MedianAge)
	check("median_income", t.MedianIncome)
	check("poverty_percent", t.PovertyPercent)
	check("population_density", t.PopulationDensity)
	check("lat", t.Lat)
	check("lon", t.Lon)
	check("nearby_restaurants", t.NearbyRestaurants)
	check("nearby_coffee_shops", t.NearbyCoffeeShops)
	check("nearby_mosques", t.NearbyMosques)
	check("transit_stops", t.TransitStops)
	check("pedestrian_score", t.PedestrianScore)
	return missing
}

// Float returns a pointer to v. Handy when filling optional columns.
func Float(v float64) *float64 {
	return &v
}
