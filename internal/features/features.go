package features

// Epsilon keeps derived ratios finite when a normalized denominator is 0.
const Epsilon = 1e-6

// Featured is a prepared tract with its derived site features.
type Featured struct {
	Prepared
	RestaurantToCoffeeRatio float64 `csv:"restaurant_to_coffee_ratio" json:"restaurant_to_coffee_ratio"`
	CoffeeShopDensity       float64 `csv:"coffee_shop_density" json:"coffee_shop_density"`
	PotentialDemandIndex    float64 `csv:"potential_demand_index" json:"potential_demand_index"`
	MosqueIndex             float64 `csv:"mosque_index" json:"mosque_index"`
	AffordabilityIndex      float64 `csv:"affordability_index" json:"affordability_index"`
}

// FeatureColumns names the derived columns in the order AddFeatures fills
// them.
var FeatureColumns = []string{
	"restaurant_to_coffee_ratio",
	"coffee_shop_density",
	"potential_demand_index",
	"mosque_index",
	"affordability_index",
}

// AddFeatures derives the site features from normalized inputs.
func AddFeatures(rows []Prepared) []Featured {
	out := make([]Featured, len(rows))
	for i, p := range rows {
		out[i] = Featured{
			Prepared:                p,
			RestaurantToCoffeeRatio: p.NearbyRestaurants / (p.NearbyCoffeeShops + Epsilon),
			CoffeeShopDensity:       p.NearbyCoffeeShops / (p.PopulationDensity + Epsilon),
			PotentialDemandIndex:    (p.PedestrianScore + p.TransitStops + p.PopulationDensity) / (p.NearbyCoffeeShops + Epsilon),
			MosqueIndex:             p.NearbyMosques / (p.PopulationDensity + Epsilon),
			AffordabilityIndex:      p.MedianIncome / (p.Poverty + Epsilon),
		}
	}
	return out
}

// Vector returns the classifier input for f: the nine normalized inputs
// followed by the five derived features.
func (f *Featured) Vector() []float64 {
	p := f.Prepared
	v := make([]float64, 0, len(NumericColumns)+len(FeatureColumns))
	for _, x := range p.numeric() {
		v = append(v, *x)
	}
	return append(v,
		f.RestaurantToCoffeeRatio,
		f.CoffeeShopDensity,
		f.PotentialDemandIndex,
		f.MosqueIndex,
		f.AffordabilityIndex,
	)
}

// VectorColumns names the entries of Featured.Vector.
func VectorColumns() []string {
	cols := make([]string, 0, len(NumericColumns)+len(FeatureColumns))
	cols = append(cols, NumericColumns...)
	return append(cols, FeatureColumns...)
}
