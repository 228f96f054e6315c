package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/model"
)

func f(v float64) *float64 { return model.Float(v) }

func tract(id string, vals ...float64) model.Tract {
	return model.Tract{
		TractID:           id,
		City:              "City " + id,
		CountyID:          "163",
		Lat:               f(42.3),
		Lon:               f(-83.1),
		MedianAge:         f(vals[0]),
		MedianIncome:      f(vals[1]),
		PovertyPercent:    f(vals[2]),
		PopulationDensity: f(vals[3]),
		NearbyRestaurants: f(vals[4]),
		NearbyCoffeeShops: f(vals[5]),
		NearbyMosques:     f(vals[6]),
		TransitStops:      f(vals[7]),
		PedestrianScore:   f(vals[8]),
	}
}

func sampleTracts() []model.Tract {
	a := tract("100", 30, 30000, 10, 4, 10, 2, 1, 5, 1.0)
	b := tract("200", 40, 70000, 30, 30, 20, 4, 3, 15, 3.0)
	c := tract("300", 35, 50000, 20, 10, 5, 1, 0, 2, 0.5)
	c.TransitStops = nil
	d := tract("400", 35, 50000, 20, 10, 5, 1, 0, 2, 0.5)
	d.Lat = nil
	return []model.Tract{a, b, c, d}
}

func TestPrepare_DropsIncompleteAndScales(t *testing.T) {
	rows, rep := Prepare(sampleTracts())
	require.Len(t, rows, 2)

	assert.Equal(t, 4, rep.Input)
	assert.Equal(t, 2, rep.Kept)
	assert.Equal(t, []string{"300", "400"}, rep.Dropped)
	assert.Equal(t, 1, rep.MissingByColumn["transit_stops"])
	assert.Equal(t, 1, rep.MissingByColumn["lat"])

	a, b := rows[0], rows[1]
	assert.Equal(t, "100", a.TractID)
	for i, v := range a.numeric() {
		assert.InDelta(t, 0, *v, 1e-12, NumericColumns[i])
	}
	for i, v := range b.numeric() {
		assert.InDelta(t, 1, *v, 1e-12, NumericColumns[i])
	}
	assert.InDelta(t, 42.3, a.Lat, 1e-12)
}

func TestPrepare_BracketsUseRawValues(t *testing.T) {
	rows, _ := Prepare(sampleTracts())
	require.Len(t, rows, 2)
	assert.Equal(t, "Low", rows[0].IncomeBracket)
	assert.Equal(t, "Low", rows[0].DensityBracket)
	assert.Equal(t, "Upper-Middle", rows[1].IncomeBracket)
	assert.Equal(t, "Dense", rows[1].DensityBracket)
}

func TestPrepare_PovertyIsFraction(t *testing.T) {
	// A single row scales every column to 0, so check the fraction via a
	// third row between the other two.
	ts := sampleTracts()[:2]
	mid := tract("150", 35, 50000, 20, 17, 15, 3, 2, 10, 2.0)
	rows, _ := Prepare(append(ts, mid))
	require.Len(t, rows, 3)
	// 0.2 sits halfway between 0.1 and 0.3.
	assert.InDelta(t, 0.5, rows[2].Poverty, 1e-9)
}

func TestPrepare_Empty(t *testing.T) {
	rows, rep := Prepare(nil)
	assert.Empty(t, rows)
	assert.Zero(t, rep.Kept)
}

func TestMinMax(t *testing.T) {
	xs := []float64{2, 4, 6}
	MinMax(xs)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, xs, 1e-12)

	constant := []float64{7, 7, 7}
	MinMax(constant)
	assert.Equal(t, []float64{0, 0, 0}, constant)

	MinMax(nil)
}

func TestBrackets(t *testing.T) {
	tests := []struct {
		income float64
		want   string
	}{
		{0, ""},
		{-5, ""},
		{1, "Low"},
		{35000, "Low"},
		{35000.01, "Middle"},
		{60000, "Middle"},
		{100000, "Upper-Middle"},
		{100001, "High"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IncomeBracket(tt.income), "income %v", tt.income)
	}

	density := map[float64]string{
		0: "", 0.5: "Low", 5: "Low", 5.1: "Moderate", 20: "Moderate",
		50: "Dense", 50.5: "Very Dense",
	}
	for in, want := range density {
		assert.Equal(t, want, DensityBracket(in), "density %v", in)
	}
}

func TestAddFeatures(t *testing.T) {
	rows, _ := Prepare(sampleTracts())
	feats := AddFeatures(rows)
	require.Len(t, feats, 2)

	a, b := feats[0], feats[1]
	assert.InDelta(t, 0, a.RestaurantToCoffeeRatio, 1e-9)
	assert.InDelta(t, 0, a.AffordabilityIndex, 1e-9)

	assert.InDelta(t, 1, b.RestaurantToCoffeeRatio, 1e-5)
	assert.InDelta(t, 1, b.CoffeeShopDensity, 1e-5)
	assert.InDelta(t, 3, b.PotentialDemandIndex, 1e-5)
	assert.InDelta(t, 1, b.MosqueIndex, 1e-5)
	assert.InDelta(t, 1, b.AffordabilityIndex, 1e-5)
}

func TestAddFeatures_ZeroDenominator(t *testing.T) {
	p := Prepared{NearbyRestaurants: 0.5}
	out := AddFeatures([]Prepared{p})
	assert.InDelta(t, 0.5/Epsilon, out[0].RestaurantToCoffeeRatio, 1e-3)
}

func TestVector(t *testing.T) {
	rows, _ := Prepare(sampleTracts())
	feats := AddFeatures(rows)
	v := feats[1].Vector()
	require.Len(t, v, len(VectorColumns()))
	assert.InDelta(t, 1, v[0], 1e-12)
	assert.InDelta(t, feats[1].AffordabilityIndex, v[len(v)-1], 1e-12)
	assert.Equal(t, "Median Age", VectorColumns()[0])
	assert.Equal(t, "affordability_index", VectorColumns()[13])
}

func TestPrepare_NonFiniteIsMissing(t *testing.T) {
	ts := sampleTracts()[:2]
	nan := tract("500", 35, 50000, 20, 10, 5, 1, 0, 2, 0.5)
	nan.MedianIncome = f(math.NaN())
	inf := tract("600", 35, 50000, 20, 10, 5, 1, 0, 2, 0.5)
	inf.PopulationDensity = f(math.Inf(1))
	noLat := tract("700", 35, 50000, 20, 10, 5, 1, 0, 2, 0.5)
	noLat.Lat = f(math.NaN())

	rows, rep := Prepare(append(ts, nan, inf, noLat))
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"500", "600", "700"}, rep.Dropped)
	assert.Equal(t, 1, rep.MissingByColumn["Median Household Income"])
	assert.Equal(t, 1, rep.MissingByColumn["Population Density (Persons/Acre)"])
	assert.Equal(t, 1, rep.MissingByColumn["lat"])

	// Scaling is unaffected by the dropped rows.
	for i, v := range rows[1].numeric() {
		assert.InDelta(t, 1, *v, 1e-12, NumericColumns[i])
	}
}
