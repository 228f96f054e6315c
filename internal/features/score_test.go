package features

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/dataset"
)

func scoredSample(t *testing.T) []Scored {
	t.Helper()
	rows, _ := Prepare(sampleTracts())
	scored, err := Score(AddFeatures(rows), DefaultWeights)
	require.NoError(t, err)
	return scored
}

func TestScore_WeightedAndSorted(t *testing.T) {
	scored := scoredSample(t)
	require.Len(t, scored, 2)

	assert.Equal(t, "200", scored[0].TractID)
	assert.InDelta(t, 0.90, scored[0].SuccessScore, 1e-9)
	assert.Equal(t, "100", scored[1].TractID)
	assert.InDelta(t, 0.10, scored[1].SuccessScore, 1e-9)

	// Score inputs are rescaled in the result.
	assert.InDelta(t, 1, scored[0].PotentialDemandIndex, 1e-12)
}

func TestScore_StableTies(t *testing.T) {
	rows := []Featured{
		{Prepared: Prepared{TractID: "a"}},
		{Prepared: Prepared{TractID: "b"}},
		{Prepared: Prepared{TractID: "c"}},
	}
	scored, err := Score(rows, DefaultWeights)
	require.NoError(t, err)
	assert.Equal(t, "a", scored[0].TractID)
	assert.Equal(t, "b", scored[1].TractID)
	assert.Equal(t, "c", scored[2].TractID)
	assert.InDelta(t, 0.10, scored[0].SuccessScore, 1e-12)
}

func TestScore_InvalidWeights(t *testing.T) {
	_, err := Score(nil, Weights{Mosque: 1, Demand: 0.5})
	assert.ErrorContains(t, err, "sum to 1")

	_, err = Score(nil, Weights{Mosque: 1.2, Demand: -0.2})
	assert.ErrorContains(t, err, "non-negative")
}

func TestWeightsFromConfig(t *testing.T) {
	w := WeightsFromConfig(config.ScoringConfig{
		MosqueWeight: 0.30, DemandWeight: 0.25, AffordabilityWeight: 0.20,
		PedestrianWeight: 0.15, SaturationWeight: 0.10,
	})
	assert.Equal(t, DefaultWeights, w)
	assert.NoError(t, w.Validate())
}

func TestTopN(t *testing.T) {
	scored := scoredSample(t)
	assert.Len(t, TopN(scored, 1), 1)
	assert.Len(t, TopN(scored, 10), 2)
	assert.Len(t, TopN(scored, 0), 2)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(scoredSample(t))
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 0.10, sum.Min, 1e-9)
	assert.InDelta(t, 0.90, sum.Max, 1e-9)
	assert.InDelta(t, 0.50, sum.Mean, 1e-9)
	assert.Greater(t, sum.StdDev, 0.0)

	one := Summarize([]Scored{{SuccessScore: 0.4}})
	assert.Zero(t, one.StdDev)
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestToTractScores(t *testing.T) {
	scored := scoredSample(t)
	p := 0.7
	scored[0].SuccessProbability = &p
	out := ToTractScores("run-1", scored)
	require.Len(t, out, 2)
	assert.Equal(t, "run-1", out[0].RunID)
	assert.Equal(t, "200", out[0].TractID)
	assert.Equal(t, &p, out[0].Probability)
	assert.Nil(t, out[1].Probability)
}

func TestScore_MissingTokensFromCSV(t *testing.T) {
	const header = "Tract Code (id),City,county_id,lat,lon,Median Age,Median Household Income," +
		"Percent People in Poverty,Population Density (Persons/Acre),nearby_restaurants," +
		"nearby_coffee_shops,nearby_mosques,transit_stops,pedestrian_score\n"
	data := header +
		"1,Dearborn,163,42.3,-83.1,35,NaN,20,10,5,1,3,2,0.5\n" +
		"2,Dearborn,163,42.3,-83.2,30,30000,10,4,10,2,1,5,1.0\n" +
		"3,Warren,099,42.5,-83.0,40,70000,30,30,20,4,3,15,3.0\n" +
		"4,Troy,125,42.6,-83.1,NA,50000,20,10,5,1,0,2,0.5\n" +
		"5,Troy,125,42.6,-83.2,35,50000,20,inf,5,1,0,2,0.5\n" +
		"6,Hamtramck,163,42.4,-83.05,36,45000,25,15,12,3,2,8,N/A\n" +
		"7,Dearborn,163,42.3,-83.15,33,40000,15,12,8,2,2,6,1.5\n"
	path := filepath.Join(t.TempDir(), "tracts.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tracts, err := dataset.ReadTracts(path)
	require.NoError(t, err)
	require.Len(t, tracts, 7)

	rows, rep := Prepare(tracts)
	assert.Equal(t, []string{"1", "4", "5", "6"}, rep.Dropped)
	assert.Equal(t, 1, rep.MissingByColumn["Median Household Income"])
	assert.Equal(t, 1, rep.MissingByColumn["Median Age"])
	assert.Equal(t, 1, rep.MissingByColumn["pedestrian_score"])

	scored, err := Score(AddFeatures(rows), DefaultWeights)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	for i, s := range scored {
		assert.False(t, math.IsNaN(s.SuccessScore) || math.IsInf(s.SuccessScore, 0), s.TractID)
		if i > 0 {
			assert.GreaterOrEqual(t, scored[i-1].SuccessScore, s.SuccessScore)
		}
	}
}
