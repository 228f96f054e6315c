package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/model"
)

type mapSource struct {
	name   string
	points map[string]Point
}

func (m mapSource) Name() string { return m.name }

func (m mapSource) Lookup(tract, county string) (Point, bool) {
	p, ok := m.points[key(tract, county)]
	return p, ok
}

func TestResolver_FirstHitWins(t *testing.T) {
	block := mapSource{SourceBlock, map[string]Point{key("1", "163"): {1, 1}}}
	census := mapSource{SourceCensus, map[string]Point{key("1", "163"): {2, 2}, key("2", "163"): {3, 3}}}

	r := NewResolver(block, nil, census)
	assert.Equal(t, []string{SourceBlock, SourceCensus}, r.Sources())

	p, src, ok := r.Resolve("1", "163")
	require.True(t, ok)
	assert.Equal(t, SourceBlock, src)
	assert.Equal(t, Point{1, 1}, p)

	p, src, ok = r.Resolve("2", "163")
	require.True(t, ok)
	assert.Equal(t, SourceCensus, src)
	assert.Equal(t, Point{3, 3}, p)

	_, _, ok = r.Resolve("3", "163")
	assert.False(t, ok)
}

func TestNewResolverFromOrder(t *testing.T) {
	avail := map[string]CentroidSource{
		SourceCensus: mapSource{name: SourceCensus},
	}

	r, err := NewResolverFromOrder([]string{"block", "Census"}, avail)
	require.NoError(t, err)
	assert.Equal(t, []string{SourceCensus}, r.Sources())

	_, err = NewResolverFromOrder([]string{"gps"}, avail)
	assert.ErrorContains(t, err, "unknown centroid source")

	_, err = NewResolverFromOrder([]string{"shape"}, avail)
	assert.ErrorContains(t, err, "no centroid sources")
}

func TestAssignCounties(t *testing.T) {
	rows := []model.Tract{
		{TractID: "5"},
		{TractID: "9999"},
		{TractID: "8020", CountyID: "001"},
	}
	missing := AssignCounties(rows, map[string]string{"5": "163", "8020": "125"})

	assert.Equal(t, "163", rows[0].CountyID)
	assert.Equal(t, "001", rows[2].CountyID)
	assert.Equal(t, []string{"9999"}, missing)
}

func TestAssignCentroids(t *testing.T) {
	r := NewResolver(mapSource{SourceCensus, map[string]Point{key("5", "163"): {42.3, -83.2}}})
	rows := []model.Tract{
		{TractID: "5"},
		{TractID: "6"},
		{TractID: "7"},
		{TractID: "8", Lat: model.Float(1), Lon: model.Float(2)},
	}
	countyMap := map[string]string{"5": "163", "6": "163"}

	rep := AssignCentroids(rows, countyMap, r)

	assert.Equal(t, 1, rep.Located)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, []string{"7"}, rep.NoCounty)
	assert.Equal(t, []string{"6"}, rep.NoCentroid)
	assert.Equal(t, 1, rep.BySource[SourceCensus])

	require.True(t, rows[0].HasLocation())
	assert.InDelta(t, 42.3, *rows[0].Lat, 1e-9)
	assert.Equal(t, "163", rows[0].CountyID)
	assert.Equal(t, "163", rows[1].CountyID)
	assert.False(t, rows[1].HasLocation())
	assert.InDelta(t, 1.0, *rows[3].Lat, 1e-9)
}
