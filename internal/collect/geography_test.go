package collect

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/internal/tiger"
)

func testGeography() *Geography {
	blocks := []tiger.Block{
		{BlockCE: "1001", CountyFP: "163", GEOID: "261635001001001", IntPtLat: 42.31, IntPtLon: -83.21, HasIntPt: true},
		{BlockCE: "2002", CountyFP: "125", GEOID: "261251002002002"},
	}
	return &Geography{
		Blocks:    blocks,
		CountyMap: tiger.BuildCountyMapping(blocks, nil),
	}
}

func TestGeography_Counties(t *testing.T) {
	g := testGeography()
	rows := []model.Tract{{TractID: "1001"}, {TractID: "2002", CountyID: "999"}, {TractID: "7"}}
	stats := g.Counties(rows)
	assert.Equal(t, model.RunStats{Total: 3, Succeeded: 2, Failed: 1}, stats)
	assert.Equal(t, "163", rows[0].CountyID)
	assert.Equal(t, "999", rows[1].CountyID)
}

func TestGeography_Centroids(t *testing.T) {
	g := testGeography()
	rows := []model.Tract{
		{TractID: "1001"},
		{TractID: "2002"},
		{TractID: "5", Lat: model.Float(1), Lon: model.Float(2)},
	}
	rep, stats, err := g.Centroids(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Located)
	assert.Equal(t, 1, rep.BySource[geo.SourceBlock])
	assert.Equal(t, []string{"2002"}, rep.NoCentroid)
	assert.Equal(t, model.RunStats{Total: 3, Succeeded: 1, Skipped: 1, Failed: 1}, stats)
	assert.InDelta(t, 42.31, *rows[0].Lat, 1e-12)
}

func TestGeography_ResolverOrder(t *testing.T) {
	g := testGeography()
	g.order = []string{"shape", "block"}
	r, err := g.Resolver()
	require.NoError(t, err)
	assert.Equal(t, []string{geo.SourceShape, geo.SourceBlock}, r.Sources())

	g.order = []string{"satellite"}
	_, err = g.Resolver()
	assert.Error(t, err)
}

func TestLoadGeography_MissingShapefile(t *testing.T) {
	_, err := LoadGeography(context.Background(), nil, config.TigerConfig{
		BlockShapefile: filepath.Join(t.TempDir(), "missing.shp"),
	})
	assert.Error(t, err)
}
