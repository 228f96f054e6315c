package tiger

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Block is one 2020 tabulation block record.
type Block struct {
	BlockCE  string // BLOCKCE20
	CountyFP string // COUNTYFP20
	TractCE  string // TRACTCE20
	GEOID    string // GEOID20
	// Interior point published by the Census Bureau. HasIntPt is false when
	// either coordinate is missing or unparseable.
	IntPtLat float64
	IntPtLon float64
	HasIntPt bool
	Geom     *geom.MultiPolygon
}

var blockFields = []string{"blockce20", "countyfp20", "tractce20", "geoid20", "intptlat20", "intptlon20"}

// ReadBlocks reads a TABBLOCK20 shapefile. Records without a polygon keep a
// nil Geom; they still carry attributes for county mapping.
func ReadBlocks(shpPath string) ([]Block, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "tiger: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	if _, ok := fieldIdx["countyfp20"]; !ok {
		return nil, eris.Errorf("tiger: %s has no COUNTYFP20 field", shpPath)
	}

	attr := func(name string) string {
		idx, ok := fieldIdx[name]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var blocks []Block
	var noGeom int
	for reader.Next() {
		_, shape := reader.Shape()

		vals := make(map[string]string, len(blockFields))
		for _, f := range blockFields {
			vals[f] = attr(f)
		}

		b := Block{
			BlockCE:  vals["blockce20"],
			CountyFP: vals["countyfp20"],
			TractCE:  vals["tractce20"],
			GEOID:    vals["geoid20"],
		}
		lat, latErr := strconv.ParseFloat(vals["intptlat20"], 64)
		lon, lonErr := strconv.ParseFloat(vals["intptlon20"], 64)
		if latErr == nil && lonErr == nil {
			b.IntPtLat, b.IntPtLon, b.HasIntPt = lat, lon, true
		}

		if poly, ok := shape.(*shp.Polygon); ok {
			b.Geom = PolygonGeometry(poly)
		}
		if b.Geom == nil {
			noGeom++
		}
		blocks = append(blocks, b)
	}

	zap.L().Debug("tiger: read blocks",
		zap.String("path", shpPath),
		zap.Int("blocks", len(blocks)),
		zap.Int("without_geometry", noGeom),
	)
	return blocks, nil
}
