package geo

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/cafe-compass/compass-cli/internal/fetcher"
	"github.com/cafe-compass/compass-cli/internal/tiger"
)

// Source names accepted in tiger.centroid_order.
const (
	SourceBlock  = "block"
	SourceCensus = "census"
	SourceShape  = "shape"
)

// CentroidSource looks up a representative point for a tract in a county.
type CentroidSource interface {
	Name() string
	Lookup(tract, county string) (Point, bool)
}

func key(tract, county string) string {
	return county + "/" + tract
}

// BlockIndex returns the interior point of the first block whose BLOCKCE20
// equals the tract code and whose COUNTYFP20 equals the county.
type BlockIndex struct {
	points map[string]Point
}

// NewBlockIndex indexes the blocks that carry an interior point.
func NewBlockIndex(blocks []tiger.Block) *BlockIndex {
	idx := &BlockIndex{points: make(map[string]Point, len(blocks))}
	for _, b := range blocks {
		if !b.HasIntPt {
			continue
		}
		k := key(b.BlockCE, b.CountyFP)
		if _, ok := idx.points[k]; !ok {
			idx.points[k] = Point{Lat: b.IntPtLat, Lon: b.IntPtLon}
		}
	}
	return idx
}

// Name implements CentroidSource.
func (b *BlockIndex) Name() string { return SourceBlock }

// Lookup implements CentroidSource.
func (b *BlockIndex) Lookup(tract, county string) (Point, bool) {
	p, ok := b.points[key(tract, county)]
	return p, ok
}

// CensusCenters is the CenPop2020 tract mean-center table.
type CensusCenters struct {
	points map[string]Point
}

// LoadCensusCenters reads a CenPop2020_Mean_TR CSV. TRACTCE and COUNTYFP
// are zero-padded to 6 and 3 digits; the first row per tract wins.
func LoadCensusCenters(ctx context.Context, r io.Reader) (*CensusCenters, error) {
	rows, errs := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{TrimSpace: true})

	header, ok := <-rows
	if !ok {
		if err := <-errs; err != nil {
			return nil, eris.Wrap(err, "geo: read census centers header")
		}
		return nil, eris.New("geo: census centers file is empty")
	}
	idx := fetcher.HeaderIndex(header)
	for _, col := range []string{"TRACTCE", "COUNTYFP", "LATITUDE", "LONGITUDE"} {
		if _, ok := idx[col]; !ok {
			// Drain so the parser goroutine can exit.
			for range rows {
			}
			return nil, eris.Errorf("geo: census centers missing column %s", col)
		}
	}

	cc := &CensusCenters{points: make(map[string]Point)}
	field := func(rec []string, col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	for rec := range rows {
		lat, latErr := strconv.ParseFloat(field(rec, "LATITUDE"), 64)
		lon, lonErr := strconv.ParseFloat(field(rec, "LONGITUDE"), 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		k := key(padLeft(field(rec, "TRACTCE"), 6), padLeft(field(rec, "COUNTYFP"), 3))
		if _, ok := cc.points[k]; !ok {
			cc.points[k] = Point{Lat: lat, Lon: lon}
		}
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "geo: read census centers")
	}
	return cc, nil
}

// Name implements CentroidSource.
func (c *CensusCenters) Name() string { return SourceCensus }

// Lookup implements CentroidSource.
func (c *CensusCenters) Lookup(tract, county string) (Point, bool) {
	p, ok := c.points[key(padLeft(tract, 6), padLeft(county, 3))]
	return p, ok
}

// Len returns the number of indexed tracts.
func (c *CensusCenters) Len() int { return len(c.points) }

// ShapeCentroids dissolves the polygons of every block matching the tract
// and county and returns a representative point: the area centroid when it
// falls inside the geometry, otherwise an interior point.
type ShapeCentroids struct {
	shapes map[string]*geom.MultiPolygon
}

// NewShapeCentroids groups block polygons by (BLOCKCE20, COUNTYFP20).
func NewShapeCentroids(blocks []tiger.Block) *ShapeCentroids {
	sc := &ShapeCentroids{shapes: make(map[string]*geom.MultiPolygon)}
	for _, b := range blocks {
		if b.Geom == nil {
			continue
		}
		k := key(b.BlockCE, b.CountyFP)
		mp, ok := sc.shapes[k]
		if !ok {
			mp = geom.NewMultiPolygon(geom.XY).SetSRID(tiger.SRID)
			sc.shapes[k] = mp
		}
		for i := 0; i < b.Geom.NumPolygons(); i++ {
			_ = mp.Push(b.Geom.Polygon(i))
		}
	}
	return sc
}

// Name implements CentroidSource.
func (s *ShapeCentroids) Name() string { return SourceShape }

// Lookup implements CentroidSource.
func (s *ShapeCentroids) Lookup(tract, county string) (Point, bool) {
	mp, ok := s.shapes[key(tract, county)]
	if !ok || mp.NumPolygons() == 0 {
		return Point{}, false
	}
	return RepresentativePoint(mp)
}

// RepresentativePoint returns a point guaranteed to lie inside mp when mp
// has any area.
func RepresentativePoint(mp *geom.MultiPolygon) (Point, bool) {
	if mp == nil || mp.NumPolygons() == 0 {
		return Point{}, false
	}
	c := xy.MultiPolygonCentroid(mp)
	if len(c) >= 2 && contains(mp, c) {
		return Point{Lat: c[1], Lon: c[0]}, true
	}
	if p, ok := scanlinePoint(largestPolygon(mp)); ok {
		return p, true
	}
	if len(c) >= 2 {
		return Point{Lat: c[1], Lon: c[0]}, true
	}
	return Point{}, false
}

func contains(mp *geom.MultiPolygon, c geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		if polygonContains(mp.Polygon(i), c) {
			return true
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(geom.XY, c, p.LinearRing(0).FlatCoords()) {
		return false
	}
	for j := 1; j < p.NumLinearRings(); j++ {
		if xy.IsPointInRing(geom.XY, c, p.LinearRing(j).FlatCoords()) {
			return false
		}
	}
	return true
}

func largestPolygon(mp *geom.MultiPolygon) *geom.Polygon {
	var best *geom.Polygon
	bestArea := -1.0
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if a := p.Area(); a > bestArea {
			best, bestArea = p, a
		}
	}
	return best
}

// scanlinePoint intersects the polygon with the horizontal line through the
// middle of its bounds and returns the midpoint of the widest inside span.
func scanlinePoint(p *geom.Polygon) (Point, bool) {
	if p == nil || p.NumLinearRings() == 0 {
		return Point{}, false
	}
	b := p.Bounds()
	y := (b.Min(1) + b.Max(1)) / 2

	var xs []float64
	for r := 0; r < p.NumLinearRings(); r++ {
		flat := p.LinearRing(r).FlatCoords()
		for i := 0; i+3 < len(flat); i += 2 {
			x1, y1, x2, y2 := flat[i], flat[i+1], flat[i+2], flat[i+3]
			if (y1 > y) != (y2 > y) {
				xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
			}
		}
	}
	if len(xs) < 2 {
		return Point{}, false
	}
	sort.Float64s(xs)

	bestW, bestX := -1.0, 0.0
	for i := 0; i+1 < len(xs); i += 2 {
		if w := xs[i+1] - xs[i]; w > bestW {
			bestW, bestX = w, (xs[i]+xs[i+1])/2
		}
	}
	return Point{Lat: y, Lon: bestX}, true
}

func padLeft(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) >= n {
		return s
	}
	return strings.Repeat("0", n-len(s)) + s
}
