package geo

import (
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/model"
)

// Resolver tries centroid sources in order; the first hit wins.
type Resolver struct {
	sources []CentroidSource
}

// NewResolver builds a resolver over sources, skipping nil entries.
func NewResolver(sources ...CentroidSource) *Resolver {
	r := &Resolver{}
	for _, s := range sources {
		if s != nil {
			r.sources = append(r.sources, s)
		}
	}
	return r
}

// NewResolverFromOrder picks sources from available by name in the given
// order. Unknown names are an error; names with no loaded source are skipped.
func NewResolverFromOrder(order []string, available map[string]CentroidSource) (*Resolver, error) {
	r := &Resolver{}
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case SourceBlock, SourceCensus, SourceShape:
		default:
			return nil, eris.Errorf("geo: unknown centroid source %q", name)
		}
		if s, ok := available[name]; ok && s != nil {
			r.sources = append(r.sources, s)
		} else {
			zap.L().Warn("geo: centroid source not loaded, skipping", zap.String("source", name))
		}
	}
	if len(r.sources) == 0 {
		return nil, eris.New("geo: no centroid sources available")
	}
	return r, nil
}

// Sources returns the source names in lookup order.
func (r *Resolver) Sources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first point found and the name of its source.
func (r *Resolver) Resolve(tract, county string) (Point, string, bool) {
	for _, s := range r.sources {
		if p, ok := s.Lookup(tract, county); ok {
			return p, s.Name(), true
		}
	}
	return Point{}, "", false
}

// AssignReport summarizes an AssignCentroids pass.
type AssignReport struct {
	Located    int            `json:"located"`
	Skipped    int            `json:"skipped"`
	NoCounty   []string       `json:"no_county,omitempty"`
	NoCentroid []string       `json:"no_centroid,omitempty"`
	BySource   map[string]int `json:"by_source"`
}

// AssignCounties fills county_id from countyMap for rows that have none.
// Returns the tract codes that had no mapping.
func AssignCounties(rows []model.Tract, countyMap map[string]string) []string {
	var missing []string
	for i := range rows {
		if rows[i].CountyID != "" {
			continue
		}
		if c, ok := countyMap[rows[i].TractID]; ok {
			rows[i].CountyID = c
		} else {
			missing = append(missing, rows[i].TractID)
		}
	}
	return missing
}

// AssignCentroids fills county_id and lat/lon for rows without coordinates.
// Rows that already have coordinates are left alone.
func AssignCentroids(rows []model.Tract, countyMap map[string]string, r *Resolver) AssignReport {
	log := zap.L().With(zap.String("component", "geo.centroids"))
	rep := AssignReport{BySource: make(map[string]int)}

	for i := range rows {
		row := &rows[i]
		if row.HasLocation() {
			rep.Skipped++
			continue
		}

		county := row.CountyID
		if county == "" {
			county = countyMap[row.TractID]
		}
		if county == "" {
			log.Warn("county not found", zap.String("tract", row.TractID))
			rep.NoCounty = append(rep.NoCounty, row.TractID)
			continue
		}
		row.CountyID = county

		p, source, ok := r.Resolve(row.TractID, county)
		if !ok {
			log.Warn("centroid not found", zap.String("tract", row.TractID), zap.String("county", county))
			rep.NoCentroid = append(rep.NoCentroid, row.TractID)
			continue
		}
		row.Lat = model.Float(p.Lat)
		row.Lon = model.Float(p.Lon)
		rep.Located++
		rep.BySource[source]++
		log.Debug("centroid resolved",
			zap.String("tract", row.TractID),
			zap.String("source", source),
			zap.Stringer("point", p),
		)
	}
	return rep
}
