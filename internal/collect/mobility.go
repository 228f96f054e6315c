package collect

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/pkg/overpass"
)

// Defaults for Mobility.
const (
	DefaultTransitRadiusM  = 1609
	DefaultWalkNetworkDist = 500
)

// MobilityResult holds the mobility columns of one tract.
type MobilityResult struct {
	TransitStops    int     `json:"transit_stops"`
	WalkNodes       int     `json:"walk_nodes"`
	PedestrianScore float64 `json:"pedestrian_score"`
}

// Mobility measures transit access and walkability around a centroid.
type Mobility struct {
	client         overpass.Client
	transitRadiusM int
	walkDistM      int
}

// NewMobility builds a Mobility from collect config.
func NewMobility(client overpass.Client, cfg config.CollectConfig) *Mobility {
	m := &Mobility{client: client, transitRadiusM: DefaultTransitRadiusM, walkDistM: DefaultWalkNetworkDist}
	if cfg.TransitRadiusM > 0 {
		m.transitRadiusM = cfg.TransitRadiusM
	}
	if cfg.WalkNetworkDistM > 0 {
		m.walkDistM = cfg.WalkNetworkDistM
	}
	return m
}

// Collect counts transit stops and walk network nodes around origin and
// combines the walk network with the nearby restaurant and coffee shop
// counts into a pedestrian score.
func (m *Mobility) Collect(ctx context.Context, origin geo.Point, restaurants, coffee float64) (MobilityResult, error) {
	stops, err := m.client.CountTransitStops(ctx, origin.Lat, origin.Lon, m.transitRadiusM)
	if err != nil {
		return MobilityResult{}, eris.Wrap(err, "collect: transit stops")
	}
	nodes, err := m.client.CountWalkNodes(ctx, origin.Lat, origin.Lon, m.walkDistM)
	if err != nil {
		return MobilityResult{}, eris.Wrap(err, "collect: walk network")
	}
	return MobilityResult{
		TransitStops:    stops,
		WalkNodes:       nodes,
		PedestrianScore: PedestrianScore(nodes, restaurants, coffee),
	}, nil
}

// PedestrianScore weighs walk network size against business density.
func PedestrianScore(walkNodes int, restaurants, coffee float64) float64 {
	return 0.6*(float64(walkNodes)/100) + 0.4*((restaurants+coffee)/10)
}
