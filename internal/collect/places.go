// Package collect enriches the tract dataset stage by stage: county and
// centroid assignment, nearby place counts, mobility, rent and search
// interest.
package collect

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/pkg/google"
)

// Place types counted per tract.
const (
	PlaceRestaurant = "restaurant"
	PlaceCafe       = "cafe"
	PlaceMosque     = "mosque"
)

// Defaults for PlaceCounter.
const (
	DefaultSearchRadiusM = 5000
	DefaultWalkingLimit  = 15 * time.Minute
	DefaultDrivingLimit  = 10 * time.Minute
)

// TimedPlace is a nearby place with its travel time from the origin.
type TimedPlace struct {
	google.Place
	Minutes float64 `json:"minutes"`
}

// TravelSummary splits nearby places by reachability.
type TravelSummary struct {
	Walkable  []TimedPlace `json:"walkable"`
	Drivable  []TimedPlace `json:"drivable"`
	Timestamp time.Time    `json:"timestamp"`
}

// WalkableCount returns the number of places within the walking limit.
func (s *TravelSummary) WalkableCount() int { return len(s.Walkable) }

// DrivableCount returns the number of places within the driving limit.
func (s *TravelSummary) DrivableCount() int { return len(s.Drivable) }

// PlaceCounter counts places of a type reachable from a tract centroid.
type PlaceCounter struct {
	client       google.Client
	radiusM      uint
	walkingLimit time.Duration
	drivingLimit time.Duration
	now          func() time.Time
}

// NewPlaceCounter builds a counter from collect config. Zero values fall
// back to the defaults.
func NewPlaceCounter(client google.Client, cfg config.CollectConfig) *PlaceCounter {
	pc := &PlaceCounter{
		client:       client,
		radiusM:      DefaultSearchRadiusM,
		walkingLimit: DefaultWalkingLimit,
		drivingLimit: DefaultDrivingLimit,
		now:          time.Now,
	}
	if cfg.SearchRadiusM > 0 {
		pc.radiusM = uint(cfg.SearchRadiusM)
	}
	if cfg.WalkingLimitMins > 0 {
		pc.walkingLimit = time.Duration(cfg.WalkingLimitMins * float64(time.Minute))
	}
	if cfg.DrivingLimitMins > 0 {
		pc.drivingLimit = time.Duration(cfg.DrivingLimitMins * float64(time.Minute))
	}
	return pc
}

// Count finds places of placeType near origin and keeps those within the
// walking and driving limits. Destinations are sent in batches of
// google.MaxDestinations; a destination with no route is dropped.
func (pc *PlaceCounter) Count(ctx context.Context, origin geo.Point, placeType string) (*TravelSummary, error) {
	from := google.LatLng{Lat: origin.Lat, Lng: origin.Lon}
	places, err := pc.client.NearbySearch(ctx, google.NearbyRequest{
		Location: from,
		RadiusM:  pc.radiusM,
		Type:     placeType,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "collect: nearby %s", placeType)
	}

	sum := &TravelSummary{Timestamp: pc.now().UTC()}
	for start := 0; start < len(places); start += google.MaxDestinations {
		batch := places[start:min(start+google.MaxDestinations, len(places))]
		dests := make([]google.LatLng, len(batch))
		for i, p := range batch {
			dests[i] = p.Location
		}

		walking, err := pc.client.TravelTimes(ctx, from, dests, google.ModeWalking)
		if err != nil {
			return nil, eris.Wrapf(err, "collect: walking times for %s", placeType)
		}
		driving, err := pc.client.TravelTimes(ctx, from, dests, google.ModeDriving)
		if err != nil {
			return nil, eris.Wrapf(err, "collect: driving times for %s", placeType)
		}

		for i, p := range batch {
			if d := at(walking, i); d != nil && *d <= pc.walkingLimit {
				sum.Walkable = append(sum.Walkable, TimedPlace{Place: p, Minutes: d.Minutes()})
			}
			if d := at(driving, i); d != nil && *d <= pc.drivingLimit {
				sum.Drivable = append(sum.Drivable, TimedPlace{Place: p, Minutes: d.Minutes()})
			}
		}
	}
	return sum, nil
}

func at(ds []*time.Duration, i int) *time.Duration {
	if i < len(ds) {
		return ds[i]
	}
	return nil
}
