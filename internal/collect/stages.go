package collect

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/internal/model"
	"github.com/cafe-compass/compass-cli/pkg/trends"
)

// Stage names.
const (
	StageCounties  = "counties"
	StageCentroids = "centroids"
	StagePlaces    = "places"
	StageMobility  = "mobility"
	StageRent      = "rent"
	StageTrends    = "trends"
)

// Stages lists every stage in pipeline order.
var Stages = []string{StageCounties, StageCentroids, StagePlaces, StageMobility, StageRent, StageTrends}

func origin(t *model.Tract) (geo.Point, error) {
	if !t.HasLocation() {
		return geo.Point{}, eris.Wrap(ErrSkip, "no centroid")
	}
	return geo.Point{Lat: *t.Lat, Lon: *t.Lon}, nil
}

// PlacesStage counts restaurants, coffee shops and mosques reachable by car
// within the driving limit.
func PlacesStage(pc *PlaceCounter) Stage {
	types := []struct{ placeType, col string }{
		{PlaceRestaurant, ColRestaurants},
		{PlaceCafe, ColCoffeeShops},
		{PlaceMosque, ColMosques},
	}
	return Stage{
		Name: StagePlaces,
		Done: (*model.Tract).HasPlaceCounts,
		Collect: func(ctx context.Context, t *model.Tract) (map[string]float64, error) {
			from, err := origin(t)
			if err != nil {
				return nil, err
			}
			out := make(map[string]float64, len(types))
			for _, pt := range types {
				sum, err := pc.Count(ctx, from, pt.placeType)
				if err != nil {
					return nil, err
				}
				out[pt.col] = float64(sum.DrivableCount())
				zap.L().Debug("places counted",
					zap.String("tract", t.TractID),
					zap.String("type", pt.placeType),
					zap.Int("walkable", sum.WalkableCount()),
					zap.Int("drivable", sum.DrivableCount()),
				)
			}
			return out, nil
		},
	}
}

// MobilityStage collects transit stops and the pedestrian score. It needs
// the restaurant and coffee shop counts from the places stage.
func MobilityStage(m *Mobility) Stage {
	return Stage{
		Name: StageMobility,
		Done: (*model.Tract).HasMobility,
		Collect: func(ctx context.Context, t *model.Tract) (map[string]float64, error) {
			from, err := origin(t)
			if err != nil {
				return nil, err
			}
			if t.NearbyRestaurants == nil || t.NearbyCoffeeShops == nil {
				return nil, eris.Wrap(ErrSkip, "place counts missing")
			}
			res, err := m.Collect(ctx, from, *t.NearbyRestaurants, *t.NearbyCoffeeShops)
			if err != nil {
				return nil, err
			}
			return map[string]float64{
				ColTransitStops: float64(res.TransitStops),
				ColPedestrian:   res.PedestrianScore,
			}, nil
		},
	}
}

// CityInterest looks up search interest once per city and shares the
// result between that city's tracts.
type CityInterest struct {
	client    trends.Client
	geo       string
	timeframe string

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*float64
}

// NewCityInterest builds a per-city interest lookup.
func NewCityInterest(client trends.Client, geoCode, timeframe string) *CityInterest {
	if geoCode == "" {
		geoCode = trends.DefaultGeo
	}
	if timeframe == "" {
		timeframe = trends.DefaultTimeframe
	}
	return &CityInterest{client: client, geo: geoCode, timeframe: timeframe, cache: map[string]*float64{}}
}

// Lookup returns the mean interest over the city's coffee keywords, or nil
// when the city has no data.
func (c *CityInterest) Lookup(ctx context.Context, city string) (*float64, error) {
	c.mu.Lock()
	v, ok := c.cache[city]
	c.mu.Unlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do(city, func() (any, error) {
		c.mu.Lock()
		v, ok := c.cache[city]
		c.mu.Unlock()
		if ok {
			return v, nil
		}
		series, err := c.client.InterestOverTime(ctx, trends.CityKeywords(city), c.geo, c.timeframe)
		if err != nil {
			return nil, err
		}
		var out *float64
		if mean, ok := trends.MeanInterest(series.Averages()); ok {
			out = model.Float(mean)
		}
		c.mu.Lock()
		c.cache[city] = out
		c.mu.Unlock()
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "collect: search interest for %s", city)
	}
	return res.(*float64), nil
}

// TrendsStage fills coffee_search_interest from the tract's city.
func TrendsStage(ci *CityInterest) Stage {
	return Stage{
		Name: StageTrends,
		Done: func(t *model.Tract) bool { return t.CoffeeSearchInterest != nil },
		Collect: func(ctx context.Context, t *model.Tract) (map[string]float64, error) {
			if t.City == "" {
				return nil, eris.Wrap(ErrSkip, "no city")
			}
			v, err := ci.Lookup(ctx, t.City)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, eris.Wrap(ErrSkip, "no search interest data")
			}
			return map[string]float64{ColSearchInterest: *v}, nil
		},
	}
}
