// Package shops surveys known Yemeni coffee shops and judges which of them
// are successful.
package shops

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SearchPoint is a city the survey searches around.
type SearchPoint struct {
	County string  `yaml:"county" json:"county"`
	City   string  `yaml:"city" json:"city"`
	Lat    float64 `yaml:"lat" json:"lat"`
	Lon    float64 `yaml:"lon" json:"lon"`
}

// DefaultPoints covers one city per SE Michigan county.
var DefaultPoints = []SearchPoint{
	{County: "Wayne", City: "Dearborn", Lat: 42.3223, Lon: -83.1763},
	{County: "Oakland", City: "Troy", Lat: 42.6056, Lon: -83.1499},
	{County: "Macomb", City: "Warren", Lat: 42.5145, Lon: -83.0147},
	{County: "Washtenaw", City: "Ann Arbor", Lat: 42.2808, Lon: -83.7430},
	{County: "Monroe", City: "Monroe", Lat: 41.9164, Lon: -83.3977},
	{County: "Livingston", City: "Howell", Lat: 42.6073, Lon: -83.9294},
	{County: "St. Clair", City: "Port Huron", Lat: 42.9709, Lon: -82.4249},
}

// LoadPoints reads search points from a YAML file with a top-level
// "search_points" list. An empty path returns DefaultPoints.
func LoadPoints(path string) ([]SearchPoint, error) {
	if path == "" {
		return DefaultPoints, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, eris.Wrapf(err, "shops: read points %s", path)
	}

	var wrapper struct {
		Points []SearchPoint `yaml:"search_points"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "shops: parse points")
	}
	if len(wrapper.Points) == 0 {
		return nil, eris.Errorf("shops: %s has no search_points", path)
	}
	for i, p := range wrapper.Points {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			return nil, eris.Errorf("shops: search point %d (%s) out of range", i, p.City)
		}
	}
	return wrapper.Points, nil
}
