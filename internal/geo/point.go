// Package geo resolves tract centroids and measures distances between them.
package geo

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
)

// EarthRadiusKM is the mean Earth radius used for haversine distances.
const EarthRadiusKM = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParsePoint parses "lat, lon" (the whitespace is optional).
func ParsePoint(s string) (Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Point{}, eris.Errorf("geo: invalid point %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: invalid latitude in %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geo: invalid longitude in %q", s)
	}
	p := Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return Point{}, eris.Errorf("geo: point %q out of range", s)
	}
	return p, nil
}

// String formats the point as "lat, lon".
func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + ", " + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// Param formats the point as "lat,lon" for API query strings.
func (p Point) Param() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

// Valid reports whether the coordinates are within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func (p Point) orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// HaversineKM returns the great-circle distance between a and b in km.
func HaversineKM(a, b Point) float64 {
	// orb measures on its own sphere; rescale to the mean radius.
	return orbgeo.DistanceHaversine(a.orb(), b.orb()) / orb.EarthRadius * EarthRadiusKM
}
