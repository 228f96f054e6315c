package classifier

import (
	"github.com/cafe-compass/compass-cli/internal/features"
	"github.com/cafe-compass/compass-cli/internal/geo"
	"github.com/cafe-compass/compass-cli/internal/model"
)

// Label marks each tract 1 when a successful shop lies within radiusKM of
// its centroid, and 0 otherwise.
func Label(points []geo.Point, shops []model.Shop, radiusKM float64) []int {
	var winners []geo.Point
	for _, s := range shops {
		if s.IsSuccessful {
			winners = append(winners, geo.Point{Lat: s.Lat, Lon: s.Lon})
		}
	}
	labels := make([]int, len(points))
	for i, p := range points {
		for _, w := range winners {
			if geo.HaversineKM(p, w) <= radiusKM {
				labels[i] = 1
				break
			}
		}
	}
	return labels
}

// Matrix returns the feature vectors and centroids of scored rows.
func Matrix(rows []features.Scored) ([][]float64, []geo.Point) {
	X := make([][]float64, len(rows))
	pts := make([]geo.Point, len(rows))
	for i := range rows {
		X[i] = rows[i].Vector()
		pts[i] = geo.Point{Lat: rows[i].Lat, Lon: rows[i].Lon}
	}
	return X, pts
}

func subset[T any](xs []T, idx []int) []T {
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = xs[i]
	}
	return out
}
