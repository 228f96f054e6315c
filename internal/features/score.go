package features

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
)

// Weights are the coefficients of the success score. Saturation applies to
// the inverted coffee shop density.
type Weights struct {
	Mosque        float64 `json:"mosque"`
	Demand        float64 `json:"demand"`
	Affordability float64 `json:"affordability"`
	Pedestrian    float64 `json:"pedestrian"`
	Saturation    float64 `json:"saturation"`
}

// DefaultWeights favour community presence and unmet demand.
var DefaultWeights = Weights{
	Mosque:        0.30,
	Demand:        0.25,
	Affordability: 0.20,
	Pedestrian:    0.15,
	Saturation:    0.10,
}

// WeightsFromConfig reads score weights from the scoring config.
func WeightsFromConfig(c config.ScoringConfig) Weights {
	return Weights{
		Mosque:        c.MosqueWeight,
		Demand:        c.DemandWeight,
		Affordability: c.AffordabilityWeight,
		Pedestrian:    c.PedestrianWeight,
		Saturation:    c.SaturationWeight,
	}
}

// Validate checks that all weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	parts := map[string]float64{
		"mosque":        w.Mosque,
		"demand":        w.Demand,
		"affordability": w.Affordability,
		"pedestrian":    w.Pedestrian,
		"saturation":    w.Saturation,
	}
	var sum float64
	for name, v := range parts {
		if v < 0 || math.IsNaN(v) {
			return eris.Errorf("scoring: weight %s must be non-negative, got %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return eris.Errorf("scoring: weights must sum to 1, got %.4f", sum)
	}
	return nil
}

// Scored is a featured tract with its success score. SuccessProbability is
// filled in by the classifier when one is applied.
type Scored struct {
	Featured
	SuccessScore       float64  `csv:"success_score" json:"success_score"`
	SuccessProbability *float64 `csv:"success_probability" json:"success_probability,omitempty"`
}

// Score rescales the five score inputs to [0, 1] across rows, computes the
// weighted success score and returns the rows sorted by descending score.
// Ties keep their input order. The rescaled values replace the derived
// feature columns in the result.
func Score(rows []Featured, w Weights) ([]Scored, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	out := make([]Scored, len(rows))
	for i := range rows {
		out[i] = Scored{Featured: rows[i]}
	}

	cols := func(s *Scored) []*float64 {
		return []*float64{
			&s.MosqueIndex,
			&s.PotentialDemandIndex,
			&s.AffordabilityIndex,
			&s.PedestrianScore,
			&s.CoffeeShopDensity,
		}
	}
	scaleColumns(len(out), 5, func(i, j int) *float64 { return cols(&out[i])[j] })

	for i := range out {
		s := &out[i]
		s.SuccessScore = w.Mosque*s.MosqueIndex +
			w.Demand*s.PotentialDemandIndex +
			w.Affordability*s.AffordabilityIndex +
			w.Pedestrian*s.PedestrianScore +
			w.Saturation*(1-s.CoffeeShopDensity)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuccessScore > out[j].SuccessScore
	})
	return out, nil
}

// TopN returns the first n scored rows, or all of them when n <= 0 or n
// exceeds the row count.
func TopN(rows []Scored, n int) []Scored {
	if n <= 0 || n >= len(rows) {
		return rows
	}
	return rows[:n]
}

// Summary describes the success score distribution.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Summarize computes score statistics for rows.
func Summarize(rows []Scored) Summary {
	if len(rows) == 0 {
		return Summary{}
	}
	xs := Scores(rows)
	sum := Summary{Count: len(xs), Min: xs[0], Max: xs[0]}
	for _, x := range xs {
		sum.Min = math.Min(sum.Min, x)
		sum.Max = math.Max(sum.Max, x)
	}
	sum.Mean, sum.StdDev = stat.MeanStdDev(xs, nil)
	if len(xs) == 1 {
		sum.StdDev = 0
	}
	return sum
}

// Scores returns the success score column.
func Scores(rows []Scored) []float64 {
	xs := make([]float64, len(rows))
	for i := range rows {
		xs[i] = rows[i].SuccessScore
	}
	return xs
}

// ToTractScores converts scored rows to the persisted form.
func ToTractScores(runID string, rows []Scored) []model.TractScore {
	out := make([]model.TractScore, len(rows))
	for i := range rows {
		r := &rows[i]
		out[i] = model.TractScore{
			RunID:        runID,
			TractID:      r.TractID,
			City:         r.City,
			CountyID:     r.CountyID,
			Lat:          r.Lat,
			Lon:          r.Lon,
			SuccessScore: r.SuccessScore,
			Probability:  r.SuccessProbability,
		}
	}
	return out
}
