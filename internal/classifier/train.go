package classifier

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/features"
	"github.com/cafe-compass/compass-cli/internal/model"
)

// Report is the outcome of Train.
type Report struct {
	Rows       int          `json:"rows"`
	Positives  int          `json:"positives"`
	TrainRows  int          `json:"train_rows"`
	TestRows   int          `json:"test_rows"`
	Metrics    Metrics      `json:"metrics"`
	Importance []Importance `json:"importance"`
}

// ParamsFromConfig maps classifier config onto training params.
func ParamsFromConfig(c config.ClassifierConfig) Params {
	return Params{
		Trees:           c.Trees,
		MaxDepth:        c.MaxDepth,
		MinSamplesSplit: c.MinSamplesSplit,
		MinSamplesLeaf:  c.MinSamplesLeaf,
		Seed:            c.Seed,
	}.withDefaults()
}

// Train labels scored rows against the shop survey, holds out a stratified test
// set, fits a forest on the rest and evaluates it on the held-out rows.
func Train(rows []features.Scored, shops []model.Shop, cfg config.ClassifierConfig) (*Forest, Report, error) {
	X, pts := Matrix(rows)
	y := Label(pts, shops, cfg.LabelRadiusKM)

	rep := Report{Rows: len(rows)}
	for _, v := range y {
		rep.Positives += v
	}
	if rep.Positives == 0 || rep.Positives == len(y) {
		return nil, rep, eris.Errorf("classifier: need both classes, got %d positive of %d", rep.Positives, len(y))
	}

	train, test, err := TrainTestSplit(y, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, rep, err
	}
	rep.TrainRows, rep.TestRows = len(train), len(test)

	forest := NewForest(features.VectorColumns(), ParamsFromConfig(cfg))
	if err := forest.Fit(subset(X, train), subset(y, train)); err != nil {
		return nil, rep, err
	}

	rep.Metrics, err = Evaluate(subset(y, test), forest.PredictProbaAll(subset(X, test)))
	if err != nil {
		return nil, rep, err
	}
	rep.Importance = forest.FeatureImportance()

	zap.L().Info("classifier trained",
		zap.Int("rows", rep.Rows),
		zap.Int("positives", rep.Positives),
		zap.Float64("accuracy", rep.Metrics.Accuracy),
		zap.Float64("f1", rep.Metrics.F1),
	)
	return forest, rep, nil
}

// Apply fills SuccessProbability on scored rows.
func (f *Forest) Apply(rows []features.Scored) {
	for i := range rows {
		p := f.PredictProba(rows[i].Vector())
		rows[i].SuccessProbability = &p
	}
}
