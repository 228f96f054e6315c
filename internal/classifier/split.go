package classifier

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit returns train and test row indices. Each class is shuffled
// with the seeded generator and testFraction of it, rounded, is held out,
// so both sides keep the label balance.
func TrainTestSplit(y []int, testFraction float64, seed uint64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, eris.Errorf("classifier: test fraction %v must be in (0, 1)", testFraction)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	byClass := map[int][]int{}
	for i, v := range y {
		byClass[v] = append(byClass[v], i)
	}
	for _, class := range []int{0, 1} {
		idx := byClass[class]
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		k := int(math.Round(testFraction * float64(len(idx))))
		test = append(test, idx[:k]...)
		train = append(train, idx[k:]...)
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, eris.Errorf("classifier: %d rows too few to split", len(y))
	}
	return train, test, nil
}

// Metrics summarizes binary classification quality. AUC is nil when the
// labels contain a single class.
type Metrics struct {
	Support        int      `json:"support"`
	Positives      int      `json:"positives"`
	TruePositives  int      `json:"true_positives"`
	FalsePositives int      `json:"false_positives"`
	TrueNegatives  int      `json:"true_negatives"`
	FalseNegatives int      `json:"false_negatives"`
	Accuracy       float64  `json:"accuracy"`
	Precision      float64  `json:"precision"`
	Recall         float64  `json:"recall"`
	F1             float64  `json:"f1"`
	AUC            *float64 `json:"auc,omitempty"`
}

// Evaluate scores predicted probabilities against labels, thresholding at
// 0.5. Undefined ratios are reported as 0.
func Evaluate(y []int, proba []float64) (Metrics, error) {
	if len(y) != len(proba) {
		return Metrics{}, eris.Errorf("classifier: %d labels but %d predictions", len(y), len(proba))
	}
	m := Metrics{Support: len(y)}
	for i, label := range y {
		pred := proba[i] >= 0.5
		switch {
		case label == 1 && pred:
			m.TruePositives++
		case label == 1:
			m.FalseNegatives++
		case pred:
			m.FalsePositives++
		default:
			m.TrueNegatives++
		}
		m.Positives += label
	}
	m.Accuracy = ratio(m.TruePositives+m.TrueNegatives, m.Support)
	m.Precision = ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	m.Recall = ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	if m.Positives > 0 && m.Positives < m.Support {
		auc := AUC(y, proba)
		m.AUC = &auc
	}
	return m, nil
}

// AUC returns the area under the ROC curve of proba against y.
func AUC(y []int, proba []float64) float64 {
	scores := append([]float64(nil), proba...)
	classes := make([]bool, len(y))
	for i, v := range y {
		classes[i] = v == 1
	}
	stat.SortWeightedLabeled(scores, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, scores, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
