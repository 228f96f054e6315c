// Package classifier predicts tract success probability with a random
// forest trained on proximity to known successful shops.
package classifier

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
)

// Params configures forest training.
type Params struct {
	Trees           int    `json:"trees"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     int    `json:"max_features,omitempty"` // 0 means sqrt(features)
	Seed            uint64 `json:"seed"`
}

// DefaultParams returns the training defaults.
func DefaultParams() Params {
	return Params{Trees: 100, MaxDepth: 8, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 42}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.Trees <= 0 {
		p.Trees = def.Trees
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	return p
}

// node is one tree node. Leaves have Feature == -1 and carry the positive
// class fraction of their training samples in Value.
type node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
}

// Tree is a CART classification tree stored as a flat node slice rooted at
// index 0.
type Tree struct {
	Nodes []node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Forest is a trained random forest.
type Forest struct {
	Params     Params    `json:"params"`
	Columns    []string  `json:"columns"`
	Trees      []Tree    `json:"trees"`
	Importance []float64 `json:"importance"`
}

// NewForest returns an untrained forest over the named feature columns.
func NewForest(columns []string, p Params) *Forest {
	return &Forest{Params: p.withDefaults(), Columns: columns}
}

// Fit trains the forest on X with binary labels y. Each tree gets its own
// seeded generator so training is reproducible regardless of scheduling.
func (f *Forest) Fit(X [][]float64, y []int) error {
	if len(X) == 0 {
		return eris.New("classifier: no training rows")
	}
	if len(X) != len(y) {
		return eris.Errorf("classifier: %d rows but %d labels", len(X), len(y))
	}
	width := len(f.Columns)
	for i, row := range X {
		if len(row) != width {
			return eris.Errorf("classifier: row %d has %d features, want %d", i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return eris.Errorf("classifier: row %d feature %q is not finite", i, f.Columns[j])
			}
		}
	}
	for i, v := range y {
		if v != 0 && v != 1 {
			return eris.Errorf("classifier: label %d at row %d is not binary", v, i)
		}
	}

	p := f.Params
	trees := make([]Tree, p.Trees)
	imps := make([][]float64, p.Trees)

	var g errgroup.Group
	g.SetLimit(8)
	for t := 0; t < p.Trees; t++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
			b := &builder{X: X, y: y, p: p, rng: rng, width: width, imp: make([]float64, width)}
			sample := make([]int, len(X))
			for i := range sample {
				sample[i] = rng.IntN(len(X))
			}
			b.grow(sample, 0)
			trees[t] = Tree{Nodes: b.nodes}
			imps[t] = normalize(b.imp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "classifier: grow trees")
	}

	f.Trees = trees
	f.Importance = make([]float64, width)
	for _, imp := range imps {
		for j, v := range imp {
			f.Importance[j] += v
		}
	}
	f.Importance = normalize(f.Importance)
	return nil
}

// PredictProba returns the mean positive fraction of the leaves x falls in.
func (f *Forest) PredictProba(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	var sum float64
	for i := range f.Trees {
		sum += f.Trees[i].predict(x)
	}
	return sum / float64(len(f.Trees))
}

// PredictProbaAll applies PredictProba to every row.
func (f *Forest) PredictProbaAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = f.PredictProba(x)
	}
	return out
}

// Predict returns 1 when the predicted probability is at least 0.5.
func (f *Forest) Predict(x []float64) int {
	if f.PredictProba(x) >= 0.5 {
		return 1
	}
	return 0
}

// Importance pairs a column with its normalized impurity decrease.
type Importance struct {
	Column string  `json:"column"`
	Value  float64 `json:"importance"`
}

// FeatureImportance returns column importances, most important first.
func (f *Forest) FeatureImportance() []Importance {
	out := make([]Importance, 0, len(f.Importance))
	for j, v := range f.Importance {
		name := ""
		if j < len(f.Columns) {
			name = f.Columns[j]
		}
		out = append(out, Importance{Column: name, Value: v})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out
}

func normalize(xs []float64) []float64 {
	var sum float64
	for _, v := range xs {
		sum += v
	}
	if sum <= 0 {
		return xs
	}
	for i := range xs {
		xs[i] /= sum
	}
	return xs
}

type builder struct {
	X     [][]float64
	y     []int
	p     Params
	rng   *rand.Rand
	width int
	nodes []node
	imp   []float64
}

func (b *builder) positives(idx []int) int {
	n := 0
	for _, i := range idx {
		n += b.y[i]
	}
	return n
}

// grow builds the subtree for idx and returns its node index.
func (b *builder) grow(idx []int, depth int) int {
	pos := b.positives(idx)
	at := len(b.nodes)
	b.nodes = append(b.nodes, node{Feature: -1, Value: float64(pos) / float64(len(idx))})

	if pos == 0 || pos == len(idx) || len(idx) < b.p.MinSamplesSplit ||
		(b.p.MaxDepth > 0 && depth >= b.p.MaxDepth) {
		return at
	}

	feat, thr, gain, ok := b.bestSplit(idx, pos)
	if !ok {
		return at
	}
	b.imp[feat] += gain

	var left, right []int
	for _, i := range idx {
		if b.X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[at] = node{Feature: feat, Threshold: thr, Left: l, Right: r, Value: b.nodes[at].Value}
	return at
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// bestSplit searches a random subset of features for the threshold with the
// largest weighted Gini decrease.
func (b *builder) bestSplit(idx []int, pos int) (feat int, thr, gain float64, ok bool) {
	mtry := b.p.MaxFeatures
	if mtry <= 0 {
		mtry = int(math.Max(1, math.Floor(math.Sqrt(float64(b.width)))))
	}
	if mtry > b.width {
		mtry = b.width
	}

	n := len(idx)
	parent := float64(n) * gini(pos, n)
	minLeaf := b.p.MinSamplesLeaf
	sorted := make([]int, n)

	for _, j := range b.rng.Perm(b.width)[:mtry] {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][j] < b.X[sorted[c]][j] })

		leftPos := 0
		for k := 0; k < n-1; k++ {
			leftPos += b.y[sorted[k]]
			lo, hi := b.X[sorted[k]][j], b.X[sorted[k+1]][j]
			if lo == hi {
				continue
			}
			nl, nr := k+1, n-k-1
			if nl < minLeaf || nr < minLeaf {
				continue
			}
			child := float64(nl)*gini(leftPos, nl) + float64(nr)*gini(pos-leftPos, nr)
			if g := parent - child; g > gain+1e-12 {
				mid := lo + (hi-lo)/2
				if mid >= hi {
					mid = lo
				}
				feat, thr, gain, ok = j, mid, g, true
			}
		}
	}
	return feat, thr, gain, ok
}
