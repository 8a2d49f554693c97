package engine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/viruchith/anomalyd/model"
)

// ForestConfig holds isolation forest hyperparameters.
type ForestConfig struct {
	Trees         int
	SubsampleSize int
	Contamination float64
	Seed          int64
}

// DefaultForestConfig returns the standard forest parameters.
func DefaultForestConfig(contamination float64) ForestConfig {
	return ForestConfig{
		Trees:         100,
		SubsampleSize: 256,
		Contamination: contamination,
		Seed:          1,
	}
}

// ErrInsufficientData is returned by FitForest when there are too few
// samples to build trees from.
var ErrInsufficientData = errors.New("forest: not enough samples to fit")

// ErrFitCanceled is returned when the fit's context is canceled mid-build.
var ErrFitCanceled = errors.New("forest: fit canceled")

// iNode is one node of an isolation tree. Leaves have nil children and
// carry the number of training points that reached them.
type iNode struct {
	feature int
	split   float64
	left    *iNode
	right   *iNode
	size    int
}

// Forest is a trained isolation forest over the seven-feature sample
// vector. A Forest is immutable after FitForest returns, so it is safe to
// share across goroutines and swap behind an atomic pointer.
//
// Score convention: the path-length anomaly score s in [0,1] (higher = more
// isolated) is converted to a signed raw score 2*(q - s), where q is the
// (1-contamination) quantile of the training scores. The boundary sits at
// the quantile, so roughly a contamination fraction of training samples
// score negative, and strong outliers reach well past the fixed severity
// thresholds.
type Forest struct {
	trees     []*iNode
	offset    float64
	cPsi      float64
	trainedAt time.Time
	fitCount  int
}

const rawScoreScale = 2.0

// maxTreeDepth is the height limit for a subsample of size psi.
func maxTreeDepth(psi int) int {
	if psi < 2 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(psi))))
}

// avgPathLength is c(n), the average unsuccessful-search path length in a
// BST of n nodes; the standard isolation forest normalizer.
func avgPathLength(n int) float64 {
	if n < 2 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}

// FitForest trains a forest on the given samples. The fit is deterministic
// for a fixed config and input sequence. ctx aborts a fit abandoned during
// shutdown between trees.
func FitForest(ctx context.Context, samples []model.MetricSample, cfg ForestConfig, trainedAt time.Time) (*Forest, error) {
	if len(samples) < 2 {
		return nil, ErrInsufficientData
	}
	data := make([][]float64, len(samples))
	for i, s := range samples {
		data[i] = s.Features()
	}

	psi := cfg.SubsampleSize
	if psi > len(data) {
		psi = len(data)
	}
	depthCap := maxTreeDepth(psi)
	rng := rand.New(rand.NewSource(cfg.Seed))

	f := &Forest{
		trees:     make([]*iNode, 0, cfg.Trees),
		cPsi:      avgPathLength(psi),
		trainedAt: trainedAt,
		fitCount:  len(samples),
	}
	for t := 0; t < cfg.Trees; t++ {
		if ctx.Err() != nil {
			return nil, ErrFitCanceled
		}
		sub := subsample(data, psi, rng)
		f.trees = append(f.trees, buildTree(sub, 0, depthCap, rng))
	}

	// Decision boundary from the training score distribution.
	scores := make([]float64, len(data))
	for i, v := range data {
		scores[i] = f.pathScore(v)
	}
	q, err := stats.Percentile(scores, (1-cfg.Contamination)*100)
	if err != nil {
		return nil, err
	}
	f.offset = q
	return f, nil
}

// subsample draws psi rows without replacement.
func subsample(data [][]float64, psi int, rng *rand.Rand) [][]float64 {
	if psi >= len(data) {
		return data
	}
	idx := rng.Perm(len(data))[:psi]
	out := make([][]float64, psi)
	for i, j := range idx {
		out[i] = data[j]
	}
	return out
}

// buildTree grows one isolation tree. Splits are drawn uniformly in the
// [min,max] range of a random feature; a zero-width range still splits,
// leaving one side as an empty leaf, so points outside the training range
// isolate immediately even when the training data is constant.
func buildTree(data [][]float64, depth, depthCap int, rng *rand.Rand) *iNode {
	if depth >= depthCap || len(data) <= 1 {
		return &iNode{feature: -1, size: len(data)}
	}

	feat := rng.Intn(model.NumFeatures)
	lo, hi := data[0][feat], data[0][feat]
	for _, row := range data[1:] {
		v := row[feat]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, row := range data {
		if row[feat] <= split {
			left = append(left, row)
		} else {
			right = append(right, row)
		}
	}
	return &iNode{
		feature: feat,
		split:   split,
		left:    buildTree(left, depth+1, depthCap, rng),
		right:   buildTree(right, depth+1, depthCap, rng),
		size:    len(data),
	}
}

// pathLength walks one tree and returns the adjusted path length.
func pathLength(node *iNode, v []float64) float64 {
	depth := 0.0
	for node.feature >= 0 {
		if v[node.feature] <= node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + avgPathLength(node.size)
}

// pathScore is the classic isolation score in [0,1].
func (f *Forest) pathScore(v []float64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += pathLength(t, v)
	}
	mean := sum / float64(len(f.trees))
	if f.cPsi == 0 {
		return 0.5
	}
	return math.Pow(2, -mean/f.cPsi)
}

// Score returns the signed raw score for a sample. Deterministic for a
// given forest: lower is more anomalous and the decision boundary is 0.
func (f *Forest) Score(s model.MetricSample) float64 {
	return rawScoreScale * (f.offset - f.pathScore(s.Features()))
}

// TrainedAt returns the timestamp of the fit that produced this forest.
func (f *Forest) TrainedAt() time.Time { return f.trainedAt }

// SampleCountAtFit returns the size of the training window used.
func (f *Forest) SampleCountAtFit() int { return f.fitCount }
