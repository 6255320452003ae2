package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultNumTrees = 100
	DefaultSeed     = 42
)

// RandomForest averages the leaf probabilities of bootstrap-trained trees.
// It is read-only after Fit or Load, so PredictProba is safe for
// concurrent use.
type RandomForest struct {
	NumTrees        int             `json:"num_trees"`
	MaxDepth        int             `json:"max_depth"`
	MinSamplesSplit int             `json:"min_samples_split"`
	Seed            int64           `json:"seed"`
	NumFeatures     int             `json:"num_features"`
	Trees           []*DecisionTree `json:"trees"`

	// Workers bounds parallel tree fitting; it does not affect the result.
	Workers int `json:"-"`
}

func NewRandomForest(numTrees int, seed int64) *RandomForest {
	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}
	return &RandomForest{
		NumTrees:        numTrees,
		MinSamplesSplit: 2,
		Seed:            seed,
	}
}

// Fit trains NumTrees trees. Per-tree seeds are drawn up front from the
// forest seed, so the fitted forest is identical for any worker count.
func (rf *RandomForest) Fit(ctx context.Context, features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	featureCount := len(features[0])
	for i, row := range features {
		if len(row) != featureCount {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), featureCount)
		}
	}
	if rf.NumTrees <= 0 {
		rf.NumTrees = DefaultNumTrees
	}

	params := treeParams{
		maxDepth:        rf.MaxDepth,
		minSamplesSplit: rf.MinSamplesSplit,
		maxFeatures:     maxFeaturesFor(featureCount),
	}

	master := rand.New(rand.NewSource(rf.Seed))
	seeds := make([]int64, rf.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*DecisionTree, rf.NumTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rnd := rand.New(rand.NewSource(seeds[i]))
			sample := bootstrap(len(features), rnd)
			tree := &DecisionTree{}
			if err := tree.fit(features, labels, sample, params, rnd); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.NumFeatures = featureCount
	rf.Trees = trees
	return nil
}

// PredictProba returns the mean positive-class probability over all trees.
func (rf *RandomForest) PredictProba(x []float64) float64 {
	if len(rf.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, tree := range rf.Trees {
		sum += tree.PredictProba(x)
	}
	return clampProbability(sum / float64(len(rf.Trees)))
}

// Validate checks a forest loaded from disk before it is used for scoring.
func (rf *RandomForest) Validate() error {
	if len(rf.Trees) == 0 {
		return ErrModelNotTrained
	}
	if rf.NumFeatures <= 0 {
		return errors.New("forest has no features")
	}
	for i, tree := range rf.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d: %w", i, ErrModelNotTrained)
		}
		if err := tree.validate(rf.NumFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// maxFeaturesFor mirrors the usual sqrt(p) rule for classification forests.
func maxFeaturesFor(featureCount int) int {
	k := int(math.Sqrt(float64(featureCount)))
	if k < 1 {
		k = 1
	}
	return k
}

func bootstrap(n int, rnd *rand.Rand) []int {
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rnd.Intn(n)
	}
	return sample
}

func clampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
