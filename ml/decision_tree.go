package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a binary CART tree stored as a flat node slice so it
// serializes cleanly and can be walked without recursion.
type DecisionTree struct {
	Nodes []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	Probability float64 `json:"probability"`
	Samples     int     `json:"samples"`
	IsLeaf      bool    `json:"is_leaf"`
}

type treeParams struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	maxFeatures     int
}

type treeBuilder struct {
	features [][]float64
	labels   []int
	params   treeParams
	rnd      *rand.Rand
	nodes    []TreeNode
}

func (dt *DecisionTree) fit(features [][]float64, labels []int, sample []int, params treeParams, rnd *rand.Rand) error {
	if len(features) == 0 || len(labels) == 0 || len(sample) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if params.minSamplesSplit < 2 {
		params.minSamplesSplit = 2
	}
	featureCount := len(features[0])
	if params.maxFeatures <= 0 || params.maxFeatures > featureCount {
		params.maxFeatures = featureCount
	}

	b := &treeBuilder{
		features: features,
		labels:   labels,
		params:   params,
		rnd:      rnd,
	}
	b.build(sample, 0)
	dt.Nodes = b.nodes
	return nil
}

// PredictProba walks the tree and returns the positive fraction of the leaf.
// Missing trailing features read as zero.
func (dt *DecisionTree) PredictProba(x []float64) float64 {
	if len(dt.Nodes) == 0 {
		return 0
	}
	idx := 0
	for steps := 0; steps <= len(dt.Nodes); steps++ {
		node := dt.Nodes[idx]
		if node.IsLeaf {
			return node.Probability
		}
		value := 0.0
		if node.FeatureIdx >= 0 && node.FeatureIdx < len(x) {
			value = x[node.FeatureIdx]
		}
		if value <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			break
		}
	}
	return dt.Nodes[0].Probability
}

func (dt *DecisionTree) validate(featureCount int) error {
	if len(dt.Nodes) == 0 {
		return ErrModelNotTrained
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return errors.New("feature index out of range")
		}
		if node.LeftChild <= i || node.RightChild <= i ||
			node.LeftChild >= len(dt.Nodes) || node.RightChild >= len(dt.Nodes) {
			return errors.New("invalid tree state")
		}
	}
	return nil
}

// build appends the subtree for sample and returns its root index.
func (b *treeBuilder) build(sample []int, depth int) int {
	positives := countPositives(b.labels, sample)
	idx := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{
		FeatureIdx:  -1,
		LeftChild:   -1,
		RightChild:  -1,
		Probability: float64(positives) / float64(len(sample)),
		Samples:     len(sample),
		IsLeaf:      true,
	})

	if positives == 0 || positives == len(sample) ||
		len(sample) < b.params.minSamplesSplit ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) {
		return idx
	}

	feature, threshold, ok := b.findBestSplit(sample)
	if !ok {
		return idx
	}
	left, right := partition(b.features, sample, feature, threshold)
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &b.nodes[idx]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	return idx
}

// findBestSplit draws features in random order and evaluates up to
// maxFeatures of them that are not constant on the sample.
func (b *treeBuilder) findBestSplit(sample []int) (int, float64, bool) {
	featureCount := len(b.features[0])
	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	evaluated := 0
	for _, featureIdx := range b.rnd.Perm(featureCount) {
		if evaluated >= b.params.maxFeatures {
			break
		}
		threshold, impurity, ok := bestThresholdFor(b.features, b.labels, sample, featureIdx)
		if !ok {
			continue
		}
		evaluated++
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// bestThresholdFor sweeps the sorted values of one feature and returns the
// midpoint split with the lowest weighted Gini impurity.
func bestThresholdFor(features [][]float64, labels []int, sample []int, featureIdx int) (float64, float64, bool) {
	sorted := append([]int(nil), sample...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return features[sorted[i]][featureIdx] < features[sorted[j]][featureIdx]
	})

	total := len(sorted)
	totalPositives := countPositives(labels, sorted)
	leftPositives := 0
	bestImpurity := math.MaxFloat64
	bestThreshold := 0.0
	found := false

	for i := 0; i < total-1; i++ {
		if labels[sorted[i]] == 1 {
			leftPositives++
		}
		current := features[sorted[i]][featureIdx]
		next := features[sorted[i+1]][featureIdx]
		if current == next {
			continue
		}
		leftCount := i + 1
		rightCount := total - leftCount
		impurity := (float64(leftCount)*binaryGini(leftPositives, leftCount) +
			float64(rightCount)*binaryGini(totalPositives-leftPositives, rightCount)) / float64(total)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestThreshold = current + (next-current)/2
			found = true
		}
	}
	return bestThreshold, bestImpurity, found
}

func partition(features [][]float64, sample []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(sample))
	right := make([]int, 0, len(sample))
	for _, i := range sample {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func binaryGini(positives, count int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(positives) / float64(count)
	return 2 * p * (1 - p)
}

func countPositives(labels []int, sample []int) int {
	n := 0
	for _, i := range sample {
		if labels[i] == 1 {
			n++
		}
	}
	return n
}
