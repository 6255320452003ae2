package ml

import (
	"errors"
	"sort"
)

// ROCAUC computes the area under the ROC curve with the rank-sum
// formulation. Tied scores share their average rank.
func ROCAUC(labels []int, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, errors.New("labels and scores size mismatch")
	}

	positives, negatives := 0, 0
	for _, label := range labels {
		if label == 1 {
			positives++
		} else {
			negatives++
		}
	}
	if positives == 0 || negatives == 0 {
		return 0, ErrUndefinedAUC
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] < scores[order[j]]
	})

	positiveRankSum := 0.0
	for start := 0; start < len(order); {
		end := start + 1
		for end < len(order) && scores[order[end]] == scores[order[start]] {
			end++
		}
		// ranks are 1-based; the tie group [start, end) shares their mean
		avgRank := float64(start+end+1) / 2
		for _, idx := range order[start:end] {
			if labels[idx] == 1 {
				positiveRankSum += avgRank
			}
		}
		start = end
	}

	p := float64(positives)
	n := float64(negatives)
	return (positiveRankSum - p*(p+1)/2) / (p * n), nil
}

// Accuracy is the share of predictions at the decision threshold that
// match labels. It is reported alongside AUC for the training log.
func Accuracy(labels []int, scores []float64) float64 {
	if len(labels) == 0 || len(labels) != len(scores) {
		return 0
	}
	correct := 0
	for i, score := range scores {
		if decide(score) == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}
