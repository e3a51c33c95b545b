package model

import "sort"

// rankIndices orders class indices by descending probability. Ties keep
// index order.
func rankIndices(probs []float64) []int {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})
	return idx
}

// topPredictions returns the min(k, len(probs)) best classes.
func topPredictions(probs []float64, classNames []string, k int) []TopPrediction {
	ranked := rankIndices(probs)
	if k > len(ranked) {
		k = len(ranked)
	}

	top := make([]TopPrediction, 0, k)
	for _, i := range ranked[:k] {
		top = append(top, TopPrediction{
			Class:      classNames[i],
			Confidence: probs[i],
			Percentage: probs[i] * 100,
		})
	}
	return top
}
