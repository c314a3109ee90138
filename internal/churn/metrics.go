package churn

import "sort"

// Accuracy is the share of rows whose thresholded probability matches the label
func Accuracy(labels []int, proba []float64, threshold float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	hits := 0
	for i, y := range labels {
		pred := 0
		if proba[i] >= threshold {
			pred = 1
		}
		if pred == y {
			hits++
		}
	}
	return float64(hits) / float64(len(labels))
}

// ROCAUC computes the area under the ROC curve using average ranks for ties.
// It returns 0.5 when only one class is present.
func ROCAUC(labels []int, proba []float64) float64 {
	n := len(labels)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return proba[order[a]] < proba[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && proba[order[j+1]] == proba[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	pos, rankSum := 0, 0.0
	for i, y := range labels {
		if y == 1 {
			pos++
			rankSum += ranks[i]
		}
	}
	neg := n - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (rankSum - float64(pos*(pos+1))/2) / float64(pos*neg)
}
