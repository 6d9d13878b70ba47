package model

import "math"

// Sigmoid maps a logit to (0, 1).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Softmax returns the probability of class idx among logits.
func Softmax(logits []float32, idx int) float64 {
	if idx < 0 || idx >= len(logits) {
		return 0
	}
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = max(maxLogit, float64(l))
	}
	var sum float64
	for _, l := range logits {
		sum += math.Exp(float64(l) - maxLogit)
	}
	return math.Exp(float64(logits[idx])-maxLogit) / sum
}

// Clamp01 bounds a score to [0, 1]; NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return min(max(x, 0), 1)
}
