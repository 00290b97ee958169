// Package similarity provides the cosine-similarity primitives the
// semantic chunker and chunk store build on: pairwise similarity sequences
// and percentile-based adaptive thresholds.
package similarity

import (
	"math"
	"sort"

	"docbase/internal/kberrors"
)

// Cosine computes dot(a,b) / (||a|| * ||b||), in [-1, 1]. It returns a
// *kberrors.DimensionMismatch if a and b differ in length (or are both
// empty), and a *kberrors.Validation if either vector has zero magnitude
// or the result is not a finite number.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, kberrors.NewDimensionMismatch(len(a), len(b))
	}
	if len(a) == 0 {
		return 0, kberrors.NewDimensionMismatch(0, 0)
	}

	var dot, magA, magB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		magA += ai * ai
		magB += bi * bi
	}

	if magA == 0 || magB == 0 {
		return 0, kberrors.NewValidation("cannot calculate similarity for zero vector")
	}

	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if math.IsNaN(sim) {
		return 0, kberrors.NewValidation("invalid value in similarity calculation: NaN")
	}
	if math.IsInf(sim, 0) {
		return 0, kberrors.NewValidation("invalid value in similarity calculation: infinite")
	}

	return float32(sim), nil
}

// Pairwise returns cosine(v[i], v[i+1]) for i in [0, len(v)-1). len(v) < 2
// returns an empty (nil) slice, not an error.
func Pairwise(v [][]float32) ([]float32, error) {
	if len(v) < 2 {
		return nil, nil
	}

	sims := make([]float32, 0, len(v)-1)
	for i := 0; i < len(v)-1; i++ {
		sim, err := Cosine(v[i], v[i+1])
		if err != nil {
			return nil, err
		}
		sims = append(sims, sim)
	}
	return sims, nil
}

// Percentile returns the value at round(p*(n-1)) of the sorted copy of xs.
// It panics on an empty slice or p outside [0,1]: both are programmer
// errors, never recoverable input from a caller.
func Percentile(xs []float32, p float32) float32 {
	if len(xs) == 0 {
		panic("similarity: cannot calculate percentile of empty slice")
	}
	if p < 0.0 || p > 1.0 {
		panic("similarity: percentile must be between 0.0 and 1.0")
	}

	sorted := make([]float32, len(xs))
	copy(sorted, xs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(math.Round(float64(p) * float64(len(sorted)-1)))
	return sorted[index]
}
