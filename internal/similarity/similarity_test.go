package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docbase/internal/kberrors"
)

func TestCosine_IdenticalVectors(t *testing.T) {
	got, err := Cosine([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got, 1e-6)
}

func TestCosine_OrthogonalVectors(t *testing.T) {
	got, err := Cosine([]float32{1, 0, 0}, []float32{0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-6)
}

func TestCosine_OppositeVectors(t *testing.T) {
	got, err := Cosine([]float32{1, 2, 3}, []float32{-1, -2, -3})
	require.NoError(t, err)
	assert.InDelta(t, -1.0, got, 1e-6)
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	var dm *kberrors.DimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestCosine_ZeroVector(t *testing.T) {
	_, err := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	var v *kberrors.Validation
	require.ErrorAs(t, err, &v)
}

func TestCosine_EmptyVectors(t *testing.T) {
	_, err := Cosine(nil, nil)
	var dm *kberrors.DimensionMismatch
	require.ErrorAs(t, err, &dm)
}

// P5 — similarity bounds for unit-norm vectors.
func TestCosine_UnitNormBounds(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0.5, 0.866025}
	got, err := Cosine(a, b)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-5)
	assert.GreaterOrEqual(t, got, float32(-1.0))
	assert.LessOrEqual(t, got, float32(1.0))
}

func TestPairwise_Simple(t *testing.T) {
	v := [][]float32{{1, 0}, {0.9, 0.1}, {0, 1}}
	sims, err := Pairwise(v)
	require.NoError(t, err)
	require.Len(t, sims, 2)
	assert.Greater(t, sims[0], float32(0.9))
	assert.Less(t, sims[1], float32(0.5))
}

func TestPairwise_SingleEmbedding(t *testing.T) {
	sims, err := Pairwise([][]float32{{1, 2, 3}})
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestPairwise_Empty(t *testing.T) {
	sims, err := Pairwise(nil)
	require.NoError(t, err)
	assert.Empty(t, sims)
}

func TestPercentile_Median(t *testing.T) {
	assert.Equal(t, float32(3.0), Percentile([]float32{1, 2, 3, 4, 5}, 0.5))
}

func TestPercentile_Quartiles(t *testing.T) {
	xs := []float32{1, 2, 3, 4, 5}
	assert.Equal(t, float32(2.0), Percentile(xs, 0.25))
	assert.Equal(t, float32(4.0), Percentile(xs, 0.75))
}

func TestPercentile_Unsorted(t *testing.T) {
	assert.Equal(t, float32(3.0), Percentile([]float32{5, 1, 3, 2, 4}, 0.5))
}

func TestPercentile_MinMax(t *testing.T) {
	xs := []float32{1, 2, 3, 4, 5}
	assert.Equal(t, float32(1.0), Percentile(xs, 0.0))
	assert.Equal(t, float32(5.0), Percentile(xs, 1.0))
}

func TestPercentile_EmptyPanics(t *testing.T) {
	assert.Panics(t, func() { Percentile(nil, 0.5) })
}

func TestPercentile_OutOfRangePanics(t *testing.T) {
	assert.Panics(t, func() { Percentile([]float32{1, 2, 3}, 1.5) })
}
