package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-finder/internal/fault"
)

// vec builds a deterministic non-uniform embedding of the given length.
func vec(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i%13)*0.05
	}
	return v
}

func TestCosine_Identity(t *testing.T) {
	a := vec(128, 0.3)
	score, err := Cosine(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestCosine_Symmetry(t *testing.T) {
	a := vec(128, 0.3)
	b := vec(128, -0.2)
	ab, err := Cosine(a, b)
	require.NoError(t, err)
	ba, err := Cosine(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestCosine_Range(t *testing.T) {
	vectors := [][]float32{vec(128, 0.1), vec(128, -0.5), vec(128, 2.0), vec(128, -3.0)}
	for _, a := range vectors {
		for _, b := range vectors {
			score, err := Cosine(a, b)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	}
}

func TestCosine_NegativeCollapsesToZero(t *testing.T) {
	a := make([]float32, 128)
	b := make([]float32, 128)
	for i := range a {
		a[i] = float32(i%5) + 1
		b[i] = -a[i]
	}
	// Perturb one element so neither vector is uniform.
	a[0] = 7
	b[0] = -7

	score, err := Cosine(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestCosine_DimensionMismatch(t *testing.T) {
	_, err := Cosine(vec(128, 0.1), vec(512, 0.1))
	require.Error(t, err)
	assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
}

func TestValidateEmbedding(t *testing.T) {
	nan := vec(128, 0.1)
	nan[10] = float32(math.NaN())
	inf := vec(128, 0.1)
	inf[10] = float32(math.Inf(1))
	big := vec(128, 0.1)
	big[10] = 101

	uniform := make([]float32, 128)
	for i := range uniform {
		uniform[i] = 0.5
	}

	tests := []struct {
		name string
		v    []float32
		ok   bool
	}{
		{"valid 128", vec(128, 0.1), true},
		{"valid 512", vec(512, 0.1), true},
		{"one short of 128", vec(127, 0.1), false},
		{"one past 128", vec(129, 0.1), false},
		{"between model dims", vec(300, 0.1), false},
		{"one past 512", vec(513, 0.1), false},
		{"too short", vec(32, 0.1), false},
		{"too long", vec(2048, 0.1), false},
		{"nan", nan, false},
		{"inf", inf, false},
		{"magnitude over 100", big, false},
		{"all zeros", make([]float32, 128), false},
		{"uniform", uniform, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateEmbedding(tc.v)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, fault.CodeValidation, fault.CodeOf(err))
			}
		})
	}
}

func TestValidateThreshold_Boundaries(t *testing.T) {
	assert.NoError(t, ValidateThreshold(0.1))
	assert.NoError(t, ValidateThreshold(1.0))
	assert.NoError(t, ValidateThreshold(0.7))

	for _, bad := range []float64{0.09999, 1.00001, 0, -1, math.NaN()} {
		err := ValidateThreshold(bad)
		require.Error(t, err, "threshold %v", bad)
		assert.Equal(t, fault.CodeInvalidThreshold, fault.CodeOf(err))
	}
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.87, RoundScore(0.8671))
	assert.Equal(t, 0.87, RoundScore(0.866))
	assert.Equal(t, 1.0, RoundScore(0.999))
	assert.Equal(t, 0.0, RoundScore(0.004))
}
