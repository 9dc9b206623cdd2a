// Package similarity implements the cosine-similarity math used to score
// face embeddings, plus batch filtering and ranking of video matches.
// Everything in this package is pure computation; nothing suspends.
package similarity

import (
	"math"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/fault"
)

// Cosine computes the cosine similarity between two embeddings, clamped to
// [0, 1]. Negative similarity collapses to 0; a zero-norm vector yields 0.
func Cosine(a, b []float32) (float64, error) {
	if err := ValidateEmbedding(a); err != nil {
		return 0, err
	}
	if err := ValidateEmbedding(b); err != nil {
		return 0, err
	}
	if len(a) != len(b) {
		return 0, fault.New(fault.CodeValidation, "embeddings have different dimensions")
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to handle floating point errors and collapse negatives.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < 0 {
		similarity = 0
	}
	return similarity, nil
}

// ValidateEmbedding rejects vectors that cannot be a real face embedding:
// unsupported length, non-finite values, out-of-range magnitudes, all-zero,
// or uniform content. Only the model dimensions are accepted.
func ValidateEmbedding(v []float32) error {
	if len(v) != constants.EmbeddingDimSmall && len(v) != constants.EmbeddingDimLarge {
		return fault.Newf(fault.CodeValidation, "embedding length %d is not supported", len(v))
	}

	allZero := true
	uniform := true
	first := v[0]
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fault.New(fault.CodeValidation, "embedding contains non-finite values")
		}
		if math.Abs(f) > 100 {
			return fault.New(fault.CodeValidation, "embedding contains out-of-range values")
		}
		if x != 0 {
			allZero = false
		}
		if x != first {
			uniform = false
		}
	}

	if allZero {
		return fault.New(fault.CodeValidation, "embedding is all zeros")
	}
	if uniform {
		return fault.New(fault.CodeValidation, "embedding is uniform")
	}
	return nil
}

// ValidateThreshold checks that a similarity threshold is within bounds.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < constants.MinThreshold || t > constants.MaxThreshold {
		return fault.Newf(fault.CodeInvalidThreshold, "threshold must be between %.1f and %.1f", constants.MinThreshold, constants.MaxThreshold)
	}
	return nil
}

// RoundScore rounds a similarity score to two decimals for external
// exposure.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}
