package similarity

import (
	"sort"

	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/faceid"
)

// Match is a video whose thumbnail contained a face scoring at or above the
// session threshold. Face embeddings stay internal; they are never part of
// the JSON view.
type Match struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	ThumbnailURL string            `json:"thumbnailUrl"`
	VideoURL     string            `json:"videoUrl"`
	SourceSite   string            `json:"sourceSite"`
	Score        float64           `json:"similarityScore"`
	Faces        []faceid.Detection `json:"detectedFaces"`
}

// BestMatch returns the maximum cosine similarity between the user embedding
// and any of the detected faces, or 0 for an empty list. A single comparison
// failure does not abort the others.
func BestMatch(user []float32, faces []faceid.Detection) float64 {
	best := 0.0
	for _, f := range faces {
		score, err := Cosine(user, f.Embedding)
		if err != nil {
			continue
		}
		if score > best {
			best = score
		}
	}
	return best
}

// Scored pairs a candidate-like item with its computed score so callers can
// build matches incrementally.
type Scored struct {
	Index int
	Score float64
}

// ScoreAll computes BestMatch for every face list, processing in fixed-size
// chunks to bound transient allocations. Order of the result follows the
// input order.
func ScoreAll(user []float32, faceLists [][]faceid.Detection) []Scored {
	scored := make([]Scored, 0, len(faceLists))
	for start := 0; start < len(faceLists); start += constants.ScoreChunkSize {
		end := start + constants.ScoreChunkSize
		if end > len(faceLists) {
			end = len(faceLists)
		}
		for i := start; i < end; i++ {
			scored = append(scored, Scored{Index: i, Score: BestMatch(user, faceLists[i])})
		}
	}
	return scored
}

// Rank drops matches below the threshold and sorts the survivors strictly
// descending by score, ties broken by lexicographic ID for determinism.
func Rank(matches []Match, threshold float64) ([]Match, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	ranked := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= threshold {
			ranked = append(ranked, m)
		}
	}
	SortMatches(ranked)
	return ranked, nil
}

// Rethreshold re-filters already-scored matches against a new threshold
// without recomputing any similarity. Relative ordering of survivors is
// preserved.
func Rethreshold(matches []Match, threshold float64) ([]Match, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= threshold {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// SortMatches orders matches strictly descending by score with a
// lexicographic ID tie-break.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
}

// IsSorted reports whether matches are in descending score order.
func IsSorted(matches []Match) bool {
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			return false
		}
	}
	return true
}
