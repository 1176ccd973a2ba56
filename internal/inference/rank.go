package inference

import (
	"fmt"
	"math"
	"slices"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
)

// Softmax turns raw scores into a probability distribution. The maximum is
// subtracted first so large logits do not overflow.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	probs := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		probs[i] = math.Exp(s - maxScore)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// TopK returns the indices of the k largest values, largest first. Equal values
// keep their original order, so the lower index wins a tie.
func TopK(probs []float64, k int) ([]int, error) {
	if k <= 0 || k > len(probs) {
		return nil, fmt.Errorf("%w: k=%d must be between 1 and %d", ErrInvalidArgument, k, len(probs))
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		switch {
		case probs[a] > probs[b]:
			return -1
		case probs[a] < probs[b]:
			return 1
		}
		return 0
	})
	return idx[:k], nil
}

// Rank maps the top-k probabilities onto catalog labels.
func Rank(probs []float64, cat *catalog.Catalog, k int) (Result, error) {
	if len(probs) != cat.Len() {
		return nil, fmt.Errorf("%w: %d scores for %d classes", ErrModelUnavailable, len(probs), cat.Len())
	}

	top, err := TopK(probs, k)
	if err != nil {
		return nil, err
	}

	result := make(Result, len(top))
	for i, idx := range top {
		result[i] = LabeledScore{
			Index:       idx,
			Label:       cat.Label(idx),
			Name:        cat.Name(idx),
			Probability: probs[idx],
		}
	}
	return result, nil
}

func toFloat64(scores []float32) ([]float64, error) {
	out := make([]float64, len(scores))
	for i, s := range scores {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite score at index %d", ErrModelUnavailable, i)
		}
		out[i] = v
	}
	return out, nil
}
