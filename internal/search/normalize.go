package search

import "fmt"

// minMaxNormalize maps raw scores onto [0,1]. An empty input normalizes to
// empty; all-equal scores normalize to 1.0 for every entry.
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// checkNormalized rejects any score outside [0,1] before fusion.
func checkNormalized(name string, scores []float64) error {
	for i, s := range scores {
		if s < 0 || s > 1 {
			return fmt.Errorf("%w: %s[%d] = %g", ErrScoreOutOfRange, name, i, s)
		}
	}
	return nil
}
