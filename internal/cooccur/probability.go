package cooccur

import (
	"fmt"
	"math"
)

// Conditional holds the two conditional probabilities of a tallied pair.
type Conditional struct {
	Pair     Pair
	Count    int
	PAGivenB float64 // Count / freq(B)
	PBGivenA float64 // Count / freq(A)
	FreqA    int
	FreqB    int
}

// Ratio is max(P(A|B), P(B|A)) / min(P(A|B), P(B|A)). The shared count
// cancels, so it is taken from the frequencies and stays exact.
func (c Conditional) Ratio() float64 {
	hi, lo := c.FreqA, c.FreqB
	if lo > hi {
		hi, lo = lo, hi
	}
	if lo == 0 {
		return math.Inf(1)
	}
	return float64(hi) / float64(lo)
}

// Conditionals evaluates P(A|B) and P(B|A) for every pair with at least
// minCooccurrence shared records. Order of the result is unspecified.
func Conditionals(t *Tally, minCooccurrence int) ([]Conditional, error) {
	if minCooccurrence < 1 {
		return nil, &InvariantError{Reason: fmt.Sprintf("co-occurrence threshold %d must be positive", minCooccurrence)}
	}
	out := make([]Conditional, 0, len(t.Pairs)/4)
	for p, n := range t.Pairs {
		if n < minCooccurrence {
			continue
		}
		fa, fb := t.Frequencies[p.A], t.Frequencies[p.B]
		if fa < n || fb < n {
			return nil, &InvariantError{
				Pair:   p,
				Reason: fmt.Sprintf("pair count %d exceeds subject frequency (%d, %d)", n, fa, fb),
			}
		}
		if fa > t.TotalRecords || fb > t.TotalRecords {
			return nil, &InvariantError{
				Pair:   p,
				Reason: fmt.Sprintf("subject frequency exceeds %d records", t.TotalRecords),
			}
		}
		out = append(out, Conditional{
			Pair:     p,
			Count:    n,
			PAGivenB: float64(n) / float64(fb),
			PBGivenA: float64(n) / float64(fa),
			FreqA:    fa,
			FreqB:    fb,
		})
	}
	return out, nil
}
