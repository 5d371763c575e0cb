package cooccur

import (
	"fmt"
	"math"
)

// Verdict is the directional outcome for a retained pair.
type Verdict string

const (
	// VerdictABroader: subject A is the broader term, B the narrower one.
	VerdictABroader Verdict = "A_BROADER"
	// VerdictBBroader: subject B is the broader term, A the narrower one.
	VerdictBBroader Verdict = "B_BROADER"
	// VerdictNoDirection: related, but not hierarchically.
	VerdictNoDirection Verdict = "NO_DIRECTION"
)

// Verdicts lists every verdict in reporting order.
var Verdicts = []Verdict{VerdictABroader, VerdictBBroader, VerdictNoDirection}

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictABroader, VerdictBBroader, VerdictNoDirection:
		return true
	}
	return false
}

// Mirror returns the verdict for the same pair with A and B swapped.
func (v Verdict) Mirror() Verdict {
	switch v {
	case VerdictABroader:
		return VerdictBBroader
	case VerdictBBroader:
		return VerdictABroader
	}
	return v
}

// ratioFloor keeps the asymmetry ratio finite when the smaller probability is 0.
const ratioFloor = 1e-9

// ratioSlack absorbs rounding in a ratio of two rounded probabilities, so a
// ratio equal to the minimum is never read as below it.
const ratioSlack = 1e-12

// Classification is the classifier's decision for one pair.
type Classification struct {
	Significant bool
	Verdict     Verdict
	Strength    float64
}

// Classifier applies the significance filter and the asymmetry rule.
type Classifier struct {
	opts Options
}

// NewClassifier returns a classifier for opts. opts must be valid.
func NewClassifier(opts Options) Classifier {
	return Classifier{opts: opts}
}

// Classify decides whether a pair is significant and, if so, its direction.
// P(A|B) large means records tagged B almost always carry A, so A is broader.
// Out-of-range input is reported as an *InvariantError.
func (c Classifier) Classify(count int, pAGivenB, pBGivenA float64) (Classification, error) {
	if count < 0 {
		return Classification{}, &InvariantError{Reason: fmt.Sprintf("negative co-occurrence count %d", count)}
	}
	if !inUnit(pAGivenB) || !inUnit(pBGivenA) {
		return Classification{}, &InvariantError{
			Reason: fmt.Sprintf("probabilities out of range: P(A|B)=%v P(B|A)=%v", pAGivenB, pBGivenA),
		}
	}

	hi, lo := pAGivenB, pBGivenA
	if lo > hi {
		hi, lo = lo, hi
	}
	return c.classify(count, pAGivenB, pBGivenA, hi/math.Max(lo, ratioFloor))
}

// ClassifyConditional is Classify for a pair from Conditionals, using the
// exact frequency ratio as the asymmetry.
func (c Classifier) ClassifyConditional(cond Conditional) (Classification, error) {
	cl, err := c.Classify(cond.Count, cond.PAGivenB, cond.PBGivenA)
	if err != nil || !cl.Significant || cond.FreqA <= 0 || cond.FreqB <= 0 {
		return cl, err
	}
	return c.classify(cond.Count, cond.PAGivenB, cond.PBGivenA, cond.Ratio())
}

func (c Classifier) classify(count int, pAGivenB, pBGivenA, ratio float64) (Classification, error) {
	hi, lo := pAGivenB, pBGivenA
	if lo > hi {
		hi, lo = lo, hi
	}
	if count < c.opts.MinCooccurrence || hi < c.opts.MinProbability {
		return Classification{}, nil
	}

	out := Classification{Significant: true, Strength: ratio}

	switch {
	case pAGivenB == pBGivenA:
		out.Verdict = VerdictNoDirection
	case hi-lo < c.opts.NearEqualTolerance, ratio < c.opts.MinAsymmetryRatio*(1-ratioSlack):
		out.Verdict = VerdictNoDirection
	case pAGivenB > pBGivenA:
		out.Verdict = VerdictABroader
	default:
		out.Verdict = VerdictBBroader
	}
	return out, nil
}

func inUnit(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 1
}
