package cooccur

import "fmt"

// Stage names the part of a run that failed.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageScan        Stage = "scan"
	StageProbability Stage = "probability"
	StageClassify    Stage = "classify"
)

// RunError carries the failing stage and how many records were processed
// before the failure.
type RunError struct {
	Stage     Stage
	Processed int
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s stage failed after %d records: %v", e.Stage, e.Processed, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// InvariantError is an internal consistency failure between the tally, the
// probability engine and the classifier. It always indicates a defect.
type InvariantError struct {
	Pair   Pair
	Reason string
}

func (e *InvariantError) Error() string {
	if e.Pair == (Pair{}) {
		return "invariant violation: " + e.Reason
	}
	return fmt.Sprintf("invariant violation for (%q, %q): %s", e.Pair.A, e.Pair.B, e.Reason)
}
