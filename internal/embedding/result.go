package embedding

import "fmt"

type FailureReason string

const (
	ReasonEmpty          FailureReason = "empty"
	ReasonQuotaExhausted FailureReason = "quota_exhausted"
	ReasonAPIError       FailureReason = "api_error"
	ReasonInvalidVector  FailureReason = "invalid_vector"
)

// Success is one embedded input. Index refers to the position in the input
// slice handed to EmbedBatch.
type Success struct {
	Index  int
	Vector []float32
}

// Failure is one input that produced no vector.
type Failure struct {
	Index  int
	Reason FailureReason
}

// Result is the outcome of one batch call. Successes and Failures are
// ordered by input index and partition the inputs exactly.
type Result struct {
	Successes []Success
	Failures  []Failure
	inputs    int
}

// NewResult validates and assembles a batch result. Every success vector
// must be non-empty and not all-zero, and the success and failure counts
// must sum to inputs.
func NewResult(inputs int, successes []Success, failures []Failure) (Result, error) {
	if len(successes)+len(failures) != inputs {
		return Result{}, fmt.Errorf("batch result accounts for %d of %d inputs",
			len(successes)+len(failures), inputs)
	}
	for _, s := range successes {
		if err := ValidateVector(s.Vector, 0); err != nil {
			return Result{}, fmt.Errorf("input %d: %w", s.Index, err)
		}
	}
	return Result{Successes: successes, Failures: failures, inputs: inputs}, nil
}

func (r Result) InputCount() int   { return r.inputs }
func (r Result) SuccessCount() int { return len(r.Successes) }
func (r Result) FailureCount() int { return len(r.Failures) }

// ValidateVector rejects empty, all-zero, and (when dims > 0) wrongly sized
// vectors. A zero vector must never stand in for a real embedding.
func ValidateVector(vec []float32, dims int) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector")
	}
	if dims > 0 && len(vec) != dims {
		return fmt.Errorf("vector has %d dimensions, expected %d", len(vec), dims)
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return fmt.Errorf("all-zero vector")
}
