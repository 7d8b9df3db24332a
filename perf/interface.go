package perf

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ChangeDetector types calculate change points.
type ChangeDetector interface {
	DetectChanges([]float64) ([]ChangePoint, error)
}

// OutlierDetector types flag extreme values in a series.
type OutlierDetector interface {
	DetectOutliers([]float64) (*OutlierResult, error)
}

// ChangePoint is a series position accepted as a regime boundary. Index is
// in the coordinates of the caller-supplied series.
type ChangePoint struct {
	Index       int
	Statistic   float64
	Probability float64
	Info        AlgorithmInfo
}

// OutlierResult holds the full trace of a GESD run. Order lists candidate
// indexes most extreme first; the first ConfirmedCount of them are the
// accepted outliers, the rest are low-confidence candidates kept for
// inspection. Statistics[i] and CriticalValues[i] belong to iteration i.
type OutlierResult struct {
	Order          []int
	ConfirmedCount int
	Statistics     []float64
	CriticalValues []float64
	Info           AlgorithmInfo
}

type AlgorithmInfo struct {
	Name    string
	Version int
	Options []AlgorithmOption
}

type AlgorithmOption struct {
	Name  string
	Value interface{}
}

// Shuffler is the injectable permutation source for significance testing.
// *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// InvalidInputError reports arguments the detectors cannot operate on:
// an empty series, non-finite values, or nonsensical detector parameters.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

func newInvalidInputError(format string, args ...interface{}) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err is an InvalidInputError, unwrapping
// any pkg/errors annotations first.
func IsInvalidInput(err error) bool {
	if err == nil {
		return false
	}
	_, ok := errors.Cause(err).(*InvalidInputError)
	return ok
}

func validateSeries(series []float64) error {
	if len(series) == 0 {
		return newInvalidInputError("empty series")
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return newInvalidInputError("non-finite value %v at index %d", v, i)
		}
	}
	return nil
}
