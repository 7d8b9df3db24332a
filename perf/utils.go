package perf

import (
	"math"
	"sort"
)

// madScale converts a median absolute deviation to the standard deviation of
// normally distributed data.
const madScale = 1.4826

// Mean returns the arithmetic mean of vals.
func Mean(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total / float64(len(vals))
}

// StdDev returns the sample standard deviation of vals.
func StdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	mean := Mean(vals)
	total := 0.0
	for _, v := range vals {
		d := v - mean
		total += d * d
	}
	return math.Sqrt(total / float64(len(vals)-1))
}

// Median returns the median of vals without reordering the input.
func Median(vals []float64) float64 {
	sorted := append([]float64{}, vals...)
	sort.Float64s(sorted)

	length := len(sorted)
	center := length / 2
	if length%2 != 0 {
		return sorted[center]
	}
	return (sorted[center] + sorted[center-1]) / 2.0
}

// MAD returns the median absolute deviation of vals, the robust counterpart
// of standard deviation. Multiply by madScale to put it on the standard
// deviation scale.
func MAD(vals []float64) float64 {
	median := Median(vals)
	deviations := make([]float64, len(vals))
	for i, v := range vals {
		deviations[i] = math.Abs(v - median)
	}
	return Median(deviations)
}

// Standardize returns a copy of vals shifted to zero mean and scaled to unit
// sample standard deviation. A constant series is returned as all zeros.
func Standardize(vals []float64) []float64 {
	mean := Mean(vals)
	stddev := StdDev(vals)

	standardized := make([]float64, len(vals))
	if stddev == 0 {
		return standardized
	}
	for i, v := range vals {
		standardized[i] = (v - mean) / stddev
	}
	return standardized
}
