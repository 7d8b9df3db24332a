package perf

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

type gesdDetector struct {
	significance float64
	maxOutliers  int
	useMad       bool
	info         AlgorithmInfo
}

// NewGESDDetector uses the generalized extreme studentized deviate test to
// flag up to maxOutliers extreme values in a series. With useMad the test
// centers on the median and scales by the median absolute deviation instead
// of mean and standard deviation.
func NewGESDDetector(significance float64, maxOutliers int, useMad bool) OutlierDetector {
	return &gesdDetector{
		significance: significance,
		maxOutliers:  maxOutliers,
		useMad:       useMad,
		info: AlgorithmInfo{
			Name:    "gesd",
			Version: 1,
			Options: []AlgorithmOption{
				{
					Name:  "significance",
					Value: significance,
				},
				{
					Name:  "max_outliers",
					Value: maxOutliers,
				},
				{
					Name:  "mad",
					Value: useMad,
				},
			},
		},
	}
}

// DetectOutliers runs the GESD test over series.
func DetectOutliers(series []float64, significance float64, maxOutliers int, useMad bool) (*OutlierResult, error) {
	return NewGESDDetector(significance, maxOutliers, useMad).DetectOutliers(series)
}

func (d *gesdDetector) centerAndSpread(values []float64) (float64, float64) {
	if d.useMad {
		return Median(values), MAD(values) * madScale
	}
	return Mean(values), StdDev(values)
}

// criticalValue is Rosner's lambda for iteration i of a GESD test over n
// points: the two-sided Student-t critical value at
// significance/(2(n-i+1)) with n-i-1 degrees of freedom, mapped to a bound
// on the maximum studentized deviation.
func criticalValue(n, i int, significance float64) float64 {
	p := 1.0 - significance/(2.0*float64(n-i+1))
	df := float64(n - i - 1)
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(p)
	return float64(n-i) * t / math.Sqrt((df+t*t)*float64(n-i+1))
}

func (d *gesdDetector) DetectOutliers(series []float64) (*OutlierResult, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}
	if d.maxOutliers < 0 {
		return nil, newInvalidInputError("max outliers must be non-negative, got %d", d.maxOutliers)
	}

	n := len(series)
	maxOutliers := d.maxOutliers
	if maxOutliers > n {
		maxOutliers = n
	}

	result := &OutlierResult{
		Order:          []int{},
		Statistics:     []float64{},
		CriticalValues: []float64{},
		Info:           d.info,
	}

	remaining := append([]float64{}, series...)
	indexes := make([]int, n)
	for i := range indexes {
		indexes[i] = i
	}

	// Peel off the most extreme remaining point each iteration. The loop
	// stops early when fewer than 3 points remain (the t quantile needs at
	// least one degree of freedom) or the remainder is constant.
	for i := 1; i <= maxOutliers && len(remaining) >= 3; i++ {
		center, spread := d.centerAndSpread(remaining)
		if spread == 0 {
			break
		}

		maxIdx := 0
		maxDev := 0.0
		for k, v := range remaining {
			if dev := math.Abs(v - center); dev > maxDev {
				maxDev = dev
				maxIdx = k
			}
		}

		result.Order = append(result.Order, indexes[maxIdx])
		result.Statistics = append(result.Statistics, maxDev/spread)
		result.CriticalValues = append(result.CriticalValues, criticalValue(n, i, d.significance))

		remaining = append(remaining[:maxIdx], remaining[maxIdx+1:]...)
		indexes = append(indexes[:maxIdx], indexes[maxIdx+1:]...)
	}

	// Early iterations can spuriously exceed their threshold, so the number
	// of confirmed outliers is the deepest iteration that passes, not the
	// first.
	for i := len(result.Statistics) - 1; i >= 0; i-- {
		if result.Statistics[i] > result.CriticalValues[i] {
			result.ConfirmedCount = i + 1
			break
		}
	}

	return result, nil
}
