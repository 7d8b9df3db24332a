package perf

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// minSegmentLength is the shortest series the Q sweep can split: two points
// on each side of a candidate plus at least one interior candidate.
const minSegmentLength = 5

type eDivisiveDetector struct {
	shuffler     Shuffler
	pvalue       float64
	permutations int
	info         AlgorithmInfo
}

// NewEDivisiveDetector uses the e-divisive (q^) algorithm to return change
// points for series. The detector recursively splits the series at the most
// divergent position, keeping each split only when a permutation test over
// the segment finds it significant at pvalue.
func NewEDivisiveDetector(pvalue float64, permutations int, seed int64) ChangeDetector {
	return NewEDivisiveDetectorWithShuffler(pvalue, permutations, rand.New(rand.NewSource(seed)))
}

// NewEDivisiveDetectorWithShuffler is NewEDivisiveDetector with an explicit
// permutation source, so callers can supply a reproducible one.
func NewEDivisiveDetectorWithShuffler(pvalue float64, permutations int, shuffler Shuffler) ChangeDetector {
	return &eDivisiveDetector{
		shuffler:     shuffler,
		pvalue:       pvalue,
		permutations: permutations,
		info: AlgorithmInfo{
			Name:    "e_divisive",
			Version: 2,
			Options: []AlgorithmOption{
				{
					Name:  "p",
					Value: pvalue,
				},
				{
					Name:  "permutations",
					Value: permutations,
				},
			},
		},
	}
}

// DetectChangePoints runs E-Divisive over series with a fresh random source
// and returns the accepted change points ordered by index.
func DetectChangePoints(series []float64, significance float64, permutations int) ([]ChangePoint, error) {
	return NewEDivisiveDetector(significance, permutations, time.Now().UnixNano()).DetectChanges(series)
}

func (eDivisiveDetector) calculateDiffs(series []float64) []float64 {
	length := len(series)
	diffs := make([]float64, length*length)
	for row := 0; row < length; row++ {
		for column := row; column < length; column++ {
			delta := math.Abs(series[row] - series[column])
			diffs[row*length+column] = delta
			diffs[column*length+row] = delta
		}
	}
	return diffs
}

func (eDivisiveDetector) calculateQ(cross, left, right float64, leftLen, rightLen int) float64 {
	a := float64(leftLen)
	b := float64(rightLen)

	crossTerm := cross * (2.0 / (a * b))
	leftTerm := left * (2.0 / (a * (a - 1)))
	rightTerm := right * (2.0 / (b * (b - 1)))

	return (a * b / (a + b)) * (crossTerm - leftTerm - rightTerm)
}

// qHat returns the Q statistic for every valid split position of series.
// Positions outside [2, len-2] are left at zero. The three pairwise-distance
// aggregates are seeded at the first valid split and updated incrementally:
// when the split advances, row m-1 moves from the right segment to the left,
// so its pairs with the left become within-left and its pairs with the right
// become crossing.
func (d eDivisiveDetector) qHat(series []float64) []float64 {
	length := len(series)
	qhatValues := make([]float64, length)
	if length < minSegmentLength {
		return qhatValues
	}

	diffs := d.calculateDiffs(series)

	n := 2
	m := length - n

	cross := 0.0
	for i := 0; i < n; i++ {
		for j := n; j < length; j++ {
			cross += diffs[i*length+j]
		}
	}

	left := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			left += diffs[i*length+j]
		}
	}

	right := 0.0
	for i := n; i < length; i++ {
		for j := i + 1; j < length; j++ {
			right += diffs[i*length+j]
		}
	}

	qhatValues[n] = d.calculateQ(cross, left, right, n, m)

	for n := 3; n <= length-2; n++ {
		m = length - n

		columnDelta := 0.0
		for j := 0; j < n-1; j++ {
			columnDelta += diffs[(n-1)*length+j]
		}

		rowDelta := 0.0
		for j := n; j < length; j++ {
			rowDelta += diffs[j*length+n-1]
		}

		cross = cross - columnDelta + rowDelta
		left = left + columnDelta
		right = right - rowDelta

		qhatValues[n] = d.calculateQ(cross, left, right, n, m)
	}
	return qhatValues
}

// extractQ returns the arg-max of the Q values, ties broken toward the
// smallest index.
func (eDivisiveDetector) extractQ(qhatValues []float64) (int, float64) {
	var (
		index int
		value float64
	)

	for i := 0; i < len(qhatValues); i++ {
		if qhatValues[i] > value {
			index = i
			value = qhatValues[i]
		}
	}

	return index, value
}

// permutationTest shuffles a copy of series permutations times, sweeping each
// shuffle for its best Q, and returns the smoothed fraction of shuffles whose
// best Q reaches q.
func (d *eDivisiveDetector) permutationTest(series []float64, q float64) float64 {
	shuffled := append([]float64{}, series...)
	countAbove := 0
	for i := 0; i < d.permutations; i++ {
		d.shuffler.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if _, maxQ := d.extractQ(d.qHat(shuffled)); maxQ >= q {
			countAbove++
		}
	}
	return (1.0 + float64(countAbove)) / float64(d.permutations+1)
}

func (d *eDivisiveDetector) DetectChanges(series []float64) ([]ChangePoint, error) {
	if err := validateSeries(series); err != nil {
		return nil, err
	}
	if d.permutations <= 0 {
		return nil, newInvalidInputError("permutations must be positive, got %d", d.permutations)
	}

	type segment struct {
		start int
		end   int
	}

	changePoints := []ChangePoint{}
	stack := []segment{{start: 0, end: len(series)}}

	// Depth-first worklist in place of recursion; segments too short to
	// search and rejected candidates simply terminate their branch.
	for len(stack) > 0 {
		seg := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sub := series[seg.start:seg.end]
		if len(sub) < minSegmentLength {
			continue
		}

		index, q := d.extractQ(d.qHat(sub))
		probability := d.permutationTest(sub, q)
		// index < 2 means the sweep found no positive Q (constant
		// segment); such candidates never recurse.
		if probability > d.pvalue || index < 2 {
			continue
		}

		changePoints = append(changePoints, ChangePoint{
			Index:       seg.start + index,
			Statistic:   q,
			Probability: probability,
			Info:        d.info,
		})
		stack = append(stack,
			segment{start: seg.start, end: seg.start + index},
			segment{start: seg.start + index, end: seg.end},
		)
	}

	sort.Slice(changePoints, func(i, j int) bool {
		return changePoints[i].Index < changePoints[j].Index
	})
	return changePoints, nil
}
