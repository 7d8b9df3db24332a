package perf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ChangePointsFixture struct {
	Series        []float64 `json:"series"`
	PValue        float64   `json:"p"`
	Permutations  int       `json:"permutations"`
	ShufflerState uint64    `json:"shuffler_state"`
	Expected      []struct {
		Index       int     `json:"index"`
		Statistic   float64 `json:"statistic"`
		Probability float64 `json:"probability"`
	} `json:"expected"`
}

type QFixture struct {
	Series   []float64 `json:"series"`
	Expected []float64 `json:"expected"`
}

type ExtractQFixture struct {
	QValues  []float64 `json:"qs"`
	Expected struct {
		Index int     `json:"index"`
		Value float64 `json:"value"`
	} `json:"expected"`
}

func TestEDivisive(t *testing.T) {
	cpd := NewEDivisiveDetector(0.05, 100, defaultSeed).(*eDivisiveDetector)

	t.Run("TestQHat", func(t *testing.T) {
		fixture := QFixture{}
		require.NoError(t, LoadFixture(t.Name(), &fixture))

		values := cpd.qHat(fixture.Series)
		require.Len(t, values, len(fixture.Expected))
		for i := range values {
			assert.InDelta(t, fixture.Expected[i], values[i], 1e-9)
		}
	})
	t.Run("TestExtractQ", func(t *testing.T) {
		fixture := ExtractQFixture{}
		require.NoError(t, LoadFixture(t.Name(), &fixture))

		index, value := cpd.extractQ(fixture.QValues)
		assert.Equal(t, fixture.Expected.Index, index)
		assert.Equal(t, fixture.Expected.Value, value)
	})
	t.Run("TestQHatShortSeries", func(t *testing.T) {
		assert.Equal(t, []float64{0, 0, 0, 0}, cpd.qHat([]float64{1, 2, 3, 4}))
	})
	t.Run("TestExtractQTieBreaksLow", func(t *testing.T) {
		index, value := cpd.extractQ([]float64{0, 0, 3.5, 3.5, 1})
		assert.Equal(t, 2, index)
		assert.Equal(t, 3.5, value)
	})
}

func TestDetectChanges(t *testing.T) {
	for _, test := range []string{
		"TestChangePoints",
		"TestMultipleRegimes",
	} {
		t.Run(test, func(t *testing.T) {
			fixture := &ChangePointsFixture{PValue: .05, Permutations: 100}
			require.NoError(t, LoadFixture(test, fixture))

			cpd := NewEDivisiveDetectorWithShuffler(fixture.PValue, fixture.Permutations, &lcgShuffler{state: fixture.ShufflerState})
			changePoints, err := cpd.DetectChanges(fixture.Series)
			require.NoError(t, err)

			require.Len(t, changePoints, len(fixture.Expected))
			for i, expected := range fixture.Expected {
				assert.Equal(t, expected.Index, changePoints[i].Index)
				assert.InDelta(t, expected.Statistic, changePoints[i].Statistic, 1e-9)
				assert.InDelta(t, expected.Probability, changePoints[i].Probability, 1e-12)
			}
		})
	}
}

func TestDetectChangesStep(t *testing.T) {
	series := make([]float64, 0, 40)
	for i := 0; i < 20; i++ {
		series = append(series, 10.0)
	}
	for i := 0; i < 20; i++ {
		series = append(series, 12.0)
	}

	cpd := NewEDivisiveDetector(0.05, 100, defaultSeed)
	changePoints, err := cpd.DetectChanges(series)
	require.NoError(t, err)

	require.Len(t, changePoints, 1)
	assert.Equal(t, 20, changePoints[0].Index)
	assert.InDelta(t, 1.0/101.0, changePoints[0].Probability, 1e-12)
	assert.True(t, changePoints[0].Probability <= 0.05)
	assert.True(t, changePoints[0].Statistic > 0)
}

func TestDetectChangePointsEntryPoint(t *testing.T) {
	series := make([]float64, 0, 30)
	for i := 0; i < 15; i++ {
		series = append(series, 100.0)
	}
	for i := 0; i < 15; i++ {
		series = append(series, 130.0)
	}

	changePoints, err := DetectChangePoints(series, 0.05, 100)
	require.NoError(t, err)
	require.Len(t, changePoints, 1)
	assert.Equal(t, 15, changePoints[0].Index)
}

func TestDetectChangesDeterminism(t *testing.T) {
	fixture := &ChangePointsFixture{}
	require.NoError(t, LoadFixture("TestChangePoints", fixture))

	first, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(fixture.Series)
	require.NoError(t, err)
	second, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(fixture.Series)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// Concatenating the change points of the two halves around the first
// accepted split, plus the split itself, must reproduce the full run.
func TestDetectChangesResplit(t *testing.T) {
	series := make([]float64, 0, 60)
	for _, level := range []float64{10.0, 12.0, 15.0} {
		for i := 0; i < 20; i++ {
			series = append(series, level)
		}
	}

	full, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(series)
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.Equal(t, 20, full[0].Index)
	assert.Equal(t, 40, full[1].Index)

	// The sweep picks index 40 first for this series; the left half then
	// contains the boundary at 20 and the right half is constant.
	root := 40
	left, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(series[:root])
	require.NoError(t, err)
	right, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(series[root:])
	require.NoError(t, err)
	require.Len(t, right, 0)

	combined := []int{}
	for _, cp := range left {
		combined = append(combined, cp.Index)
	}
	combined = append(combined, root)
	for _, cp := range right {
		combined = append(combined, cp.Index+root)
	}

	indexes := make([]int, 0, len(full))
	for _, cp := range full {
		indexes = append(indexes, cp.Index)
	}
	assert.ElementsMatch(t, combined, indexes)
}

func TestDetectChangesBoundaries(t *testing.T) {
	t.Run("ShortSeries", func(t *testing.T) {
		changePoints, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges([]float64{1, 2, 3, 4})
		require.NoError(t, err)
		assert.Empty(t, changePoints)
	})
	t.Run("ConstantSeries", func(t *testing.T) {
		series := make([]float64, 20)
		for i := range series {
			series[i] = 5.0
		}
		changePoints, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(series)
		require.NoError(t, err)
		assert.Empty(t, changePoints)
	})
	t.Run("EmptySeries", func(t *testing.T) {
		_, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges(nil)
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))
	})
	t.Run("NonFiniteValues", func(t *testing.T) {
		_, err := NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges([]float64{1, 2, math.NaN(), 4, 5, 6})
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))

		_, err = NewEDivisiveDetector(0.05, 100, defaultSeed).DetectChanges([]float64{1, 2, math.Inf(1), 4, 5, 6})
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))
	})
	t.Run("NonPositivePermutations", func(t *testing.T) {
		_, err := NewEDivisiveDetector(0.05, 0, defaultSeed).DetectChanges([]float64{1, 2, 3, 4, 5, 6})
		require.Error(t, err)
		assert.True(t, IsInvalidInput(err))
	})
}
