package units

import (
	"context"
	"runtime"
	"time"

	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/queue"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"github.com/henrikingo/signal-processing/model"
)

// AnalysisOptions configures a batch of per-series analyses. The zero value
// is usable: Validate fills in the defaults.
type AnalysisOptions struct {
	// Significance is the acceptance threshold shared by the permutation
	// test and the GESD test. Defaults to 0.05.
	Significance float64 `bson:"significance" json:"significance" yaml:"significance"`
	// Permutations is the number of random reorderings per candidate split.
	// Defaults to 100.
	Permutations int `bson:"permutations" json:"permutations" yaml:"permutations"`
	// MaxOutliers is the most outliers GESD may flag per series. Zero skips
	// outlier detection entirely.
	MaxOutliers int  `bson:"max_outliers" json:"max_outliers" yaml:"max_outliers"`
	UseMad      bool `bson:"mad" json:"mad" yaml:"mad"`
	// MaskOutliers removes confirmed outliers from the series before change
	// point detection; reported change point indexes stay in the original
	// coordinates.
	MaskOutliers bool `bson:"mask_outliers" json:"mask_outliers" yaml:"mask_outliers"`
	// Seed fixes the permutation source for reproducible runs. Zero draws a
	// fresh seed per series.
	Seed int64 `bson:"seed" json:"seed" yaml:"seed"`
	// Workers is the pool size, default NumCPU-1.
	Workers int `bson:"workers" json:"workers" yaml:"workers"`
}

func (opts *AnalysisOptions) Validate() error {
	if opts.Significance == 0 {
		opts.Significance = 0.05
	}
	if opts.Significance < 0 || opts.Significance >= 1 {
		return errors.Errorf("significance must be in (0, 1), got %f", opts.Significance)
	}
	if opts.Permutations == 0 {
		opts.Permutations = 100
	}
	if opts.Permutations < 0 {
		return errors.Errorf("permutations must be positive, got %d", opts.Permutations)
	}
	if opts.MaxOutliers < 0 {
		return errors.Errorf("max outliers must be non-negative, got %d", opts.MaxOutliers)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() - 1
		if opts.Workers < 1 {
			opts.Workers = 1
		}
	}
	return nil
}

func (opts AnalysisOptions) seed() int64 {
	if opts.Seed != 0 {
		return opts.Seed
	}
	return time.Now().UnixNano()
}

// AnalyzeSeriesBatch runs one analysis job per series on a local worker
// pool. All series run to completion regardless of sibling failures; the
// returned slice holds the completed analyses and the returned error
// aggregates the per-series failures, if any.
func AnalyzeSeriesBatch(ctx context.Context, series []model.TimeSeries, opts AnalysisOptions) ([]model.SeriesAnalysis, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid analysis options")
	}
	if len(series) == 0 {
		return nil, nil
	}

	q := queue.NewLocalLimitedSize(opts.Workers, len(series)+1)
	if err := q.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "starting analysis queue")
	}

	jobs := make([]*analyzeSeriesJob, 0, len(series))
	for _, ts := range series {
		j := NewAnalyzeSeriesJob(ts, opts).(*analyzeSeriesJob)
		if err := q.Put(ctx, j); err != nil {
			return nil, errors.Wrapf(err, "enqueueing analysis of series '%s'", ts.Id)
		}
		jobs = append(jobs, j)
	}

	amboy.WaitInterval(ctx, q, 10*time.Millisecond)

	results := make([]model.SeriesAnalysis, 0, len(jobs))
	catcher := grip.NewBasicCatcher()
	for _, j := range jobs {
		if err := j.Error(); err != nil {
			catcher.Wrapf(err, "series '%s'", j.Series.Id)
			grip.Warning(message.WrapError(err, j.makeMessage("series analysis failed")))
			continue
		}
		if result, ok := j.Result(); ok {
			results = append(results, *result)
		}
	}

	return results, catcher.Resolve()
}
