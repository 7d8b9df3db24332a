package units

import (
	"context"
	"fmt"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/dependency"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"github.com/henrikingo/signal-processing/model"
	"github.com/henrikingo/signal-processing/perf"
)

const analyzeSeriesJobName = "analyze-series"

type analyzeSeriesJob struct {
	*job.Base `bson:"metadata" json:"metadata" yaml:"metadata"`
	Series    model.TimeSeries `bson:"series" json:"series" yaml:"series"`
	Opts      AnalysisOptions  `bson:"options" json:"options" yaml:"options"`

	changeDetector  perf.ChangeDetector
	outlierDetector perf.OutlierDetector
	result          *model.SeriesAnalysis
}

func init() {
	registry.AddJobType(analyzeSeriesJobName, func() amboy.Job { return makeAnalyzeSeriesJob() })
}

func makeAnalyzeSeriesJob() *analyzeSeriesJob {
	j := &analyzeSeriesJob{
		Base: &job.Base{
			JobType: amboy.JobType{
				Name:    analyzeSeriesJobName,
				Version: 1,
			},
		},
	}
	j.SetDependency(dependency.NewAlways())
	return j
}

// NewAnalyzeSeriesJob returns a job that runs outlier and change point
// detection over one series.
func NewAnalyzeSeriesJob(series model.TimeSeries, opts AnalysisOptions) amboy.Job {
	j := makeAnalyzeSeriesJob()
	j.Series = series
	j.Opts = opts
	j.SetID(fmt.Sprintf("%s.%s.%s", analyzeSeriesJobName, series.Id, utility.RandomString()))
	return j
}

// Result returns the completed analysis, or false when the job failed or has
// not run. A failed series never exposes a partial result.
func (j *analyzeSeriesJob) Result() (*model.SeriesAnalysis, bool) {
	if j.result == nil {
		return nil, false
	}
	return j.result, true
}

func (j *analyzeSeriesJob) makeMessage(msg string) message.Fields {
	return message.Fields{
		"message":      msg,
		"job_id":       j.ID(),
		"project":      j.Series.Id.Project,
		"variant":      j.Series.Id.Variant,
		"task":         j.Series.Id.Task,
		"test":         j.Series.Id.Test,
		"thread_level": j.Series.Id.ThreadLevel,
	}
}

func (j *analyzeSeriesJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	if err := ctx.Err(); err != nil {
		j.AddError(errors.Wrapf(err, "analysis of series '%s' canceled", j.Series.Id))
		return
	}

	start := time.Now()
	values := j.Series.Values()

	var outliers *perf.OutlierResult
	if j.Opts.MaxOutliers > 0 {
		detector := j.outlierDetector
		if detector == nil {
			detector = perf.NewGESDDetector(j.Opts.Significance, j.Opts.MaxOutliers, j.Opts.UseMad)
		}

		var err error
		outliers, err = detector.DetectOutliers(values)
		if err != nil {
			j.AddError(errors.Wrapf(err, "detecting outliers in series '%s'", j.Series.Id))
			return
		}
	}

	searchValues := values
	var keep []int
	if j.Opts.MaskOutliers && outliers != nil && outliers.ConfirmedCount > 0 {
		searchValues, keep = maskOutliers(values, outliers)
	}

	detector := j.changeDetector
	if detector == nil {
		detector = perf.NewEDivisiveDetector(j.Opts.Significance, j.Opts.Permutations, j.Opts.seed())
	}

	changePoints, err := detector.DetectChanges(searchValues)
	if err != nil {
		j.AddError(errors.Wrapf(err, "detecting change points in series '%s'", j.Series.Id))
		return
	}

	// Masking removed points, so translate indexes back to the original
	// series coordinates.
	if keep != nil {
		for i := range changePoints {
			changePoints[i].Index = keep[changePoints[i].Index]
		}
	}

	j.result = &model.SeriesAnalysis{
		Id:           j.Series.Id,
		ChangePoints: changePoints,
		Outliers:     outliers,
		ProcessedAt:  time.Now(),
	}

	msg := j.makeMessage("series analyzed")
	msg["elapsed_seconds"] = time.Since(start).Seconds()
	msg["change_points"] = len(changePoints)
	if outliers != nil {
		msg["confirmed_outliers"] = outliers.ConfirmedCount
	}
	grip.Debug(msg)
}

// maskOutliers drops the confirmed outliers out of values, returning the
// cleaned series and, for each kept position, its index in the original
// series.
func maskOutliers(values []float64, outliers *perf.OutlierResult) ([]float64, []int) {
	confirmed := make(map[int]bool, outliers.ConfirmedCount)
	for _, idx := range outliers.Order[:outliers.ConfirmedCount] {
		confirmed[idx] = true
	}

	cleaned := make([]float64, 0, len(values)-outliers.ConfirmedCount)
	keep := make([]int, 0, len(values)-outliers.ConfirmedCount)
	for i, v := range values {
		if confirmed[i] {
			continue
		}
		cleaned = append(cleaned, v)
		keep = append(keep, i)
	}
	return cleaned, keep
}
