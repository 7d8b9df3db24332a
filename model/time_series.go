package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/henrikingo/signal-processing/perf"
)

// TimeSeriesId identifies one measurement series. The orchestration layer
// attaches it when loading raw results; the analytical core never inspects
// it.
type TimeSeriesId struct {
	Project     string `bson:"project" json:"project" yaml:"project"`
	Variant     string `bson:"variant" json:"variant" yaml:"variant"`
	Task        string `bson:"task" json:"task" yaml:"task"`
	Test        string `bson:"test" json:"test" yaml:"test"`
	ThreadLevel int    `bson:"thread_level" json:"thread_level" yaml:"thread_level"`
}

func (id TimeSeriesId) String() string {
	return fmt.Sprintf("%s.%s.%s.%s.%d", id.Project, id.Variant, id.Task, id.Test, id.ThreadLevel)
}

// TimeSeriesEntry is one measurement. Order is the commit order of the
// revision, the position the analysis operates on.
type TimeSeriesEntry struct {
	Revision string  `bson:"revision" json:"revision" yaml:"revision"`
	Order    int     `bson:"order" json:"order" yaml:"order"`
	Value    float64 `bson:"value" json:"value" yaml:"value"`
}

type TimeSeries struct {
	Id   TimeSeriesId      `bson:"id" json:"id" yaml:"id"`
	Data []TimeSeriesEntry `bson:"data" json:"data" yaml:"data"`
}

// Values returns the measurement values in ascending commit order, leaving
// Data itself untouched.
func (ts TimeSeries) Values() []float64 {
	data := append([]TimeSeriesEntry{}, ts.Data...)
	sort.Slice(data, func(i, j int) bool {
		return data[i].Order < data[j].Order
	})

	values := make([]float64, len(data))
	for i, entry := range data {
		values[i] = entry.Value
	}
	return values
}

// SeriesAnalysis is the complete result of analyzing one series. A series
// either gets a fully populated SeriesAnalysis or none at all.
type SeriesAnalysis struct {
	Id           TimeSeriesId        `bson:"id" json:"id" yaml:"id"`
	ChangePoints []perf.ChangePoint  `bson:"change_points" json:"change_points" yaml:"change_points"`
	Outliers     *perf.OutlierResult `bson:"outliers,omitempty" json:"outliers,omitempty" yaml:"outliers,omitempty"`
	ProcessedAt  time.Time           `bson:"processed_at" json:"processed_at" yaml:"processed_at"`
}
