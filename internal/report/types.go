// Package report assembles per-URL metric results into a run report and
// renders it as Markdown.
package report

import (
	"github.com/ethpandaops/wpt-action/internal/metric"
)

// MetricResult is a standard metric of a single test.
type MetricResult struct {
	Name            string
	Key             string
	CurrentValue    float64
	DisplayValue    string
	DeltaAnnotation string
	Directionality  metric.Directionality
	// Previous is the baseline value, 0 when there was none.
	Previous float64
}

// Value returns the display value followed by the delta annotation, if any.
func (m MetricResult) Value() string {
	return joinAnnotation(m.DisplayValue, m.DeltaAnnotation)
}

// Improved reports whether the metric improved against the baseline.
func (m MetricResult) Improved() bool {
	return m.DeltaAnnotation != "" && m.Directionality.Improved(m.CurrentValue, m.Previous)
}

// Regressed reports whether the metric regressed against the baseline.
func (m MetricResult) Regressed() bool {
	return m.DeltaAnnotation != "" && m.Directionality.Regressed(m.CurrentValue, m.Previous)
}

// CustomMetricResult is a derived metric that may be flagged and may use an
// absolute delta.
type CustomMetricResult struct {
	MetricResult
	Mode    metric.Mode
	Flagged bool
}

// TestReport holds the results of one tested URL.
type TestReport struct {
	URL               string
	TestID            string
	TestLink          string
	WaterfallImageURL string
	Metrics           []MetricResult
	CustomMetrics     []CustomMetricResult
	ShouldFlagChange  bool
}

// RunReport holds every completed test of a run, in completion order.
type RunReport struct {
	Label string
	Tests []TestReport
	// Failures lists URLs whose test did not complete.
	Failures []Failure
	// BudgetFailures lists failed performance budget assertions.
	BudgetFailures []string
}

// Failure records a URL whose chain failed.
type Failure struct {
	URL   string
	Error string
}

func joinAnnotation(value, annotation string) string {
	if annotation == "" {
		return value
	}

	return value + " " + annotation
}
