package report

import (
	"context"
	"strconv"
	"sync"

	"github.com/ethpandaops/wpt-action/internal/baseline"
	"github.com/ethpandaops/wpt-action/internal/metric"
	"github.com/sirupsen/logrus"
)

// Saver persists the baseline of a run.
type Saver interface {
	Save(ctx context.Context, snapshot baseline.Snapshot)
}

// TestInput is everything a completed test chain hands to the assembler.
type TestInput struct {
	URL               string
	TestID            string
	TestLink          string
	WaterfallImageURL string
	Observation       *metric.Observation
}

// Assembler accumulates test reports for a run. It is safe for concurrent use.
type Assembler struct {
	log             logrus.FieldLogger
	previous        baseline.Snapshot
	saver           Saver
	bundleThreshold float64

	mu        sync.Mutex
	report    RunReport
	union     baseline.Snapshot
	finalized bool
}

// NewAssembler creates an assembler diffing against previous. A zero
// bundleThreshold selects metric.DefaultBundleThreshold.
func NewAssembler(log logrus.FieldLogger, previous baseline.Snapshot, saver Saver, label string, bundleThreshold float64) *Assembler {
	if previous == nil {
		previous = baseline.Snapshot{}
	}

	if bundleThreshold <= 0 {
		bundleThreshold = metric.DefaultBundleThreshold
	}

	return &Assembler{
		log:             log.WithField("component", "report_assembler"),
		previous:        previous,
		saver:           saver,
		bundleThreshold: bundleThreshold,
		report:          RunReport{Label: label, Tests: make([]TestReport, 0)},
		union:           baseline.Snapshot{},
	}
}

// Build turns an observation into a test report without recording it.
func (a *Assembler) Build(in TestInput) TestReport {
	test := TestReport{
		URL:               in.URL,
		TestID:            in.TestID,
		TestLink:          in.TestLink,
		WaterfallImageURL: in.WaterfallImageURL,
		Metrics:           make([]MetricResult, 0, len(in.Observation.Metrics)),
		CustomMetrics:     make([]CustomMetricResult, 0, 2),
	}

	for _, observed := range in.Observation.Metrics {
		previous := a.previous.Value(observed.Key)

		test.Metrics = append(test.Metrics, MetricResult{
			Name:            observed.Label,
			Key:             observed.Key,
			CurrentValue:    observed.Value,
			DisplayValue:    strconv.FormatFloat(observed.Value, 'f', 2, 64),
			DeltaAnnotation: metric.Diff(observed.Value, previous, metric.ModePercent),
			Directionality:  observed.Directionality,
			Previous:        previous,
		})
	}

	if in.Observation.BundleSize != nil {
		current := *in.Observation.BundleSize

		previous, ok := a.previous.Lookup(metric.BundleSizeKey)
		if !ok || previous == 0 {
			previous = current
		}

		flagged := metric.ShouldFlag(current, previous, a.bundleThreshold)
		test.ShouldFlagChange = test.ShouldFlagChange || flagged

		test.CustomMetrics = append(test.CustomMetrics, CustomMetricResult{
			MetricResult: MetricResult{
				Name:            metric.BundleSizeLabel,
				Key:             metric.BundleSizeKey,
				CurrentValue:    current,
				DisplayValue:    formatNumber(current) + " bytes",
				DeltaAnnotation: metric.Diff(current, previous, metric.ModeRaw),
				Directionality:  metric.LowerIsBetter,
				Previous:        previous,
			},
			Mode:    metric.ModeRaw,
			Flagged: flagged,
		})
	}

	if in.Observation.ThirdPartyRequests != nil {
		current := *in.Observation.ThirdPartyRequests
		previous := a.previous.Value(metric.ThirdPartyRequestsKey)

		test.CustomMetrics = append(test.CustomMetrics, CustomMetricResult{
			MetricResult: MetricResult{
				Name:            metric.ThirdPartyRequestsLabel,
				Key:             metric.ThirdPartyRequestsKey,
				CurrentValue:    current,
				DisplayValue:    formatNumber(current),
				DeltaAnnotation: metric.Diff(current, previous, metric.ModePercent),
				Directionality:  metric.LowerIsBetter,
				Previous:        previous,
			},
			Mode: metric.ModePercent,
		})
	}

	return test
}

// AddTest records a completed test and folds its values into the run's new
// baseline. Tests are kept in the order AddTest is called; on key collisions
// the latest call wins.
func (a *Assembler) AddTest(in TestInput) TestReport {
	test := a.Build(in)
	values := in.Observation.Values()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		a.log.WithField("url", in.URL).Warn("test added after the run was finalized, ignoring")

		return test
	}

	a.report.Tests = append(a.report.Tests, test)
	a.union.Merge(values)

	a.log.WithFields(logrus.Fields{
		"url":     in.URL,
		"metrics": len(values),
		"flagged": test.ShouldFlagChange,
	}).Debug("added test to report")

	return test
}

// AddFailure records a URL whose chain did not complete.
func (a *Assembler) AddFailure(url string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}

	a.report.Failures = append(a.report.Failures, Failure{URL: url, Error: msg})
}

// AddBudgetFailures records failed performance budget assertions.
func (a *Assembler) AddBudgetFailures(failures ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.report.BudgetFailures = append(a.report.BudgetFailures, failures...)
}

// Finalize persists the new baseline and returns the run report. It must be
// called once every test chain has settled; later calls return the same report
// without saving again.
func (a *Assembler) Finalize(ctx context.Context) RunReport {
	a.mu.Lock()
	alreadyFinalized := a.finalized
	a.finalized = true
	union := make(baseline.Snapshot, len(a.union))
	union.Merge(a.union)
	report := a.report
	a.mu.Unlock()

	if !alreadyFinalized && a.saver != nil {
		a.saver.Save(ctx, union)
	}

	return report
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
