// Package runner executes a WebPageTest run: one test chain per URL, a join
// point, baseline persistence and report publication.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ethpandaops/wpt-action/internal/action"
	"github.com/ethpandaops/wpt-action/internal/baseline"
	"github.com/ethpandaops/wpt-action/internal/budget"
	"github.com/ethpandaops/wpt-action/internal/metric"
	"github.com/ethpandaops/wpt-action/internal/output"
	"github.com/ethpandaops/wpt-action/internal/report"
	"github.com/ethpandaops/wpt-action/internal/telemetry"
	"github.com/ethpandaops/wpt-action/internal/wpt"
	"github.com/sethvargo/go-githubactions"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Publisher publishes a rendered report.
type Publisher interface {
	Publish(ctx context.Context, body string) error
}

// BaselineStore loads and saves baselines.
type BaselineStore interface {
	Load(ctx context.Context) baseline.Snapshot
	Save(ctx context.Context, snapshot baseline.Snapshot)
}

// Config contains configuration for a run.
type Config struct {
	Logger  logrus.FieldLogger
	Writer  io.Writer
	URLs    []string
	Options wpt.Options
	// Budget is optional.
	Budget          *budget.Spec
	Label           string
	BundleThreshold float64
	// Comment enables rendering and publishing the report.
	Comment         bool
	FailOnTestError bool
	// BaselineBackend names the store for telemetry.
	BaselineBackend string

	Service   wpt.Service
	Store     BaselineStore
	Renderer  *report.Renderer
	Publisher Publisher
	Collector telemetry.Collector
	// Actions receives workflow commands. Defaults to one writing to Writer.
	Actions   *githubactions.Action
}

// Runner coordinates a run.
type Runner struct {
	cfg       Config
	log       logrus.FieldLogger
	writer    io.Writer
	status    *action.Status
	results   *output.ResultsFormatter
	summary   *output.SummaryFormatter
	actions   *githubactions.Action
	collector telemetry.Collector
}

// New creates a runner.
func New(cfg Config) *Runner {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	actions := cfg.Actions
	if actions == nil {
		actions = githubactions.New(githubactions.WithWriter(writer))
	}

	collector := cfg.Collector
	if collector == nil {
		collector = telemetry.NewCollector(cfg.Logger, telemetry.Config{})
	}

	renderer := output.NewRenderer()

	return &Runner{
		cfg:       cfg,
		log:       cfg.Logger.WithField("component", "runner"),
		writer:    writer,
		status:    action.NewStatus(),
		results:   output.NewResultsFormatter(cfg.Logger, renderer),
		summary:   output.NewSummaryFormatter(renderer),
		actions:   actions,
		collector: collector,
	}
}

// Run executes the run and returns its status. Per-URL failures never stop
// sibling chains; the baseline is saved and the report published regardless.
func (r *Runner) Run(ctx context.Context) *action.Status {
	if err := r.collector.Start(ctx); err != nil {
		r.status.Record(action.Soft, fmt.Sprintf("starting telemetry: %v", err))
	}

	defer func() {
		if err := r.collector.Stop(); err != nil {
			r.log.WithError(err).Warn("failed to stop telemetry collector")
		}
	}()

	previous := r.loadBaseline(ctx)
	assembler := report.NewAssembler(r.cfg.Logger, previous, r.cfg.Store, r.cfg.Label, r.cfg.BundleThreshold)

	r.actions.Group("WebPageTest configuration")
	r.log.WithFields(logrus.Fields{
		"urls":    len(r.cfg.URLs),
		"options": r.cfg.Options.String(),
	}).Info("starting tests")
	r.actions.EndGroup()

	var wg sync.WaitGroup

	for _, url := range r.cfg.URLs {
		wg.Add(1)

		go func(url string) {
			defer wg.Done()
			r.runChain(ctx, url, assembler)
		}(url)
	}

	wg.Wait()

	run := assembler.Finalize(ctx)

	r.recordFailures(run)

	if r.cfg.Comment {
		r.publish(ctx, run)
	}

	r.flush(ctx, run)
	r.notice()

	return r.status
}

// notice annotates the workflow run with the outcome of the tests.
func (r *Runner) notice() {
	summary := r.collector.GetSummary()

	r.actions.WithFieldsMap(map[string]string{"title": "WebPageTest"}).
		Noticef("%d of %d URLs passed, %d flagged", summary.PassedTests, summary.TotalTests, summary.FlaggedTests)
}

func (r *Runner) loadBaseline(ctx context.Context) baseline.Snapshot {
	if r.cfg.Store == nil {
		return baseline.Snapshot{}
	}

	start := time.Now()
	previous := r.cfg.Store.Load(ctx)

	r.collector.RecordBaselineLoad(telemetry.BaselineLoadMetric{
		Backend:   r.cfg.BaselineBackend,
		Found:     len(previous) > 0,
		Keys:      len(previous),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	})

	return previous
}

// recordFailures turns URL and budget failures into status problems.
func (r *Runner) recordFailures(run report.RunReport) {
	severity := action.Soft
	if r.cfg.FailOnTestError {
		severity = action.Test
	}

	for _, failure := range run.Failures {
		msg := fmt.Sprintf("%s: %s", failure.URL, failure.Error)
		r.status.Record(severity, msg)
		r.actions.Warningf("%s", msg)
	}

	if n := len(run.BudgetFailures); n > 0 {
		r.status.Record(action.Run, budget.Result{Failed: n}.Message())
	}
}

func (r *Runner) publish(ctx context.Context, run report.RunReport) {
	if r.cfg.Publisher == nil || r.cfg.Renderer == nil {
		r.log.Warn("commenting is enabled but no publisher is configured")

		return
	}

	body, err := r.cfg.Renderer.Render(run)
	if err != nil {
		r.status.Record(action.Run, err.Error())

		return
	}

	if err := r.cfg.Publisher.Publish(ctx, body); err != nil {
		r.status.Record(action.Run, fmt.Sprintf("publishing report: %v", err))
	}
}

// flush prints the console summary and pushes telemetry concurrently.
func (r *Runner) flush(ctx context.Context, run report.RunReport) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.actions.Group("WebPageTest results")
		defer r.actions.EndGroup()

		_, err := fmt.Fprintln(r.writer, r.results.Format(run)+r.summary.Format(r.collector.GetSummary(), len(run.BudgetFailures)))

		return err
	})

	g.Go(func() error {
		return r.collector.Push(gctx)
	})

	if err := g.Wait(); err != nil {
		r.log.WithError(err).Warn("failed to flush run output")
		r.status.Record(action.Soft, err.Error())
	}
}

// runChain runs submit, wait, retrieve, budget and extraction for one URL.
// Any error or panic is confined to the URL.
func (r *Runner) runChain(ctx context.Context, url string, assembler *report.Assembler) {
	start := time.Now()
	log := r.log.WithField("url", url)

	result := &telemetry.TestResultMetric{URL: url}

	fail := func(err error) {
		log.WithError(err).Error("test failed")
		assembler.AddFailure(url, err)

		result.ErrorMessage = err.Error()
	}

	defer func() {
		if p := recover(); p != nil {
			fail(fmt.Errorf("panic: %v", p))
		}

		result.Duration = time.Since(start)
		result.Timestamp = time.Now()
		r.collector.RecordTestResult(result)
	}()

	opts := r.cfg.Options

	sub, err := r.cfg.Service.Submit(ctx, url, opts)
	if err != nil {
		fail(err)

		return
	}

	result.TestID = sub.TestID
	log = log.WithField("test_id", sub.TestID)
	log.Info("test submitted")

	if err := r.cfg.Service.Wait(ctx, sub.TestID, opts.PollInterval(), opts.WaitTimeout()); err != nil {
		fail(err)

		return
	}

	doc, err := r.cfg.Service.Results(ctx, sub.TestID)
	if err != nil {
		fail(err)

		return
	}

	if r.cfg.Budget != nil {
		res := r.cfg.Budget.Evaluate(doc)
		if !res.Passed() {
			prefixed := make([]string, 0, len(res.Failures))
			for _, f := range res.Failures {
				prefixed = append(prefixed, url+": "+f)
			}

			assembler.AddBudgetFailures(prefixed...)
			log.WithField("failed", res.Failed).Warn("performance budget not met")
		}
	}

	observation := metric.Observe(doc, metric.Definitions(opts.Lighthouse))

	test := assembler.AddTest(report.TestInput{
		URL:               url,
		TestID:            sub.TestID,
		TestLink:          r.testLink(doc, sub),
		WaterfallImageURL: metric.FirstView(doc).Get("images", "waterfall").String(),
		Observation:       observation,
	})

	result.Passed = true
	result.Flagged = test.ShouldFlagChange
	result.Values = observation.Values()

	log.WithField("metrics", len(result.Values)).Info("test complete")
}

func (r *Runner) testLink(doc *metric.Document, sub *wpt.Submission) string {
	if link := doc.Lookup("data", "summary").String(); link != "" {
		return link
	}

	if sub.UserURL != "" {
		return sub.UserURL
	}

	return r.cfg.Service.ResultURL(sub.TestID)
}
