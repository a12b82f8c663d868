// Package telemetry collects run metrics and optionally pushes them to a
// Prometheus Pushgateway.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

const (
	namespace = "wpt_action"
	// DefaultJob is the Pushgateway job name.
	DefaultJob = "wpt_action"
)

// BaselineLoadMetric captures how the baseline was obtained.
type BaselineLoadMetric struct {
	Backend   string
	Found     bool
	Keys      int
	Duration  time.Duration
	Timestamp time.Time
}

// TestResultMetric captures one per-URL test chain.
type TestResultMetric struct {
	URL    string
	TestID string
	Passed bool
	// Flagged is set when the bundle size changed significantly.
	Flagged  bool
	Duration time.Duration
	// Values are the extracted metric values, keyed by metric key.
	Values       map[string]float64
	ErrorMessage string // empty if passed
	Timestamp    time.Time
}

// SummaryMetric provides aggregate statistics for the run.
type SummaryMetric struct {
	RunID         string
	TotalDuration time.Duration
	TotalTests    int
	PassedTests   int
	FailedTests   int
	FlaggedTests  int
	BaselineFound bool
	BaselineKeys  int
}

// Collector records run metrics.
type Collector interface {
	Start(ctx context.Context) error
	Stop() error
	RecordBaselineLoad(metric BaselineLoadMetric)
	RecordTestResult(metric *TestResultMetric)
	GetSummary() SummaryMetric
	// Push sends the registry to the Pushgateway. It is a no-op without one.
	Push(ctx context.Context) error
}

// Config configures the collector.
type Config struct {
	// PushgatewayURL enables pushing when set.
	PushgatewayURL string
	Job            string
	// Labels are added to the Pushgateway grouping key.
	Labels map[string]string
}

type collector struct {
	log         logrus.FieldLogger
	cfg         Config
	runID       string
	mu          sync.RWMutex
	baseline    *BaselineLoadMetric
	testMetrics []TestResultMetric
	startTime   time.Time

	registry      *prometheus.Registry
	metricValue   *prometheus.GaugeVec
	chainDuration *prometheus.GaugeVec
	chainSuccess  *prometheus.GaugeVec
	baselineKeys  prometheus.Gauge
}

// NewCollector creates a new metrics collector.
func NewCollector(log logrus.FieldLogger, cfg Config) Collector {
	if cfg.Job == "" {
		cfg.Job = DefaultJob
	}

	c := &collector{
		log:         log.WithField("component", "telemetry_collector"),
		cfg:         cfg,
		runID:       uuid.NewString(),
		testMetrics: make([]TestResultMetric, 0, 8),
		registry:    prometheus.NewRegistry(),
		metricValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_value",
			Help:      "Median first view value of a performance metric.",
		}, []string{"url", "metric"}),
		chainDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Wall time from submission to report for a URL.",
		}, []string{"url"}),
		chainSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_success",
			Help:      "1 if the test chain for a URL completed.",
		}, []string{"url"}),
		baselineKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "baseline_keys",
			Help:      "Number of metrics in the loaded baseline.",
		}),
	}

	c.registry.MustRegister(c.metricValue, c.chainDuration, c.chainSuccess, c.baselineKeys)

	return c
}

func (c *collector) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()

	c.log.WithField("run_id", c.runID).Debug("telemetry collector started")

	return nil
}

func (c *collector) Stop() error {
	c.log.Debug("telemetry collector stopped")

	return nil
}

func (c *collector) RecordBaselineLoad(metric BaselineLoadMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseline = &metric
	c.baselineKeys.Set(float64(metric.Keys))
}

func (c *collector) RecordTestResult(metric *TestResultMetric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testMetrics = append(c.testMetrics, *metric)

	c.chainDuration.WithLabelValues(metric.URL).Set(metric.Duration.Seconds())

	if !metric.Passed {
		c.chainSuccess.WithLabelValues(metric.URL).Set(0)

		return
	}

	c.chainSuccess.WithLabelValues(metric.URL).Set(1)

	for key, value := range metric.Values {
		c.metricValue.WithLabelValues(metric.URL, key).Set(value)
	}
}

func (c *collector) GetSummary() SummaryMetric {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary := SummaryMetric{
		RunID:         c.runID,
		TotalDuration: time.Since(c.startTime),
		TotalTests:    len(c.testMetrics),
	}

	for _, tm := range c.testMetrics {
		if tm.Passed {
			summary.PassedTests++
		} else {
			summary.FailedTests++
		}

		if tm.Flagged {
			summary.FlaggedTests++
		}
	}

	if c.baseline != nil {
		summary.BaselineFound = c.baseline.Found
		summary.BaselineKeys = c.baseline.Keys
	}

	return summary
}

func (c *collector) Push(ctx context.Context) error {
	if c.cfg.PushgatewayURL == "" {
		return nil
	}

	pusher := push.New(c.cfg.PushgatewayURL, c.cfg.Job).
		Gatherer(c.registry).
		Grouping("run_id", c.runID)

	for k, v := range c.cfg.Labels {
		if v != "" {
			pusher = pusher.Grouping(k, v)
		}
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"run_id":  c.runID,
		"gateway": c.cfg.PushgatewayURL,
	}).Info("pushed run metrics")

	return nil
}

// Compile-time interface compliance check
var _ Collector = (*collector)(nil)
