package output

import (
	"strconv"
	"strings"

	"github.com/ethpandaops/wpt-action/internal/report"
	"github.com/sirupsen/logrus"
)

const maxErrorWidth = 80

// ResultsFormatter formats the per-URL reports of a run as tables.
type ResultsFormatter struct {
	log      logrus.FieldLogger
	renderer *Renderer
	colors   *ColorHelper
}

// NewResultsFormatter creates a new results table formatter.
func NewResultsFormatter(log logrus.FieldLogger, renderer *Renderer) *ResultsFormatter {
	return &ResultsFormatter{
		log:      log.WithField("component", "output.results_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format renders one table per tested URL followed by the failed URLs.
func (f *ResultsFormatter) Format(run report.RunReport) string {
	if len(run.Tests) == 0 && len(run.Failures) == 0 {
		return "No tests executed"
	}

	var builder strings.Builder

	headers := []string{"Metric", "Value", "Baseline", "Change"}

	for _, test := range run.Tests {
		rows := make([][]string, 0, len(test.Metrics)+len(test.CustomMetrics))

		for _, m := range test.Metrics {
			rows = append(rows, f.row(m, ""))
		}

		for _, m := range test.CustomMetrics {
			flag := ""
			if m.Flagged {
				flag = " " + f.colors.Failure("🚩")
			}

			rows = append(rows, f.row(m.MetricResult, flag))
		}

		title := "▸ " + test.URL
		if test.TestID != "" {
			title += " " + f.colors.Muted("("+test.TestID+")")
		}

		builder.WriteString("\n" + f.colors.Header(title) + "\n\n")

		if len(rows) == 0 {
			f.log.WithField("url", test.URL).Debug("no metrics extracted from results")
			builder.WriteString(f.colors.Muted("  no metrics reported") + "\n")

			continue
		}

		builder.WriteString(f.renderer.RenderToString(headers, rows, WithAutoFormatHeaders(false)))

		if test.ShouldFlagChange {
			builder.WriteString(f.colors.Warning("  bundle size changed significantly") + "\n")
		}
	}

	if len(run.Failures) > 0 {
		builder.WriteString("\n" + f.colors.Header("▸ Failed URLs") + "\n\n")

		rows := make([][]string, 0, len(run.Failures))
		for _, failure := range run.Failures {
			rows = append(rows, []string{
				failure.URL,
				f.colors.Failure("✗ FAILED"),
				f.colors.Muted(truncate(failure.Error, maxErrorWidth)),
			})
		}

		builder.WriteString(f.renderer.RenderToString([]string{"URL", "Status", "Error"}, rows))
	}

	return builder.String()
}

func (f *ResultsFormatter) row(m report.MetricResult, suffix string) []string {
	previous := "-"
	if m.Previous != 0 {
		previous = strconv.FormatFloat(m.Previous, 'f', -1, 64)
	}

	change := f.colors.FormatTrend(m.DeltaAnnotation, m.Improved(), m.Regressed())

	return []string{m.Name, m.DisplayValue + suffix, previous, change}
}
