package output

import (
	"fmt"

	"github.com/ethpandaops/wpt-action/internal/telemetry"
)

// SummaryFormatter formats run statistics as a table.
type SummaryFormatter struct {
	renderer *Renderer
	colors   *ColorHelper
}

// NewSummaryFormatter creates a new summary table formatter.
func NewSummaryFormatter(renderer *Renderer) *SummaryFormatter {
	return &SummaryFormatter{
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format converts the run summary into a formatted table string.
func (f *SummaryFormatter) Format(summary telemetry.SummaryMetric, budgetFailures int) string {
	failedValue := f.colors.Success("0")
	if summary.FailedTests > 0 {
		failedValue = f.colors.Failure(fmt.Sprintf("%d", summary.FailedTests))
	}

	flaggedValue := f.colors.Success("0")
	if summary.FlaggedTests > 0 {
		flaggedValue = f.colors.Warning(fmt.Sprintf("%d", summary.FlaggedTests))
	}

	budgetValue := f.colors.Success("met")
	if budgetFailures > 0 {
		budgetValue = f.colors.Failure(fmt.Sprintf("%d not met", budgetFailures))
	}

	baselineValue := f.colors.Muted("none")
	if summary.BaselineFound {
		baselineValue = fmt.Sprintf("%d metrics", summary.BaselineKeys)
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"URLs Tested", f.colors.FormatCount(summary.PassedTests, summary.TotalTests)},
			{"Failed", failedValue},
			{"Bundle Size Flags", flaggedValue},
			{"Budgets", budgetValue},
			{"Baseline", baselineValue},
			{"Total Duration", Duration(summary.TotalDuration)},
			{"Run ID", f.colors.Muted(summary.RunID)},
		}
	)

	return "\n" + f.colors.Header("▸ Summary") + "\n\n" + f.renderer.RenderToString(headers, rows)
}
