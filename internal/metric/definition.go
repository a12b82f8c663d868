// Package metric extracts performance metrics from WebPageTest result documents
// and computes deltas against previously recorded values.
package metric

// Directionality describes whether an increase in a metric is an improvement.
type Directionality string

const (
	// LowerIsBetter marks timing style metrics where a decrease is an improvement.
	LowerIsBetter Directionality = "desc"
	// HigherIsBetter marks score style metrics where an increase is an improvement.
	HigherIsBetter Directionality = "asc"
)

// Improved reports whether moving from previous to current is an improvement.
// Equal values are never an improvement.
func (d Directionality) Improved(current, previous float64) bool {
	if d == HigherIsBetter {
		return current > previous
	}

	return current < previous
}

// Regressed reports whether moving from previous to current is a regression.
func (d Directionality) Regressed(current, previous float64) bool {
	if current == previous {
		return false
	}

	return !d.Improved(current, previous)
}

// Definition describes a single tracked metric.
type Definition struct {
	// Key is the literal key of the metric within the first view median run.
	// It doubles as the baseline key.
	Key            string
	Label          string
	Directionality Directionality
}

const (
	// BundleSizeKey is the baseline key of the compressed javascript byte count.
	BundleSizeKey = "total_js_compressed"
	// BundleSizeLabel is the display name of the compressed javascript byte count.
	BundleSizeLabel = "Total JS (compressed)"
	// ThirdPartyRequestsKey is the baseline key of the third party request count.
	ThirdPartyRequestsKey = "3rd-party-requests"
	// ThirdPartyRequestsLabel is the display name of the third party request count.
	ThirdPartyRequestsLabel = "# of 3rd party reqs"
	// DefaultBundleThreshold is the absolute bundle size change, in bytes, that gets flagged.
	DefaultBundleThreshold = 10000
)

// DefaultDefinitions returns the core web vitals tracked on every run, in report order.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Key: "TTFB", Label: "Time to First Byte", Directionality: LowerIsBetter},
		{Key: "firstContentfulPaint", Label: "First Contentful Paint", Directionality: LowerIsBetter},
		{Key: "TotalBlockingTime", Label: "Total Blocking Time", Directionality: LowerIsBetter},
		{Key: "chromeUserTiming.LargestContentfulPaint", Label: "Largest Contentful Paint", Directionality: LowerIsBetter},
		{Key: "chromeUserTiming.CumulativeLayoutShift", Label: "Cumulative Layout Shift", Directionality: LowerIsBetter},
	}
}

// LighthouseDefinitions returns the lighthouse scores tracked when lighthouse is enabled.
func LighthouseDefinitions() []Definition {
	return []Definition{
		{Key: "lighthouse.Performance", Label: "Performance", Directionality: HigherIsBetter},
		{Key: "lighthouse.Accessibility", Label: "Accessibility", Directionality: HigherIsBetter},
	}
}

// Definitions returns the tracked definitions for a run.
func Definitions(lighthouse bool) []Definition {
	defs := DefaultDefinitions()
	if lighthouse {
		defs = append(defs, LighthouseDefinitions()...)
	}

	return defs
}
