package metric

// Values maps metric keys to observed values.
type Values map[string]float64

// Observation is everything extracted from a single result document.
type Observation struct {
	// Metrics holds the standard metrics in definition order. Omitted metrics
	// are absent.
	Metrics []Observed
	// BundleSize is the compressed javascript byte count, when present.
	BundleSize *float64
	// ThirdPartyRequests is the third party request count, when the result
	// carries lighthouse audits.
	ThirdPartyRequests *float64
}

// Observed pairs a definition with its observed value.
type Observed struct {
	Definition
	Value float64
}

// Values flattens the observation into a key to value mapping.
func (o *Observation) Values() Values {
	out := make(Values, len(o.Metrics)+2)
	for _, m := range o.Metrics {
		out[m.Key] = m.Value
	}

	if o.BundleSize != nil {
		out[BundleSizeKey] = *o.BundleSize
	}

	if o.ThirdPartyRequests != nil {
		out[ThirdPartyRequestsKey] = *o.ThirdPartyRequests
	}

	return out
}

// FirstView returns the first view, median run section of a result document.
func FirstView(doc *Document) Value {
	return doc.Lookup("data", "median", "firstView")
}

// Extract reads every definition from the first view median run. Definitions
// resolving to a missing, null, zero, NaN or non-numeric value are omitted.
func Extract(doc *Document, defs []Definition) Values {
	out := make(Values, len(defs))
	for _, o := range extractObserved(doc, defs) {
		out[o.Key] = o.Value
	}

	return out
}

// Observe extracts the standard metrics plus the derived custom metrics.
func Observe(doc *Document, defs []Definition) *Observation {
	obs := &Observation{
		Metrics: extractObserved(doc, defs),
	}

	if size, ok := BundleSize(doc); ok {
		obs.BundleSize = &size
	}

	if HasLighthouseAudits(doc) {
		count := ThirdPartyRequests(doc)
		obs.ThirdPartyRequests = &count
	}

	return obs
}

func extractObserved(doc *Document, defs []Definition) []Observed {
	firstView := FirstView(doc)
	out := make([]Observed, 0, len(defs))

	for _, def := range defs {
		value, ok := firstView.Get(def.Key).Truthy()
		if !ok {
			continue
		}

		out = append(out, Observed{Definition: def, Value: value})
	}

	return out
}

// BundleSize returns the compressed javascript byte count of the first view.
func BundleSize(doc *Document) (float64, bool) {
	return FirstView(doc).Get("breakdown", "js", "bytes").Truthy()
}

// HasLighthouseAudits reports whether the result carries lighthouse audits.
func HasLighthouseAudits(doc *Document) bool {
	return doc.Lookup("data", "lighthouse", "audits").IsObject()
}

// ThirdPartyRequests counts third party requests from the lighthouse
// third-party-summary audit: every entity counts once plus once per sub item.
// Missing audit data counts as zero.
func ThirdPartyRequests(doc *Document) float64 {
	items := doc.Lookup("data", "lighthouse", "audits", "third-party-summary", "details", "items").Array()

	var count float64
	for _, item := range items {
		count += float64(len(item.Get("subItems", "items").Array())) + 1
	}

	return count
}
