package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResult = `{
  "data": {
    "url": "https://example.com",
    "summary": "https://www.webpagetest.org/results.php?test=abc",
    "median": {
      "firstView": {
        "TTFB": 600,
        "firstContentfulPaint": 1200.5,
        "TotalBlockingTime": 0,
        "chromeUserTiming.LargestContentfulPaint": 2100,
        "chromeUserTiming.CumulativeLayoutShift": "0.01",
        "breakdown": {"js": {"bytes": 120000}},
        "images": {"waterfall": "https://www.webpagetest.org/waterfall.png"}
      }
    },
    "lighthouse": {
      "audits": {
        "third-party-summary": {
          "details": {
            "items": [
              {"entity": "a", "subItems": {"items": [{}, {}, {}]}},
              {"entity": "b"},
              {"entity": "c", "subItems": {"items": []}}
            ]
          }
        }
      }
    }
  }
}`

func mustParse(t *testing.T, raw string) *Document {
	t.Helper()

	doc, err := ParseDocument([]byte(raw))
	require.NoError(t, err)

	return doc
}

func TestExtract(t *testing.T) {
	doc := mustParse(t, sampleResult)

	values := Extract(doc, DefaultDefinitions())

	assert.Equal(t, Values{
		"TTFB":                                    600,
		"firstContentfulPaint":                    1200.5,
		"chromeUserTiming.LargestContentfulPaint": 2100,
	}, values)
}

func TestExtract_OmitsFalsyAndMissing(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "missing", value: ""},
		{name: "null", value: `"TTFB": null`},
		{name: "zero", value: `"TTFB": 0`},
		{name: "string", value: `"TTFB": "600"`},
		{name: "object", value: `"TTFB": {"value": 600}`},
		{name: "overflowing", value: `"TTFB": 1e400`},
		{name: "negative overflowing", value: `"TTFB": -1e400`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, `{"data":{"median":{"firstView":{`+tt.value+`}}}}`)

			values := Extract(doc, DefaultDefinitions())
			assert.NotContains(t, values, "TTFB")
		})
	}
}

func TestExtract_MissingSections(t *testing.T) {
	doc := mustParse(t, `{"statusCode": 200}`)

	assert.Empty(t, Extract(doc, Definitions(true)))
}

func TestThirdPartyRequests(t *testing.T) {
	doc := mustParse(t, sampleResult)

	// 3 entities, plus 3 sub items on the first one.
	assert.Equal(t, float64(6), ThirdPartyRequests(doc))
}

func TestObserve_ThirdPartyAuditMissingStillEmitsZero(t *testing.T) {
	doc := mustParse(t, `{"data":{"median":{"firstView":{}},"lighthouse":{"audits":{"other":{}}}}}`)

	obs := Observe(doc, DefaultDefinitions())
	values := obs.Values()

	require.NotNil(t, obs.ThirdPartyRequests)
	assert.Equal(t, float64(0), *obs.ThirdPartyRequests)
	assert.Contains(t, values, ThirdPartyRequestsKey)
	assert.NotContains(t, values, "TTFB")
}

func TestObserve_WithoutLighthouse(t *testing.T) {
	doc := mustParse(t, `{"data":{"median":{"firstView":{"TTFB":600}}}}`)

	obs := Observe(doc, DefaultDefinitions())

	assert.Nil(t, obs.ThirdPartyRequests)
	assert.Nil(t, obs.BundleSize)
	assert.Equal(t, Values{"TTFB": 600}, obs.Values())
}

func TestObserve_Full(t *testing.T) {
	doc := mustParse(t, sampleResult)

	obs := Observe(doc, DefaultDefinitions())

	require.Len(t, obs.Metrics, 3)
	assert.Equal(t, "Time to First Byte", obs.Metrics[0].Label)
	assert.Equal(t, "Largest Contentful Paint", obs.Metrics[2].Label)
	require.NotNil(t, obs.BundleSize)
	assert.Equal(t, float64(120000), *obs.BundleSize)
	assert.Equal(t, Values{
		"TTFB":                                    600,
		"firstContentfulPaint":                    1200.5,
		"chromeUserTiming.LargestContentfulPaint": 2100,
		BundleSizeKey:                             120000,
		ThirdPartyRequestsKey:                     6,
	}, obs.Values())
}

func TestDocument_LookupEscapesKeys(t *testing.T) {
	doc := mustParse(t, `{"a.b": 1, "a": {"b": 2}, "c|d": 3}`)

	n, ok := doc.Lookup("a.b").Number()
	require.True(t, ok)
	assert.Equal(t, float64(1), n)

	n, ok = doc.Lookup("a", "b").Number()
	require.True(t, ok)
	assert.Equal(t, float64(2), n)

	n, ok = doc.Lookup("c|d").Number()
	require.True(t, ok)
	assert.Equal(t, float64(3), n)
}

func TestParseDocument_Invalid(t *testing.T) {
	_, err := ParseDocument([]byte(`{"data":`))
	require.ErrorIs(t, err, errInvalidDocument)
}
