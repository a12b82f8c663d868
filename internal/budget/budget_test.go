package budget

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethpandaops/wpt-action/internal/metric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const results = `{
  "statusCode": 200,
  "data": {
    "median": {
      "firstView": {
        "TTFB": 900,
        "SpeedIndex": 2500,
        "chromeUserTiming.CumulativeLayoutShift": 0.05
      }
    }
  }
}`

func parseResults(t *testing.T) *metric.Document {
	t.Helper()

	doc, err := metric.ParseDocument([]byte(results))
	require.NoError(t, err)

	return doc
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		paths   []string
		wantErr bool
	}{
		{
			name:  "nested yaml",
			data:  "median:\n  firstView:\n    TTFB: 800\n    SpeedIndex: {min: 0, max: 3000}\n",
			paths: []string{"median.firstView.SpeedIndex", "median.firstView.TTFB"},
		},
		{
			name:  "dotted keys",
			data:  "median.firstView.TTFB: 800\n",
			paths: []string{"median.firstView.TTFB"},
		},
		{
			name:  "json",
			data:  `{"median": {"firstView": {"TTFB": 800}}}`,
			paths: []string{"median.firstView.TTFB"},
		},
		{
			name:  "empty",
			data:  "",
			paths: nil,
		},
		{
			name:    "list root",
			data:    "- 1\n",
			wantErr: true,
		},
		{
			name:    "non numeric bound",
			data:    "median:\n  firstView:\n    TTFB: fast\n",
			wantErr: true,
		},
		{
			name:    "sequence value",
			data:    "TTFB: [1, 2]\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse([]byte(tt.data))
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)

			var paths []string
			for _, a := range spec.Assertions {
				paths = append(paths, a.Path)
			}

			assert.Equal(t, tt.paths, paths)
		})
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		budget   string
		failed   int
		failures []string
		message  string
	}{
		{
			name:    "all met",
			budget:  "median:\n  firstView:\n    TTFB: 1000\n    SpeedIndex: {max: 3000}\n",
			failed:  0,
			message: "",
		},
		{
			name:     "strict upper bound",
			budget:   "median:\n  firstView:\n    TTFB: 900\n",
			failed:   1,
			failures: []string{"median.firstView.TTFB: 900 should be less than 900"},
			message:  "One performance budget not met.",
		},
		{
			name:    "inclusive range",
			budget:  "median:\n  firstView:\n    SpeedIndex: {min: 2500, max: 2500}\n",
			failed:  0,
			message: "",
		},
		{
			name:   "several failures",
			budget: "median:\n  firstView:\n    TTFB: 800\n    SpeedIndex: {min: 3000}\n    render: 1000\n",
			failed: 3,
			failures: []string{
				"median.firstView.SpeedIndex: 2500 should be at least 3000",
				"median.firstView.TTFB: 900 should be less than 800",
				"median.firstView.render: not found in results",
			},
			message: "3 performance budgets not met.",
		},
	}

	doc := parseResults(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse([]byte(tt.budget))
			require.NoError(t, err)

			res := spec.Evaluate(doc)
			assert.Equal(t, tt.failed, res.Failed)
			assert.Equal(t, tt.failed == 0, res.Passed())
			assert.Equal(t, tt.message, res.Message())

			if tt.failures != nil {
				assert.Equal(t, tt.failures, res.Failures)
			}
		})
	}
}

func TestEvaluate_MaxBound(t *testing.T) {
	spec, err := Parse([]byte(`{"median": {"firstView": {"SpeedIndex": {"max": 2000}}}}`))
	require.NoError(t, err)

	res := spec.Evaluate(parseResults(t))
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, []string{"median.firstView.SpeedIndex: 2500 should be at most 2000"}, res.Failures)
}

func TestEvaluate_DottedResultKey(t *testing.T) {
	spec, err := Parse([]byte("median:\n  firstView:\n    chromeUserTiming.CumulativeLayoutShift: 0.1\n"))
	require.NoError(t, err)

	res := spec.Evaluate(parseResults(t))
	assert.True(t, res.Passed())
	assert.Equal(t, 1, res.Total)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budget.yml")
	require.NoError(t, os.WriteFile(path, []byte("median:\n  firstView:\n    TTFB: 1000\n"), 0o600))

	spec, err := Load(path)
	require.NoError(t, err)
	require.Len(t, spec.Assertions, 1)
	assert.Equal(t, float64(1000), *spec.Assertions[0].LessThan)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}
