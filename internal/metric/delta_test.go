package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		mode     Mode
		expected string
	}{
		{
			name:     "percent increase",
			current:  900,
			previous: 800,
			mode:     ModePercent,
			expected: "(📈 12.50%)",
		},
		{
			name:     "percent decrease",
			current:  600,
			previous: 800,
			mode:     ModePercent,
			expected: "(📉 -25.00%)",
		},
		{
			name:     "percent rounds to two decimals",
			current:  800,
			previous: 600,
			mode:     ModePercent,
			expected: "(📈 33.33%)",
		},
		{
			name:     "tiny change still carries a marker",
			current:  100001,
			previous: 100000,
			mode:     ModePercent,
			expected: "(📈 0.00%)",
		},
		{
			name:     "equal values",
			current:  800,
			previous: 800,
			mode:     ModePercent,
			expected: "",
		},
		{
			name:     "zero previous",
			current:  800,
			previous: 0,
			mode:     ModePercent,
			expected: "",
		},
		{
			name:     "zero current",
			current:  0,
			previous: 800,
			mode:     ModePercent,
			expected: "",
		},
		{
			name:     "NaN previous",
			current:  800,
			previous: math.NaN(),
			mode:     ModePercent,
			expected: "",
		},
		{
			name:     "raw increase",
			current:  120000,
			previous: 110000,
			mode:     ModeRaw,
			expected: "(10000)",
		},
		{
			name:     "raw decrease",
			current:  100000,
			previous: 110000,
			mode:     ModeRaw,
			expected: "(-10000)",
		},
		{
			name:     "raw equal",
			current:  110000,
			previous: 110000,
			mode:     ModeRaw,
			expected: "(0)",
		},
		{
			name:     "raw zero guard",
			current:  110000,
			previous: 0,
			mode:     ModeRaw,
			expected: "",
		},
		{
			name:     "percent both infinite",
			current:  math.Inf(1),
			previous: math.Inf(1),
			mode:     ModePercent,
			expected: "",
		},
		{
			name:     "raw both infinite",
			current:  math.Inf(-1),
			previous: math.Inf(-1),
			mode:     ModeRaw,
			expected: "",
		},
		{
			name:     "percent overflowing ratio",
			current:  math.MaxFloat64,
			previous: 1e-300,
			mode:     ModePercent,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Diff(tt.current, tt.previous, tt.mode))
		})
	}
}

func TestDiff_MarkerFollowsSign(t *testing.T) {
	values := []float64{0.1, 1, 3.5, 42, 800, 1234.56, 99999}

	for _, current := range values {
		for _, previous := range values {
			got := Diff(current, previous, ModePercent)

			switch {
			case current > previous:
				assert.Contains(t, got, increaseMarker, "current=%v previous=%v", current, previous)
			case current < previous:
				assert.Contains(t, got, decreaseMarker, "current=%v previous=%v", current, previous)
			default:
				assert.Empty(t, got, "current=%v previous=%v", current, previous)
			}
		}

		assert.Empty(t, Diff(current, 0, ModePercent))
		assert.Empty(t, Diff(0, current, ModePercent))
	}
}

func TestShouldFlag(t *testing.T) {
	tests := []struct {
		name      string
		current   float64
		baseline  float64
		threshold float64
		expected  bool
	}{
		{name: "growth over threshold", current: 50000, baseline: 30000, threshold: 10000, expected: true},
		{name: "growth under threshold", current: 50000, baseline: 45000, threshold: 10000, expected: false},
		{name: "exactly at threshold", current: 40000, baseline: 30000, threshold: 10000, expected: true},
		{name: "shrink over threshold", current: 10000, baseline: 30000, threshold: 10000, expected: true},
		{name: "no baseline", current: 50000, baseline: 50000, threshold: 10000, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldFlag(tt.current, tt.baseline, tt.threshold))
		})
	}
}

func TestDirectionality(t *testing.T) {
	assert.True(t, LowerIsBetter.Improved(600, 800))
	assert.False(t, LowerIsBetter.Improved(800, 800))
	assert.True(t, LowerIsBetter.Regressed(900, 800))
	assert.True(t, HigherIsBetter.Improved(0.95, 0.9))
	assert.True(t, HigherIsBetter.Regressed(0.8, 0.9))
	assert.False(t, HigherIsBetter.Regressed(0.9, 0.9))
}
