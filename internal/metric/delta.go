package metric

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Mode selects how a delta is rendered.
type Mode int

const (
	// ModePercent renders the relative change against the previous value.
	ModePercent Mode = iota
	// ModeRaw renders the plain arithmetic difference.
	ModeRaw
)

const (
	increaseMarker = "📈"
	decreaseMarker = "📉"
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}

	return "percent"
}

// Diff renders the change from previous to current. It returns "" when either
// value is zero or NaN, and in percent mode when the values are equal.
// The result only reflects the arithmetic sign; whether a change is good is
// decided by the metric's Directionality.
func Diff(current, previous float64, mode Mode) string {
	if isFalsy(current) || isFalsy(previous) {
		return ""
	}

	diff := current - previous
	if !isFinite(diff) {
		return ""
	}

	if mode == ModeRaw {
		return fmt.Sprintf("(%s)", decimal.NewFromFloat(diff).String())
	}

	ratio := diff / previous * 100
	if !isFinite(ratio) {
		return ""
	}

	pct := decimal.NewFromFloat(ratio).StringFixed(2)

	switch {
	case diff > 0:
		return fmt.Sprintf("(%s %s%%)", increaseMarker, pct)
	case diff < 0:
		return fmt.Sprintf("(%s %s%%)", decreaseMarker, pct)
	default:
		return ""
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ShouldFlag reports whether the absolute change from baseline reaches threshold.
func ShouldFlag(current, baseline, threshold float64) bool {
	return math.Abs(current-baseline) >= threshold
}

func isFalsy(v float64) bool {
	return v == 0 || math.IsNaN(v)
}
