package output

import (
	"fmt"

	"github.com/fatih/color"
)

// ColorHelper colors console output. Colors follow color.NoColor at creation,
// so piped output and CI logs without a terminal stay plain.
type ColorHelper struct {
	enabled bool
}

// NewColorHelper creates a new color helper
func NewColorHelper() *ColorHelper {
	return &ColorHelper{
		enabled: !color.NoColor,
	}
}

func (c *ColorHelper) paint(text string, attrs ...color.Attribute) string {
	if !c.enabled {
		return text
	}

	return color.New(attrs...).Sprint(text)
}

// Success returns green text
func (c *ColorHelper) Success(text string) string {
	return c.paint(text, color.FgGreen)
}

// Failure returns red text
func (c *ColorHelper) Failure(text string) string {
	return c.paint(text, color.FgRed)
}

// Warning returns yellow text
func (c *ColorHelper) Warning(text string) string {
	return c.paint(text, color.FgYellow)
}

// Muted returns gray text
func (c *ColorHelper) Muted(text string) string {
	return c.paint(text, color.FgHiBlack)
}

// Header returns bold cyan text for section headers
func (c *ColorHelper) Header(text string) string {
	return c.paint(text, color.FgCyan, color.Bold)
}

// FormatTrend colors a metric change by whether it improved or regressed
// against the baseline. Unchanged values are left plain.
func (c *ColorHelper) FormatTrend(text string, improved, regressed bool) string {
	switch {
	case improved:
		return c.Success(text)
	case regressed:
		return c.Warning(text)
	default:
		return text
	}
}

// FormatCount returns "passed/total", green when everything passed and red
// when nothing did.
func (c *ColorHelper) FormatCount(passed, total int) string {
	text := fmt.Sprintf("%d/%d", passed, total)

	switch passed {
	case total:
		return c.Success(text)
	case 0:
		return c.Failure(text)
	default:
		return c.Warning(text)
	}
}
