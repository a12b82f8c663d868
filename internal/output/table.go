// Package output renders the console summary of a run.
package output

import (
	"bytes"
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderOption configures table rendering
type RenderOption func(*tablewriter.Table)

// WithAutoFormatHeaders enables/disables auto header formatting
func WithAutoFormatHeaders(enable bool) RenderOption {
	return func(t *tablewriter.Table) {
		t.SetAutoFormatHeaders(enable)
	}
}

// Renderer renders tables
type Renderer struct{}

// NewRenderer creates a new table renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderToString renders a table into a string
func (r *Renderer) RenderToString(headers []string, rows [][]string, opts ...RenderOption) string {
	buf := &bytes.Buffer{}
	r.RenderToWriter(buf, headers, rows, opts...)
	return buf.String()
}

// RenderToWriter renders a table to w
func (r *Renderer) RenderToWriter(w io.Writer, headers []string, rows [][]string, opts ...RenderOption) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("│")
	table.SetRowSeparator("─")
	table.SetHeaderLine(true)
	table.SetBorder(true)
	table.SetTablePadding(" ")
	table.SetNoWhiteSpace(false)

	for _, opt := range opts {
		opt(table)
	}

	table.AppendBulk(rows)
	table.Render()
}
