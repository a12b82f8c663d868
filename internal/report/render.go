package report

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/sirupsen/logrus"
)

// Marker is the first line of every rendered report. Existing comments are
// recognised by it.
const Marker = "# WebPageTest Test Results"

//go:embed templates/comment.md.tmpl
var templatesFS embed.FS

const defaultTemplateName = "templates/comment.md.tmpl"

var funcs = template.FuncMap{
	"marker": func() string { return Marker },
	"trend": func(improved, regressed bool) string {
		switch {
		case improved:
			return "✅"
		case regressed:
			return "⚠️"
		default:
			return ""
		}
	},
}

var defaultTemplate = template.Must(
	template.New("comment.md.tmpl").Funcs(funcs).ParseFS(templatesFS, defaultTemplateName),
)

// Renderer turns a run report into Markdown.
type Renderer struct {
	log  logrus.FieldLogger
	tmpl *template.Template
}

// NewRenderer creates a renderer. When templatePath is set the template is read
// from disk; a template that cannot be read or parsed falls back to the
// built-in one.
func NewRenderer(log logrus.FieldLogger, templatePath string) *Renderer {
	r := &Renderer{
		log:  log.WithField("component", "report_renderer"),
		tmpl: defaultTemplate,
	}

	if templatePath == "" {
		return r
	}

	text, err := os.ReadFile(templatePath)
	if err != nil {
		r.log.WithError(err).WithField("path", templatePath).Warn("failed to read comment template, using default")

		return r
	}

	parsed, err := template.New("custom").Funcs(funcs).Parse(string(text))
	if err != nil {
		r.log.WithError(err).WithField("path", templatePath).Warn("failed to parse comment template, using default")

		return r
	}

	r.tmpl = parsed

	return r
}

// Render executes the template. The output always starts with Marker so the
// publisher can find the comment on later runs.
func (r *Renderer) Render(report RunReport) (string, error) {
	var b strings.Builder
	if err := r.tmpl.Execute(&b, report); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}

	out := strings.TrimSpace(b.String())
	if !strings.HasPrefix(out, Marker) {
		out = Marker + "\n\n" + out
	}

	return out, nil
}
