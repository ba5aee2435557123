package workflow

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// Markdown renders the report as a Markdown document with one table row per
// executed step.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s: %s\n\n", strings.ToUpper(r.Outcome), mdCell(r.Scenario))
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Duration: %dms\n", r.Duration.Milliseconds())
	fmt.Fprintf(&b, "- Final state: %s\n", r.Final)
	if r.Err != nil {
		fmt.Fprintf(&b, "- Error: %s\n", mdCell(r.Err.Error()))
	}

	if len(r.Steps) == 0 {
		b.WriteString("\nNo steps ran.\n")
		return b.String()
	}

	b.WriteString("\n| # | Step | Transition | Status | Duration | URL |\n")
	b.WriteString("|---|------|------------|--------|----------|-----|\n")
	for i, s := range r.Steps {
		status := "ok"
		if s.Err != nil {
			status = "**failed**"
		}
		fmt.Fprintf(&b, "| %d | %s | %s → %s | %s | %dms | %s |\n",
			i+1, mdCell(s.Name), s.From, s.To, status, s.Duration.Milliseconds(), mdCell(s.URL))
	}
	return b.String()
}

// mdCell keeps text on one line and inside its table cell.
func mdCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

var reportPolicy = bluemonday.UGCPolicy()

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 960px; margin: 0 auto; padding: 2rem 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; font-size: 0.9rem; }
code { background: #f5f5f5; padding: 0 0.2rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders the report as a standalone HTML page.
func (r *Report) HTML() ([]byte, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(r.Markdown()))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	body := reportPolicy.SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := reportPage.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{
		Title: fmt.Sprintf("%s %s", strings.ToUpper(r.Outcome), r.Scenario),
		Body:  template.HTML(body),
	})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}
