package fakeapp

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

const baseTemplate = "base.html"

// Renderer renders page templates inside the shared base layout.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses base.html and combines it with every other template in
// fsys. Each page template overrides the "title" and "content" blocks.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	baseContent, err := fs.ReadFile(fsys, baseTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to read base template: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || p == baseTemplate || !strings.HasSuffix(p, ".html") {
			return nil
		}

		pageContent, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", p, err)
		}
		tmpl, err := template.New("base").Funcs(funcMap()).Parse(string(baseContent))
		if err != nil {
			return fmt.Errorf("failed to parse base template for %s: %w", p, err)
		}
		if _, err := tmpl.Parse(string(pageContent)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", p, err)
		}
		r.templates[path.Base(p)] = tmpl
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if len(r.templates) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	return r, nil
}

func newEmbeddedRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	return NewRenderer(sub)
}

// Render executes the named template and writes it with status. Nothing is
// written if execution fails.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, data any) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to execute template %q: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"money":    formatMoney,
		"moneyPtr": formatMoneyPtr,
		"text":     derefText,
		"number":   formatNumber,
		"percent":  formatPercent,
		"add":      func(a, b int) int { return a + b },
		"sub":      func(a, b int) int { return a - b },
	}
}

func formatMoney(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

func formatMoneyPtr(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return formatMoney(*v)
}

func derefText(s *string) string {
	if s == nil || *s == "" {
		return "N/A"
	}
	return *s
}

func formatNumber(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%g", *v)
}

// formatPercent renders a [0,1] confidence as a whole percentage.
func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
