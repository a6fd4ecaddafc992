package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nelfy/internal/core"
	"nelfy/internal/installments"
	"nelfy/internal/services"
)

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// PageData is what every full page template receives.
type PageData struct {
	Title     string
	Nav       string
	User      *core.User
	Notice    string
	Error     string
	Form      map[string][]string
	Errors    FormErrors
	Content   any
	AlertPoll int
	RequestID string
}

// Value returns the submitted value of a form field.
func (p PageData) Value(name string) string {
	if v := p.Form[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Renderer executes the embedded templates. Every page gets its own
// template set cloned from the layout and partials, so pages can all
// define "content" and "title".
type Renderer struct {
	pages     map[string]*template.Template
	fragments *template.Template
	now       func() time.Time
}

// NewRenderer parses templates/layout.html, templates/partials/*.html and
// one set per templates/pages/*.html from fsys.
func NewRenderer(fsys fs.FS) (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template), now: time.Now}

	base, err := template.New("").Funcs(r.funcs()).ParseFS(fsys, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	r.fragments = base

	files, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}
	for _, file := range files {
		set, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", file, err)
		}
		if _, err := set.ParseFS(fsys, file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		r.pages[strings.TrimSuffix(path.Base(file), ".html")] = set
	}
	return r, nil
}

// Page renders the named page inside the layout.
func (r *Renderer) Page(name string, data PageData) ([]byte, error) {
	set, ok := r.pages[name]
	if !ok {
		return nil, fmt.Errorf("unknown page %q", name)
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, "layout", data); err != nil {
		return nil, fmt.Errorf("render page %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// Fragment renders one partial on its own, for htmx swaps.
func (r *Renderer) Fragment(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render fragment %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"brl":    core.FormatBRL,
		"signed": func(tx core.Transaction) string { return core.FormatSigned(tx.SignedAmount()) },
		"date":   displayDate,
		"due": func(tx core.Transaction) services.DueStatus {
			return services.ClassifyDue(tx, r.now())
		},
		"percent":    func(d decimal.Decimal) string { return d.Round(0).String() + "%" },
		"barWidth":   barWidth,
		"expanded":   func(s installments.RowState) bool { return s == installments.Expanded },
		"monthLabel": monthLabel,
		"monthParam": func(d core.Date) string { return d.Format("2006-01") },
		"addMonths": func(d core.Date, n int) core.Date {
			return core.NewDate(d.Year(), int(d.Month())+n, 1)
		},
		"today": func() string { return r.now().Format(core.DateLayout) },
	}
}

// displayDate renders a nullable date, "-" when absent.
func displayDate(d *core.Date) string {
	if d == nil || d.IsZero() {
		return "-"
	}
	return d.Display()
}

// barWidth clamps a percentage to a progress bar width.
func barWidth(d decimal.Decimal) int {
	w := int(d.Round(0).IntPart())
	switch {
	case w < 0:
		return 0
	case w > 100:
		return 100
	}
	return w
}

// monthLabel renders "março de 2025".
func monthLabel(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return monthNames[d.Month()-1] + " de " + fmt.Sprint(d.Year())
}
