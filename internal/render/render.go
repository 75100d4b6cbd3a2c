// Package render turns a site.Template into HTML. Each section type is drawn
// by its own component, looked up in a static dispatch table; components lay
// out only their own fields, through inline editors when the page is editable.
package render

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"time"

	theme "github.com/goliatone/go-theme"

	"wedsite/internal/editor"
	"wedsite/internal/field"
	"wedsite/internal/site"
)

// StyleLookup is the read-only theme collaborator: presentation settings for
// one section. Implementations must not expect the result to be cached.
type StyleLookup interface {
	Style(sec *site.Section) *theme.RendererConfig
}

// Options controls one render pass.
type Options struct {
	Editable bool
	// OnFieldUpdate receives inline commits when Editable is set.
	OnFieldUpdate editor.SaveFunc
	// Editors holds the canvas editors; one is created from OnFieldUpdate when nil.
	Editors  *editor.Set
	Styles   StyleLookup
	ImageURL func(string) string
	Now      func() time.Time
}

// Result reports what a render pass did.
type Result struct {
	Rendered []site.SectionType
	Skipped  []site.SectionType
}

// Props is what a component receives for its section.
type Props struct {
	Section  *site.Section
	Style    *theme.RendererConfig
	Editable bool
	Editors  *editor.Set
	ImageURL func(string) string
	Now      time.Time
}

// Field renders f through its inline editor when editable, or through the
// display strategy otherwise. A missing or blank field on a read-only page
// renders fallback instead.
func (p Props) Field(f *field.EditableField, fallback string) template.HTML {
	if f == nil {
		return template.HTML(template.HTMLEscapeString(fallback))
	}
	if p.Editable && p.Editors != nil {
		return p.Editors.For(*f).View()
	}
	if f.IsEmpty() {
		return template.HTML(template.HTMLEscapeString(fallback))
	}
	return editor.Display(*f, p.ImageURL)
}

// Value returns the raw value of f, or fallback when f is missing or blank.
func (p Props) Value(f *field.EditableField, fallback string) string {
	if f == nil || f.IsEmpty() {
		return fallback
	}
	return f.Value
}

// Show reports whether a field block should be laid out at all: always on an
// editable canvas so empty fields can be filled, only when set otherwise.
func (p Props) Show(f *field.EditableField) bool {
	return p.Editable || (f != nil && !f.IsEmpty())
}

// Component draws one section type.
type Component interface {
	Render(w io.Writer, p Props) error
}

// ComponentFunc adapts a function to Component.
type ComponentFunc func(w io.Writer, p Props) error

func (fn ComponentFunc) Render(w io.Writer, p Props) error { return fn(w, p) }

// Renderer owns the dispatch table.
type Renderer struct {
	components map[site.SectionType]Component
	logger     *slog.Logger
}

// New returns a renderer with the built-in component for every catalog type.
func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	table := make(map[site.SectionType]Component, len(builtins))
	for t, c := range builtins {
		table[t] = c
	}
	return &Renderer{components: table, logger: logger}
}

// Component returns the component registered for t.
func (r *Renderer) Component(t site.SectionType) (Component, bool) {
	c, ok := r.components[t]
	return c, ok
}

// Render writes every enabled section in order. Unknown section types and
// sections whose component fails are logged and skipped; the page goes on.
func (r *Renderer) Render(ctx context.Context, w io.Writer, tpl *site.Template, opts Options) (Result, error) {
	var res Result
	if tpl == nil {
		return res, nil
	}
	if opts.Editable && opts.Editors == nil {
		opts.Editors = editor.NewSet(opts.OnFieldUpdate, editor.WithImageURL(opts.ImageURL), editor.WithLogger(r.logger))
	}
	now := time.Now()
	if opts.Now != nil {
		now = opts.Now()
	}

	for _, sec := range tpl.Ordered() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !sec.Enabled {
			continue
		}
		comp, ok := r.components[sec.Type]
		if !ok {
			r.logger.Warn("no component for section type, skipping",
				slog.String("section_id", sec.ID),
				slog.String("section_type", string(sec.Type)),
			)
			res.Skipped = append(res.Skipped, sec.Type)
			continue
		}
		props := Props{
			Section:  sec,
			Editable: opts.Editable,
			Editors:  opts.Editors,
			ImageURL: opts.ImageURL,
			Now:      now,
		}
		if opts.Styles != nil {
			props.Style = opts.Styles.Style(sec)
		}
		if err := comp.Render(w, props); err != nil {
			r.logger.Error("section render failed",
				slog.String("section_type", string(sec.Type)),
				slog.Any("error", err),
			)
			res.Skipped = append(res.Skipped, sec.Type)
			continue
		}
		res.Rendered = append(res.Rendered, sec.Type)
	}
	return res, nil
}

// RenderPage writes a complete HTML document around the sections.
func (r *Renderer) RenderPage(ctx context.Context, w io.Writer, tpl *site.Template, opts Options) (Result, error) {
	head := pageHead{Title: pageTitle(tpl), Description: tpl.SEO.Description, Editable: opts.Editable}
	if ts, ok := opts.Styles.(*BoundStyles); ok {
		head.RootStyle = cssVarsStyle(ts.Root().CSSVars)
		head.Stylesheet = ts.Root().AssetURL("stylesheet")
	}
	if err := pageTemplates.ExecuteTemplate(w, "page-open", head); err != nil {
		return Result{}, fmt.Errorf("write page head: %w", err)
	}
	res, err := r.Render(ctx, w, tpl, opts)
	if err != nil {
		return res, err
	}
	if _, err := io.WriteString(w, "</main>\n</body>\n</html>\n"); err != nil {
		return res, fmt.Errorf("write page tail: %w", err)
	}
	return res, nil
}

type pageHead struct {
	Title       string
	Description string
	RootStyle   template.CSS
	Stylesheet  string
	Editable    bool
}

func pageTitle(tpl *site.Template) string {
	if tpl.SEO.Title != "" {
		return tpl.SEO.Title
	}
	hero, ok := tpl.Section(site.Hero)
	if !ok {
		return "Our Wedding"
	}
	d, ok := hero.Data.(*site.HeroData)
	if !ok || d.BrideName.IsEmpty() || d.GroomName.IsEmpty() {
		return "Our Wedding"
	}
	return d.BrideName.Value + " & " + d.GroomName.Value
}
