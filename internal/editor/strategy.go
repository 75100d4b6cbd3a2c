package editor

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"wedsite/internal/field"
	"wedsite/internal/richtext"
)

// Env carries what a strategy needs beyond the field itself.
type Env struct {
	// ImageURL maps a stored image value to a URL; nil uses the value as is.
	ImageURL func(string) string
	// Editable marks the read view as clickable.
	Editable bool
	Err      error
	Saving   bool
}

func (env Env) imageSrc(v string) string {
	if env.ImageURL == nil {
		return v
	}
	return env.ImageURL(v)
}

// Strategy renders one field type. Display is the read view; Input is the
// markup shown while editing.
type Strategy interface {
	Display(f field.EditableField, env Env) template.HTML
	Input(f field.EditableField, buffer string, env Env) template.HTML
}

var strategies = map[field.Type]Strategy{
	field.Text:     textStrategy{input: "text"},
	field.URL:      textStrategy{input: "url"},
	field.Phone:    textStrategy{input: "tel"},
	field.Email:    textStrategy{input: "email"},
	field.Textarea: textareaStrategy{},
	field.RichText: richTextStrategy{},
	field.Image:    imageStrategy{},
	field.Date:     dateStrategy{},
	field.Time:     timeStrategy{},
	field.Color:    colorStrategy{},
}

// StrategyFor returns the strategy of t, falling back to plain text.
func StrategyFor(t field.Type) Strategy {
	if s, ok := strategies[t]; ok {
		return s
	}
	return textStrategy{input: "text"}
}

// Display renders the read view of f without an editor, as used on the
// published page.
func Display(f field.EditableField, imageURL func(string) string) template.HTML {
	return StrategyFor(f.Type).Display(f, Env{ImageURL: imageURL})
}

const markup = `
{{define "empty"}}{{if .Env.Editable}}<button type="button" class="field-empty" data-field="{{.Field.ID}}">{{cta .Field}}</button>{{end}}{{end}}

{{define "shell-open"}}<span class="field field-{{.Field.Type}}"{{if .Env.Editable}} data-field="{{.Field.ID}}" tabindex="0"{{end}}>{{end}}

{{define "text"}}{{template "shell-open" .}}{{if eq .Field.Type "email"}}<a href="mailto:{{.Field.Value}}">{{.Field.Value}}</a>{{else if eq .Field.Type "url"}}<a href="{{.Field.Value}}" rel="noopener">{{.Field.Value}}</a>{{else if eq .Field.Type "phone"}}<a href="tel:{{.Field.Value}}">{{.Field.Value}}</a>{{else}}{{.Field.Value}}{{end}}</span>{{end}}

{{define "textarea"}}{{template "shell-open" .}}{{range $i, $line := lines .Field.Value}}{{if $i}}<br>{{end}}{{$line}}{{end}}</span>{{end}}

{{define "rich"}}<div class="field field-richText"{{if .Env.Editable}} data-field="{{.Field.ID}}" tabindex="0"{{end}}>{{.HTML}}</div>{{end}}

{{define "image"}}{{template "shell-open" .}}<img src="{{.Src}}" alt="{{.Field.Label}}" loading="lazy"></span>{{end}}

{{define "date"}}{{template "shell-open" .}}<time datetime="{{.Field.Value}}">{{.Text}}</time></span>{{end}}

{{define "time"}}{{template "shell-open" .}}<time datetime="{{.Field.Value}}">{{.Text}}</time></span>{{end}}

{{define "color"}}{{template "shell-open" .}}<span class="swatch" style="background-color: {{.Field.Value}}"></span> <code>{{.Field.Value}}</code></span>{{end}}

{{define "error"}}{{with .Env.Err}}<p class="field-error" role="alert">{{message .}}</p>{{end}}{{end}}

{{define "actions"}}<span class="field-actions"><button type="button" data-action="confirm"{{if .Env.Saving}} disabled{{end}}>Save</button><button type="button" data-action="cancel"{{if .Env.Saving}} disabled{{end}}>Cancel</button></span>{{end}}

{{define "input"}}<span class="field-editor" data-field="{{.Field.ID}}"><input type="{{.Input}}" name="{{.Field.ID}}" value="{{.Buffer}}"{{if .Field.MaxLength}} maxlength="{{.Field.MaxLength}}"{{end}}{{with .Field.Placeholder}} placeholder="{{.}}"{{end}}{{if .Field.Required}} required{{end}} autofocus>{{template "error" .}}</span>{{end}}

{{define "textarea-input"}}<span class="field-editor" data-field="{{.Field.ID}}"><textarea name="{{.Field.ID}}"{{if .Field.MaxLength}} maxlength="{{.Field.MaxLength}}"{{end}}{{with .Field.Placeholder}} placeholder="{{.}}"{{end}} autofocus>{{.Buffer}}</textarea>{{template "actions" .}}{{template "error" .}}</span>{{end}}

{{define "rich-input"}}<div class="field-editor field-editor-rich" data-field="{{.Field.ID}}"><div class="toolbar" role="toolbar">{{range .Commands}}<button type="button" data-format="{{.}}">{{.}}</button>{{end}}</div><div class="rich-buffer" contenteditable="true">{{.HTML}}</div>{{template "actions" .}}{{template "error" .}}</div>{{end}}

{{define "image-input"}}<span class="field-editor" data-field="{{.Field.ID}}">{{with .Src}}<img src="{{.}}" alt="" class="preview">{{end}}<input type="file" name="{{.Field.ID}}" accept="image/*"><button type="button" data-action="cancel">Cancel</button>{{template "error" .}}</span>{{end}}

{{define "color-input"}}<span class="field-editor" data-field="{{.Field.ID}}"><input type="color" name="{{.Field.ID}}" value="{{.Buffer}}"><span class="palette">{{range .Palette}}<button type="button" class="swatch" data-pick="{{.}}" style="background-color: {{.}}"></button>{{end}}</span><button type="button" data-action="cancel">Cancel</button>{{template "error" .}}</span>{{end}}
`

var tmpl = template.Must(template.New("editor").Funcs(template.FuncMap{
	"lines": func(v string) []string { return strings.Split(v, "\n") },
	"cta":   callToAction,
	"message": func(err error) string {
		return err.Error()
	},
}).Parse(markup))

// Palette is offered by the colour picker.
var Palette = []string{"#ffffff", "#f7e8e4", "#e8c4b8", "#c9a227", "#8a9a5b", "#5b7c99", "#2f3e46", "#000000"}

type view struct {
	Field    field.EditableField
	Env      Env
	Buffer   string
	Input    string
	HTML     template.HTML
	Src      string
	Text     string
	Commands []Command
	Palette  []string
}

func execute(name string, v view) template.HTML {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return template.HTML(template.HTMLEscapeString(v.Field.Value))
	}
	return template.HTML(buf.String())
}

func callToAction(f field.EditableField) string {
	if f.Placeholder != "" {
		return f.Placeholder
	}
	if f.Label != "" {
		return "Add " + strings.ToLower(f.Label)
	}
	return "Click to add"
}

func empty(f field.EditableField, env Env) template.HTML {
	return execute("empty", view{Field: f, Env: env})
}

type textStrategy struct{ input string }

func (s textStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("text", view{Field: f, Env: env})
}

func (s textStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	return execute("input", view{Field: f, Env: env, Buffer: buffer, Input: s.input})
}

type textareaStrategy struct{}

func (textareaStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("textarea", view{Field: f, Env: env})
}

func (textareaStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	return execute("textarea-input", view{Field: f, Env: env, Buffer: buffer})
}

type richTextStrategy struct{}

var richCommands = []Command{CmdBold, CmdItalic, CmdUnderline, CmdAlignLeft, CmdAlignCenter, CmdAlignRight, CmdAlignJustify}

func (richTextStrategy) Display(f field.EditableField, env Env) template.HTML {
	clean := richtext.Sanitize(f.Value)
	if strings.TrimSpace(richtext.PlainText(clean)) == "" {
		return empty(f, env)
	}
	return execute("rich", view{Field: f, Env: env, HTML: template.HTML(clean)})
}

func (richTextStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	return execute("rich-input", view{
		Field:    f,
		Env:      env,
		HTML:     template.HTML(richtext.Sanitize(buffer)),
		Commands: richCommands,
	})
}

type imageStrategy struct{}

func (imageStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("image", view{Field: f, Env: env, Src: env.imageSrc(f.Value)})
}

func (imageStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	src := ""
	if strings.TrimSpace(buffer) != "" {
		src = env.imageSrc(buffer)
	}
	return execute("image-input", view{Field: f, Env: env, Src: src})
}

type dateStrategy struct{}

// FormatDate renders a stored date for guests; unparsable values are shown raw.
func FormatDate(v string) string {
	t, err := time.Parse(field.DateLayout, strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.Format("Monday, January 2, 2006")
}

func (dateStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("date", view{Field: f, Env: env, Text: FormatDate(f.Value)})
}

func (dateStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	return execute("input", view{Field: f, Env: env, Buffer: buffer, Input: "date"})
}

type timeStrategy struct{}

// FormatTime renders a stored 24h time as a 12h clock.
func FormatTime(v string) string {
	t, err := time.Parse(field.TimeLayout, strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.Format("3:04 PM")
}

func (timeStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("time", view{Field: f, Env: env, Text: FormatTime(f.Value)})
}

func (timeStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	return execute("input", view{Field: f, Env: env, Buffer: buffer, Input: "time"})
}

type colorStrategy struct{}

func (colorStrategy) Display(f field.EditableField, env Env) template.HTML {
	if f.IsEmpty() {
		return empty(f, env)
	}
	return execute("color", view{Field: f, Env: env})
}

func (colorStrategy) Input(f field.EditableField, buffer string, env Env) template.HTML {
	if buffer == "" {
		buffer = Palette[0]
	}
	return execute("color-input", view{Field: f, Env: env, Buffer: buffer, Palette: Palette})
}
