// Package richtext models the formatted content committed by rich text fields.
// A document is a run of text with whole-block marks and an alignment; its
// serialized form is a small, sanitised HTML fragment.
package richtext

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// Mark is an inline formatting toggle.
type Mark string

const (
	Bold      Mark = "bold"
	Italic    Mark = "italic"
	Underline Mark = "underline"
)

// Align is the block alignment.
type Align string

const (
	AlignLeft    Align = "left"
	AlignCenter  Align = "center"
	AlignRight   Align = "right"
	AlignJustify Align = "justify"
)

// Valid reports whether a is one of the supported alignments.
func (a Align) Valid() bool {
	switch a {
	case AlignLeft, AlignCenter, AlignRight, AlignJustify:
		return true
	}
	return false
}

// Doc is the editable representation of a rich text value.
type Doc struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	Align     Align
}

// Toggle flips a mark on the whole document.
func (d *Doc) Toggle(m Mark) bool {
	switch m {
	case Bold:
		d.Bold = !d.Bold
	case Italic:
		d.Italic = !d.Italic
	case Underline:
		d.Underline = !d.Underline
	default:
		return false
	}
	return true
}

// SetAlign changes the block alignment; unknown values are ignored.
func (d *Doc) SetAlign(a Align) bool {
	if !a.Valid() {
		return false
	}
	d.Align = a
	return true
}

// HTML serializes the document. An empty text yields an empty string so the
// display layer can tell "no content" apart from an empty paragraph.
func (d Doc) HTML() string {
	if strings.TrimSpace(d.Text) == "" {
		return ""
	}

	lines := strings.Split(d.Text, "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	body := strings.Join(lines, "<br>")

	if d.Underline {
		body = "<u>" + body + "</u>"
	}
	if d.Italic {
		body = "<em>" + body + "</em>"
	}
	if d.Bold {
		body = "<strong>" + body + "</strong>"
	}

	if d.Align != "" && d.Align != AlignLeft {
		return `<p style="text-align:` + string(d.Align) + `">` + body + "</p>"
	}
	return "<p>" + body + "</p>"
}

// Parse reads a stored value back into a Doc. Plain strings are accepted as
// unformatted text. Marks present anywhere in the fragment apply to the whole doc.
func Parse(value string) Doc {
	var doc Doc
	if strings.TrimSpace(value) == "" {
		return doc
	}

	var (
		text       strings.Builder
		paragraphs int
		rawText    string
	)
	tokenizer := xhtml.NewTokenizer(strings.NewReader(value))
	for {
		tt := tokenizer.Next()
		switch tt {
		case xhtml.ErrorToken:
			doc.Text = strings.TrimRight(text.String(), "\n")
			return doc
		case xhtml.TextToken:
			if rawText == "" {
				text.Write(tokenizer.Text())
			}
		case xhtml.EndTagToken:
			if name, _ := tokenizer.TagName(); string(name) == rawText {
				rawText = ""
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tok := tokenizer.Token()
			if rawTextElements[tok.Data] {
				if tt == xhtml.StartTagToken {
					rawText = tok.Data
				}
				continue
			}
			switch tok.Data {
			case "strong", "b":
				doc.Bold = true
			case "em", "i":
				doc.Italic = true
			case "u":
				doc.Underline = true
			case "br":
				text.WriteString("\n")
			case "p", "div":
				if paragraphs > 0 {
					text.WriteString("\n")
				}
				paragraphs++
				if a := alignFromStyle(attr(tok, "style")); a != "" {
					doc.Align = a
				}
			}
		}
	}
}

// rawTextElements hold script or styling, never visible text.
var rawTextElements = map[string]bool{"script": true, "style": true, "template": true, "noscript": true}

func attr(tok xhtml.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func alignFromStyle(style string) Align {
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(strings.ToLower(name)) != "text-align" {
			continue
		}
		a := Align(strings.TrimSpace(strings.ToLower(value)))
		if a.Valid() {
			return a
		}
	}
	return ""
}

// PlainText strips all markup, used for length limits and emptiness checks.
func PlainText(value string) string {
	return Parse(value).Text
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Sanitize filters a stored value down to the markup rich text fields may emit.
func Sanitize(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(sanitizer().Sanitize(trimmed))
}

func sanitizer() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.StrictPolicy()
		p.AllowElements("p", "br", "strong", "b", "em", "i", "u")
		p.AllowStyles("text-align").
			MatchingEnum("left", "center", "right", "justify").
			OnElements("p")
		policy = p
	})
	return policy
}
