// Package site is the canvas-side model of a wedding site: an ordered list of
// typed sections, each holding the typed fields its component lays out.
package site

import "wedsite/internal/field"

// SectionType 是固定的分区目录，与渲染分发表一一对应。
type SectionType string

const (
	Hero         SectionType = "hero"
	Invitation   SectionType = "invitation"
	Countdown    SectionType = "countdown"
	Story        SectionType = "story"
	Groomsmen    SectionType = "groomsmen"
	Gamification SectionType = "gamification"
	RSVP         SectionType = "rsvp"
	Venue        SectionType = "venue"
	Details      SectionType = "details"
	Gallery      SectionType = "gallery"
	Testimonials SectionType = "testimonials"
	Footer       SectionType = "footer"
)

// Catalog lists every section type in default page order.
func Catalog() []SectionType {
	return []SectionType{
		Hero, Invitation, Countdown, Story, Groomsmen, Gamification,
		RSVP, Venue, Details, Gallery, Testimonials, Footer,
	}
}

// Valid reports whether t belongs to the catalog.
func (t SectionType) Valid() bool {
	for _, known := range Catalog() {
		if known == t {
			return true
		}
	}
	return false
}

// Style holds per-section presentation overrides.
type Style struct {
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TextColor       string `json:"textColor,omitempty"`
}

// Section 是页面上的一个可排序分区。Enabled=false 只是隐藏，不会从模型中删除。
type Section struct {
	ID      string      `json:"id"`
	Type    SectionType `json:"type"`
	Order   int         `json:"order"`
	Enabled bool        `json:"enabled"`
	Style   Style       `json:"style"`
	Data    Data        `json:"data"`
}

// Fields returns every field of the section, nested group fields included.
// A section without data yields nothing.
func (s *Section) Fields() []*field.EditableField {
	if s == nil || s.Data == nil {
		return nil
	}
	out := append([]*field.EditableField(nil), s.Data.Fields()...)
	for _, g := range s.Data.Groups() {
		for i := range g.Fields {
			out = append(out, &g.Fields[i])
		}
	}
	return out
}

// Field looks a field up by id.
func (s *Section) Field(id string) (*field.EditableField, bool) {
	for _, f := range s.Fields() {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}
