package site

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"wedsite/internal/field"
	"wedsite/internal/profile"
)

// Layout attribute names used in section layout keys.
const (
	attrOrder   = "order"
	attrEnabled = "enabled"
	attrBG      = "bg"
	attrFG      = "fg"
)

var (
	ErrUnknownSection = errors.New("site: unknown section")
	ErrBadPosition    = errors.New("site: position out of range")
)

// Global holds page-wide display settings.
type Global struct {
	Theme      string `json:"theme"`
	Variant    string `json:"variant"`
	FontFamily string `json:"fontFamily"`
}

// SEO holds the page metadata and the public slug.
type SEO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
}

// Template 是画布侧的投影：有序分区 + 全局设置 + SEO。
// extra 保存记录中画布不认识的键，Record() 时原样写回。
type Template struct {
	Sections []*Section `json:"sections"`
	Global   Global     `json:"globalSettings"`
	SEO      SEO        `json:"seo"`

	extra profile.Record
}

// Build is the factory turning a profile record into a Template: one section
// per catalog type, in the order stored in the record (catalog order for
// anything unspecified), with unique sequential orders.
func Build(rec profile.Record) *Template {
	tpl := &Template{
		Global: Global{
			Theme:      rec.Get(profile.KeyTheme),
			Variant:    rec.Get(profile.KeyThemeVariant),
			FontFamily: rec.Get(profile.KeyFontFamily),
		},
		SEO: SEO{
			Title:       rec.Get(profile.KeySEOTitle),
			Description: rec.Get(profile.KeySEODescription),
			Slug:        rec.Get(profile.KeySlug),
		},
	}

	type ranked struct {
		sec  *Section
		rank int
		idx  int
	}
	list := make([]ranked, 0, len(Catalog()))
	for i, t := range Catalog() {
		sec := &Section{
			ID:      string(t),
			Type:    t,
			Enabled: rec.Get(profile.LayoutKey(string(t), attrEnabled)) != "false",
			Style: Style{
				BackgroundColor: rec.Get(profile.LayoutKey(string(t), attrBG)),
				TextColor:       rec.Get(profile.LayoutKey(string(t), attrFG)),
			},
			Data: NewData(t, rec),
		}
		rank := i
		if v, err := strconv.Atoi(rec.Get(profile.LayoutKey(string(t), attrOrder))); err == nil {
			rank = v
		}
		list = append(list, ranked{sec: sec, rank: rank, idx: i})
	}
	slices.SortStableFunc(list, func(a, b ranked) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})
	for i, r := range list {
		r.sec.Order = i
		tpl.Sections = append(tpl.Sections, r.sec)
	}

	known := make(map[string]struct{})
	for _, f := range tpl.fields() {
		known[f.ID] = struct{}{}
	}
	tpl.extra = profile.Record{}
	for k, v := range rec {
		if _, ok := known[k]; ok || isGlobalKey(k) || profile.IsLayoutKey(k) {
			continue
		}
		tpl.extra[k] = v
	}
	return tpl
}

func isGlobalKey(k string) bool {
	switch k {
	case profile.KeyTheme, profile.KeyThemeVariant, profile.KeyFontFamily,
		profile.KeySEOTitle, profile.KeySEODescription, profile.KeySlug:
		return true
	}
	return false
}

// Record projects the template back into the flat record. Disabled sections
// keep their content and layout so a round trip preserves them.
func (t *Template) Record() profile.Record {
	rec := t.extra.Clone()
	for _, s := range t.Sections {
		for _, f := range s.Fields() {
			rec[f.ID] = f.Value
		}
		key := string(s.Type)
		rec[profile.LayoutKey(key, attrOrder)] = strconv.Itoa(s.Order)
		rec[profile.LayoutKey(key, attrEnabled)] = strconv.FormatBool(s.Enabled)
		if s.Style.BackgroundColor != "" {
			rec[profile.LayoutKey(key, attrBG)] = s.Style.BackgroundColor
		}
		if s.Style.TextColor != "" {
			rec[profile.LayoutKey(key, attrFG)] = s.Style.TextColor
		}
	}
	rec[profile.KeyTheme] = t.Global.Theme
	rec[profile.KeyThemeVariant] = t.Global.Variant
	rec[profile.KeyFontFamily] = t.Global.FontFamily
	rec[profile.KeySEOTitle] = t.SEO.Title
	rec[profile.KeySEODescription] = t.SEO.Description
	rec[profile.KeySlug] = t.SEO.Slug
	return rec
}

func (t *Template) fields() []*field.EditableField {
	var out []*field.EditableField
	for _, s := range t.Sections {
		out = append(out, s.Fields()...)
	}
	return out
}

// Images returns every non-empty image field, once per id, in render order.
func (t *Template) Images() []*field.EditableField {
	seen := make(map[string]bool)
	var out []*field.EditableField
	for _, s := range t.Ordered() {
		for _, f := range s.Fields() {
			if f.Type != field.Image || f.IsEmpty() || seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	return out
}

// Section returns the section of the given type.
func (t *Template) Section(typ SectionType) (*Section, bool) {
	for _, s := range t.Sections {
		if s.Type == typ {
			return s, true
		}
	}
	return nil, false
}

// Field returns the first field with the given id across all sections.
func (t *Template) Field(id string) (*field.EditableField, bool) {
	for _, f := range t.fields() {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// SetValue writes value to every occurrence of id. Shared fields such as
// wedding_date live in more than one section. Keys the canvas does not lay
// out are kept aside so Record still carries them. It reports whether
// anything changed.
func (t *Template) SetValue(id, value string) bool {
	changed := false
	found := false
	for _, f := range t.fields() {
		if f.ID != id {
			continue
		}
		found = true
		if f.Value != value {
			f.Value = value
			changed = true
		}
	}
	if found {
		return changed
	}
	var target *string
	switch id {
	case profile.KeyTheme:
		target = &t.Global.Theme
	case profile.KeyThemeVariant:
		target = &t.Global.Variant
	case profile.KeyFontFamily:
		target = &t.Global.FontFamily
	case profile.KeySEOTitle:
		target = &t.SEO.Title
	case profile.KeySEODescription:
		target = &t.SEO.Description
	case profile.KeySlug:
		target = &t.SEO.Slug
	}
	if target != nil {
		if *target == value {
			return false
		}
		*target = value
		return true
	}
	if profile.IsLayoutKey(id) {
		return false
	}
	if t.extra == nil {
		t.extra = profile.Record{}
	}
	if cur, ok := t.extra[id]; ok && cur == value {
		return false
	}
	t.extra[id] = value
	return true
}

// Ordered returns the sections sorted by Order, disabled ones included.
func (t *Template) Ordered() []*Section {
	out := slices.Clone(t.Sections)
	slices.SortStableFunc(out, func(a, b *Section) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// SetEnabled soft-disables or re-enables a section; its data is kept.
func (t *Template) SetEnabled(typ SectionType, enabled bool) error {
	s, ok := t.Section(typ)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSection, typ)
	}
	s.Enabled = enabled
	return nil
}

// Move places the section at position pos in render order and renumbers the
// others so orders stay unique and sequential.
func (t *Template) Move(typ SectionType, pos int) error {
	ordered := t.Ordered()
	idx := slices.IndexFunc(ordered, func(s *Section) bool { return s.Type == typ })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSection, typ)
	}
	if pos < 0 || pos >= len(ordered) {
		return fmt.Errorf("%w: %d", ErrBadPosition, pos)
	}
	sec := ordered[idx]
	ordered = slices.Delete(ordered, idx, idx+1)
	ordered = slices.Insert(ordered, pos, sec)
	for i, s := range ordered {
		s.Order = i
	}
	return nil
}

// Clone returns an independent copy built from the current record.
func (t *Template) Clone() *Template {
	return Build(t.Record())
}
