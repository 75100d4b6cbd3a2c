// Package profile holds the canonical flat record a wedding site is persisted
// as, and the projections the editing surfaces derive from it.
package profile

import (
	"errors"
	"maps"
	"slices"
	"strings"
)

// Well-known record keys shared by the canvas, the form and the API.
const (
	KeyBrideName      = "bride_name"
	KeyGroomName      = "groom_name"
	KeyWeddingDate    = "wedding_date"
	KeyWeddingTime    = "wedding_time"
	KeySlug           = "slug"
	KeyTheme          = "theme"
	KeyThemeVariant   = "theme_variant"
	KeyFontFamily     = "font_family"
	KeySEOTitle       = "seo_title"
	KeySEODescription = "seo_description"
)

// LayoutPrefix marks keys that carry section layout rather than content.
const LayoutPrefix = "section."

// Record 是持久化的扁平字符串记录，也是两个编辑面共同的唯一数据来源。
type Record map[string]string

// Get returns the value for key, or "" when absent.
func (r Record) Get(key string) string {
	if r == nil {
		return ""
	}
	return r[key]
}

// Clone returns an independent copy.
func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	return maps.Clone(r)
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Merge overlays other onto a copy of r.
func (r Record) Merge(other Record) Record {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// LayoutKey builds the record key storing one layout attribute of a section.
func LayoutKey(sectionType, attr string) string {
	return LayoutPrefix + sectionType + "." + attr
}

// IsLayoutKey reports whether key belongs to section layout.
func IsLayoutKey(key string) bool {
	return strings.HasPrefix(key, LayoutPrefix)
}

// ErrIncomplete 表示记录尚未达到最小可保存集合。
var ErrIncomplete = errors.New("profile: record is incomplete")

// IncompleteError lists the required keys that are still blank.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "missing " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteError) Unwrap() error { return ErrIncomplete }

// MinimumKeys 是自动保存与显式提交共用的最小可保存字段集合。
var MinimumKeys = []string{KeyBrideName, KeyGroomName, KeyWeddingDate}

// ReadyToSave is the single predicate gating both autosave and explicit submit:
// a draft without both names and a date is never persisted.
func ReadyToSave(r Record) error {
	var missing []string
	for _, key := range MinimumKeys {
		if strings.TrimSpace(r.Get(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	return nil
}
