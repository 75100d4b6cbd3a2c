// Package form is the structured settings surface: a grouped schema over the
// flat record, its validation, and the session-side form that edits through
// the shared store.
package form

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"wedsite/internal/field"
	"wedsite/internal/profile"
)

var validate = validator.New()

// SlugPattern restricts public site slugs.
var SlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Input describes one form input bound to a record key.
type Input struct {
	Key         string         `json:"key"`
	Label       string         `json:"label"`
	Type        field.Type     `json:"type"`
	Required    bool           `json:"required,omitempty"`
	MaxLength   int            `json:"maxLength,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []string       `json:"options,omitempty"`
	Pattern     *regexp.Regexp `json:"-"`
	PatternHint string         `json:"patternHint,omitempty"`
	// Tag is a validator/v10 tag applied to non-empty values.
	Tag string `json:"-"`
}

// Field returns the editable field contract for s holding value.
func (s Input) Field(value string) field.EditableField {
	return field.EditableField{
		ID:          s.Key,
		Type:        s.Type,
		Value:       value,
		Required:    s.Required,
		MaxLength:   s.MaxLength,
		Label:       s.Label,
		Placeholder: s.Placeholder,
	}
}

// Check validates one value against s and returns the user-facing message,
// or "" when the value is acceptable.
func (s Input) Check(value string) string {
	if err := s.Field(value).Check(value); err != nil {
		if fe, ok := err.(*field.Error); ok {
			return fe.Message
		}
		return err.Error()
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if s.Pattern != nil && !s.Pattern.MatchString(v) {
		if s.PatternHint != "" {
			return s.PatternHint
		}
		return "Invalid format."
	}
	if len(s.Options) > 0 && !slices.Contains(s.Options, v) {
		return fmt.Sprintf("Choose one of: %s.", strings.Join(s.Options, ", "))
	}
	if s.Tag != "" && validate.Var(v, s.Tag) != nil {
		return "Invalid value."
	}
	return ""
}

// Group is a titled set of inputs.
type Group struct {
	Name   string  `json:"name"`
	Inputs []Input `json:"fields"`
}

// Schema is the ordered list of form groups.
type Schema []Group

// Input finds the input bound to key.
func (s Schema) Input(key string) (Input, bool) {
	for _, g := range s {
		for _, sp := range g.Inputs {
			if sp.Key == key {
				return sp, true
			}
		}
	}
	return Input{}, false
}

// Keys returns every bound key in schema order.
func (s Schema) Keys() []string {
	var keys []string
	for _, g := range s {
		for _, sp := range g.Inputs {
			keys = append(keys, sp.Key)
		}
	}
	return keys
}

// WithOptions returns a copy of s where key only accepts opts.
func (s Schema) WithOptions(key string, opts []string) Schema {
	out := make(Schema, len(s))
	for i, g := range s {
		inputs := slices.Clone(g.Inputs)
		for j := range inputs {
			if inputs[j].Key == key {
				inputs[j].Options = slices.Clone(opts)
			}
		}
		out[i] = Group{Name: g.Name, Inputs: inputs}
	}
	return out
}

// Errors maps record keys to messages.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "form invalid: " + strings.Join(parts, "; ")
}

// Validate checks every input plus the cross-field rules. The result is empty
// when the state is valid.
func (s Schema) Validate(fs profile.FormState) Errors {
	errs := Errors{}
	for _, g := range s {
		for _, sp := range g.Inputs {
			if msg := sp.Check(fs[sp.Key]); msg != "" {
				errs[sp.Key] = msg
			}
		}
	}
	crossCheck(fs, errs)
	return errs
}

// crossCheck holds rules spanning more than one key.
func crossCheck(fs profile.FormState, errs Errors) {
	if _, bad := errs["rsvp_deadline"]; bad {
		return
	}
	deadline, err1 := time.Parse(field.DateLayout, strings.TrimSpace(fs["rsvp_deadline"]))
	wedding, err2 := time.Parse(field.DateLayout, strings.TrimSpace(fs[profile.KeyWeddingDate]))
	if err1 != nil || err2 != nil {
		return
	}
	if deadline.After(wedding) {
		errs["rsvp_deadline"] = "RSVP deadline must be on or before the wedding date."
	}
}

// Check is the save gate: the minimum subset first, then the schema.
func (s Schema) Check(rec profile.Record) error {
	if err := profile.ReadyToSave(rec); err != nil {
		return err
	}
	if errs := s.Validate(profile.FormStateOf(rec)); len(errs) > 0 {
		return errs
	}
	return nil
}

// Check gates rec against DefaultSchema.
func Check(rec profile.Record) error {
	return defaultSchema.Check(rec)
}

var defaultSchema = DefaultSchema()

// DefaultSchema returns the settings form layout.
func DefaultSchema() Schema {
	return Schema{
		{Name: "Basic Info", Inputs: []Input{
			{Key: profile.KeyBrideName, Label: "Bride's name", Type: field.Text, Required: true, MaxLength: 60},
			{Key: profile.KeyGroomName, Label: "Groom's name", Type: field.Text, Required: true, MaxLength: 60},
			{
				Key: profile.KeySlug, Label: "Site address", Type: field.Text, MaxLength: 60,
				Placeholder: "maria-and-joao",
				Pattern:     SlugPattern,
				PatternHint: "Use lowercase letters, numbers and dashes only.",
				Tag:         "min=3",
			},
			{Key: "hero_tagline", Label: "Tagline", Type: field.Text, MaxLength: 120},
		}},
		{Name: "Event Details", Inputs: []Input{
			{Key: profile.KeyWeddingDate, Label: "Wedding date", Type: field.Date, Required: true},
			{Key: profile.KeyWeddingTime, Label: "Wedding time", Type: field.Time},
			{Key: "venue_name", Label: "Venue", Type: field.Text, MaxLength: 120},
			{Key: "venue_address", Label: "Address", Type: field.Textarea, MaxLength: 300},
			{Key: "venue_map_url", Label: "Map link", Type: field.URL},
			{Key: "ceremony_time", Label: "Ceremony", Type: field.Time},
			{Key: "reception_time", Label: "Reception", Type: field.Time},
		}},
		{Name: "RSVP", Inputs: []Input{
			{Key: "rsvp_deadline", Label: "Reply by", Type: field.Date},
			{Key: "rsvp_email", Label: "RSVP email", Type: field.Email},
			{Key: "rsvp_phone", Label: "RSVP phone", Type: field.Phone},
			{Key: "rsvp_note", Label: "Note for guests", Type: field.Textarea, MaxLength: 500},
		}},
		{Name: "Appearance", Inputs: []Input{
			{Key: profile.KeyTheme, Label: "Theme", Type: field.Text, Tag: "alphanum,lowercase"},
			{Key: profile.KeyThemeVariant, Label: "Variant", Type: field.Text, Tag: "alphanum,lowercase"},
			{Key: profile.KeyFontFamily, Label: "Font", Type: field.Text, MaxLength: 80},
			{Key: "accent_color", Label: "Accent color", Type: field.Color},
		}},
		{Name: "SEO", Inputs: []Input{
			{Key: profile.KeySEOTitle, Label: "Page title", Type: field.Text, MaxLength: 70},
			{Key: profile.KeySEODescription, Label: "Description", Type: field.Textarea, MaxLength: 160},
		}},
	}
}
