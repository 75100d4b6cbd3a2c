package site

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"wedsite/internal/field"
	"wedsite/internal/profile"
)

// fieldSpec 描述目录中某个字段的静态属性，Build 时结合记录生成 EditableField。
type fieldSpec struct {
	id          string
	typ         field.Type
	label       string
	placeholder string
	maxLength   int
	required    bool
	validate    field.ValidateFunc
}

func (s fieldSpec) build(rec profile.Record) field.EditableField {
	return s.buildAs(s.id, rec)
}

func (s fieldSpec) buildAs(id string, rec profile.Record) field.EditableField {
	return field.EditableField{
		ID:          id,
		Type:        s.typ,
		Value:       rec.Get(id),
		Required:    s.required,
		MaxLength:   s.maxLength,
		Label:       s.label,
		Placeholder: s.placeholder,
		Validate:    s.validate,
	}
}

// groupSpec describes a repeated group. Field ids are <prefix>_<n>_<suffix>,
// 1-based; the fieldSpec ids of a group hold only the suffix. A group shows
// slots members by default and grows with the record up to maxSlots.
type groupSpec struct {
	prefix   string
	label    string
	slots    int
	maxSlots int
	fields   []fieldSpec
}

// ErrGroupOverflow marks a record key addressing a group member past its limit.
var ErrGroupOverflow = errors.New("group member out of range")

// GroupFieldID builds the record key of one field of the n-th group (1-based).
func GroupFieldID(prefix string, n int, suffix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, n, suffix)
}

func (g groupSpec) build(rec profile.Record) []Group {
	n := g.slots
	// 记录里可能有超过默认槽位的成员，上限内全部保留。
	for k := range rec {
		if i, ok := g.index(k); ok && i <= g.maxSlots && i > n {
			n = i
		}
	}
	groups := make([]Group, 0, n)
	for i := 1; i <= n; i++ {
		grp := Group{ID: fmt.Sprintf("%s_%d", g.prefix, i), Label: fmt.Sprintf("%s %d", g.label, i)}
		for _, f := range g.fields {
			grp.Fields = append(grp.Fields, f.buildAs(GroupFieldID(g.prefix, i, f.id), rec))
		}
		groups = append(groups, grp)
	}
	return groups
}

// index reports the member number addressed by key, if key is a field of g.
func (g groupSpec) index(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, g.prefix+"_")
	if !ok {
		return 0, false
	}
	idx, suffix, ok := strings.Cut(rest, "_")
	if !ok || !g.hasField(suffix) {
		return 0, false
	}
	i, err := strconv.Atoi(idx)
	if err != nil {
		// 数字过大也在这里，按越界处理。
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return g.maxSlots + 1, true
		}
		return 0, false
	}
	return i, true
}

func (g groupSpec) hasField(suffix string) bool {
	for _, f := range g.fields {
		if f.id == suffix {
			return true
		}
	}
	return false
}

func hashtag(v string) error {
	if strings.ContainsAny(v, " \t") {
		return errors.New("Hashtag cannot contain spaces")
	}
	if !strings.HasPrefix(v, "#") {
		return errors.New("Hashtag must start with #")
	}
	return nil
}

var (
	brideName   = fieldSpec{id: profile.KeyBrideName, typ: field.Text, label: "Bride's name", placeholder: "Add the bride's name", maxLength: 60, required: true}
	groomName   = fieldSpec{id: profile.KeyGroomName, typ: field.Text, label: "Groom's name", placeholder: "Add the groom's name", maxLength: 60, required: true}
	weddingDate = fieldSpec{id: profile.KeyWeddingDate, typ: field.Date, label: "Wedding date", placeholder: "Pick the date", required: true}
	weddingTime = fieldSpec{id: profile.KeyWeddingTime, typ: field.Time, label: "Ceremony starts", placeholder: "Pick a time"}

	groomsmanGroup = groupSpec{prefix: "groomsman", label: "Groomsman", slots: 4, maxSlots: 12, fields: []fieldSpec{
		{id: "name", typ: field.Text, label: "Name", placeholder: "Add a name", maxLength: 60},
		{id: "role", typ: field.Text, label: "Role", placeholder: "Best man, brother…", maxLength: 40},
		{id: "photo", typ: field.Image, label: "Photo", placeholder: "Upload a photo"},
	}}
	galleryGroup = groupSpec{prefix: "gallery", label: "Photo", slots: 6, maxSlots: 24, fields: []fieldSpec{
		{id: "image", typ: field.Image, label: "Image", placeholder: "Upload a photo"},
		{id: "caption", typ: field.Text, label: "Caption", placeholder: "Add a caption", maxLength: 120},
	}}
	testimonialGroup = groupSpec{prefix: "testimonial", label: "Message", slots: 3, maxSlots: 12, fields: []fieldSpec{
		{id: "author", typ: field.Text, label: "From", placeholder: "Who is it from?", maxLength: 60},
		{id: "quote", typ: field.Textarea, label: "Message", placeholder: "Add a kind word", maxLength: 500},
	}}
)

var groupSpecs = []groupSpec{groomsmanGroup, galleryGroup, testimonialGroup}

// CheckGroups rejects keys that address a group member below 1 or past the
// group's limit. Build ignores such keys; saving them is refused.
func CheckGroups(rec profile.Record) error {
	var bad []string
	for k := range rec {
		for _, g := range groupSpecs {
			if i, ok := g.index(k); ok && (i < 1 || i > g.maxSlots) {
				bad = append(bad, k)
			}
		}
	}
	if len(bad) == 0 {
		return nil
	}
	slices.Sort(bad)
	return fmt.Errorf("%w: %s", ErrGroupOverflow, strings.Join(bad, ", "))
}

// builders 是 SectionType 到数据工厂的静态表，目录中每个类型都必须出现。
var builders = map[SectionType]func(profile.Record) Data{
	Hero: func(r profile.Record) Data {
		return &HeroData{
			BrideName:   brideName.build(r),
			GroomName:   groomName.build(r),
			WeddingDate: weddingDate.build(r),
			Tagline:     fieldSpec{id: "hero_tagline", typ: field.Text, label: "Tagline", placeholder: "We're getting married!", maxLength: 120}.build(r),
			CoverImage:  fieldSpec{id: "hero_image", typ: field.Image, label: "Cover photo", placeholder: "Upload a cover photo"}.build(r),
		}
	},
	Invitation: func(r profile.Record) Data {
		return &InvitationData{
			Title:        fieldSpec{id: "invitation_title", typ: field.Text, label: "Title", placeholder: "You're invited", maxLength: 80}.build(r),
			Message:      fieldSpec{id: "invitation_message", typ: field.RichText, label: "Invitation", placeholder: "Write your invitation", maxLength: 1200}.build(r),
			BrideParents: fieldSpec{id: "bride_parents", typ: field.Text, label: "Bride's parents", placeholder: "Add the bride's parents", maxLength: 120}.build(r),
			GroomParents: fieldSpec{id: "groom_parents", typ: field.Text, label: "Groom's parents", placeholder: "Add the groom's parents", maxLength: 120}.build(r),
		}
	},
	Countdown: func(r profile.Record) Data {
		return &CountdownData{
			Title:       fieldSpec{id: "countdown_title", typ: field.Text, label: "Title", placeholder: "Counting down", maxLength: 80}.build(r),
			WeddingDate: weddingDate.build(r),
			WeddingTime: weddingTime.build(r),
		}
	},
	Story: func(r profile.Record) Data {
		return &StoryData{
			Title: fieldSpec{id: "story_title", typ: field.Text, label: "Title", placeholder: "Our story", maxLength: 80}.build(r),
			Body:  fieldSpec{id: "story_body", typ: field.RichText, label: "Story", placeholder: "Tell guests how you met", maxLength: 4000}.build(r),
			Photo: fieldSpec{id: "story_photo", typ: field.Image, label: "Photo", placeholder: "Upload a photo"}.build(r),
			MetOn: fieldSpec{id: "story_met_on", typ: field.Date, label: "We met on", placeholder: "Pick the date"}.build(r),
		}
	},
	Groomsmen: func(r profile.Record) Data {
		return &GroomsmenData{
			Title:   fieldSpec{id: "groomsmen_title", typ: field.Text, label: "Title", placeholder: "The groomsmen", maxLength: 80}.build(r),
			Members: groomsmanGroup.build(r),
		}
	},
	Gamification: func(r profile.Record) Data {
		return &GamificationData{
			Title:    fieldSpec{id: "game_title", typ: field.Text, label: "Title", placeholder: "How well do you know us?", maxLength: 80}.build(r),
			Question: fieldSpec{id: "game_question", typ: field.Text, label: "Question", placeholder: "Ask guests a question", maxLength: 200}.build(r),
			Answer:   fieldSpec{id: "game_answer", typ: field.Text, label: "Answer", placeholder: "The right answer", maxLength: 200}.build(r),
			Prize:    fieldSpec{id: "game_prize", typ: field.Textarea, label: "Prize", placeholder: "What do winners get?", maxLength: 300}.build(r),
		}
	},
	RSVP: func(r profile.Record) Data {
		return &RSVPData{
			Title:    fieldSpec{id: "rsvp_title", typ: field.Text, label: "Title", placeholder: "Will you join us?", maxLength: 80}.build(r),
			Deadline: fieldSpec{id: "rsvp_deadline", typ: field.Date, label: "Reply by", placeholder: "Pick a deadline"}.build(r),
			Email:    fieldSpec{id: "rsvp_email", typ: field.Email, label: "Reply email", placeholder: "rsvp@example.com", maxLength: 120}.build(r),
			Phone:    fieldSpec{id: "rsvp_phone", typ: field.Phone, label: "Reply phone", placeholder: "+1 555 0100", maxLength: 30}.build(r),
			Note:     fieldSpec{id: "rsvp_note", typ: field.Textarea, label: "Note", placeholder: "Anything guests should know", maxLength: 500}.build(r),
		}
	},
	Venue: func(r profile.Record) Data {
		return &VenueData{
			Name:          fieldSpec{id: "venue_name", typ: field.Text, label: "Venue", placeholder: "Add the venue", maxLength: 120}.build(r),
			Address:       fieldSpec{id: "venue_address", typ: field.Textarea, label: "Address", placeholder: "Add the address", maxLength: 300}.build(r),
			MapURL:        fieldSpec{id: "venue_map_url", typ: field.URL, label: "Map link", placeholder: "https://maps.example.com/…", maxLength: 500}.build(r),
			CeremonyTime:  fieldSpec{id: "ceremony_time", typ: field.Time, label: "Ceremony", placeholder: "Pick a time"}.build(r),
			ReceptionTime: fieldSpec{id: "reception_time", typ: field.Time, label: "Reception", placeholder: "Pick a time"}.build(r),
		}
	},
	Details: func(r profile.Record) Data {
		return &DetailsData{
			DressCode:   fieldSpec{id: "dress_code", typ: field.Text, label: "Dress code", placeholder: "Formal, garden party…", maxLength: 80}.build(r),
			AccentColor: fieldSpec{id: "accent_color", typ: field.Color, label: "Accent colour", placeholder: "Pick a colour"}.build(r),
			RegistryURL: fieldSpec{id: "registry_url", typ: field.URL, label: "Registry", placeholder: "https://…", maxLength: 500}.build(r),
			Notes:       fieldSpec{id: "details_notes", typ: field.RichText, label: "Notes", placeholder: "Parking, kids, accommodation…", maxLength: 2000}.build(r),
		}
	},
	Gallery: func(r profile.Record) Data {
		return &GalleryData{
			Title:  fieldSpec{id: "gallery_title", typ: field.Text, label: "Title", placeholder: "Moments", maxLength: 80}.build(r),
			Photos: galleryGroup.build(r),
		}
	},
	Testimonials: func(r profile.Record) Data {
		return &TestimonialsData{
			Title:   fieldSpec{id: "testimonials_title", typ: field.Text, label: "Title", placeholder: "Kind words", maxLength: 80}.build(r),
			Entries: testimonialGroup.build(r),
		}
	},
	Footer: func(r profile.Record) Data {
		return &FooterData{
			Message:      fieldSpec{id: "footer_message", typ: field.Textarea, label: "Closing message", placeholder: "Thank you for being part of our day", maxLength: 300}.build(r),
			ContactEmail: fieldSpec{id: "contact_email", typ: field.Email, label: "Contact email", placeholder: "us@example.com", maxLength: 120}.build(r),
			Hashtag:      fieldSpec{id: "hashtag", typ: field.Text, label: "Hashtag", placeholder: "#OurBigDay", maxLength: 40, validate: hashtag}.build(r),
		}
	},
}

// NewData builds the data of one section type from rec. It returns nil for a
// type outside the catalog.
func NewData(t SectionType, rec profile.Record) Data {
	build, ok := builders[t]
	if !ok {
		return nil
	}
	return build(rec)
}
