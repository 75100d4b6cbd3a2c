package site

import "wedsite/internal/field"

// Data is the per-section field set. It is a closed union: only the types in
// this file implement it, one per SectionType.
type Data interface {
	Kind() SectionType
	Fields() []*field.EditableField
	Groups() []*Group
	sectionData()
}

// Group 是分区内重复出现的一组字段，例如伴郎成员或相册照片。
type Group struct {
	ID     string                `json:"id"`
	Label  string                `json:"label"`
	Fields []field.EditableField `json:"fields"`
}

// Field returns the group's field with the given id suffix or full id.
func (g *Group) Field(id string) (*field.EditableField, bool) {
	for i := range g.Fields {
		if g.Fields[i].ID == id {
			return &g.Fields[i], true
		}
	}
	return nil, false
}

// Empty reports whether every field of the group is blank.
func (g *Group) Empty() bool {
	for _, f := range g.Fields {
		if !f.IsEmpty() {
			return false
		}
	}
	return true
}

func groupPtrs(groups []Group) []*Group {
	out := make([]*Group, len(groups))
	for i := range groups {
		out[i] = &groups[i]
	}
	return out
}

type HeroData struct {
	BrideName   field.EditableField `json:"brideName"`
	GroomName   field.EditableField `json:"groomName"`
	WeddingDate field.EditableField `json:"weddingDate"`
	Tagline     field.EditableField `json:"tagline"`
	CoverImage  field.EditableField `json:"coverImage"`
}

func (*HeroData) Kind() SectionType { return Hero }
func (d *HeroData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.BrideName, &d.GroomName, &d.WeddingDate, &d.Tagline, &d.CoverImage}
}
func (*HeroData) Groups() []*Group { return nil }
func (*HeroData) sectionData()     {}

type InvitationData struct {
	Title        field.EditableField `json:"title"`
	Message      field.EditableField `json:"message"`
	BrideParents field.EditableField `json:"brideParents"`
	GroomParents field.EditableField `json:"groomParents"`
}

func (*InvitationData) Kind() SectionType { return Invitation }
func (d *InvitationData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Title, &d.Message, &d.BrideParents, &d.GroomParents}
}
func (*InvitationData) Groups() []*Group { return nil }
func (*InvitationData) sectionData()     {}

type CountdownData struct {
	Title       field.EditableField `json:"title"`
	WeddingDate field.EditableField `json:"weddingDate"`
	WeddingTime field.EditableField `json:"weddingTime"`
}

func (*CountdownData) Kind() SectionType { return Countdown }
func (d *CountdownData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Title, &d.WeddingDate, &d.WeddingTime}
}
func (*CountdownData) Groups() []*Group { return nil }
func (*CountdownData) sectionData()     {}

type StoryData struct {
	Title field.EditableField `json:"title"`
	Body  field.EditableField `json:"body"`
	Photo field.EditableField `json:"photo"`
	MetOn field.EditableField `json:"metOn"`
}

func (*StoryData) Kind() SectionType { return Story }
func (d *StoryData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Title, &d.Body, &d.Photo, &d.MetOn}
}
func (*StoryData) Groups() []*Group { return nil }
func (*StoryData) sectionData()     {}

// GroomsmenData 每个成员是一个 Group：name / role / photo。
type GroomsmenData struct {
	Title   field.EditableField `json:"title"`
	Members []Group             `json:"members"`
}

func (*GroomsmenData) Kind() SectionType                { return Groomsmen }
func (d *GroomsmenData) Fields() []*field.EditableField { return []*field.EditableField{&d.Title} }
func (d *GroomsmenData) Groups() []*Group               { return groupPtrs(d.Members) }
func (*GroomsmenData) sectionData()                     {}

// GamificationData is the couple trivia block.
type GamificationData struct {
	Title    field.EditableField `json:"title"`
	Question field.EditableField `json:"question"`
	Answer   field.EditableField `json:"answer"`
	Prize    field.EditableField `json:"prize"`
}

func (*GamificationData) Kind() SectionType { return Gamification }
func (d *GamificationData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Title, &d.Question, &d.Answer, &d.Prize}
}
func (*GamificationData) Groups() []*Group { return nil }
func (*GamificationData) sectionData()     {}

type RSVPData struct {
	Title    field.EditableField `json:"title"`
	Deadline field.EditableField `json:"deadline"`
	Email    field.EditableField `json:"email"`
	Phone    field.EditableField `json:"phone"`
	Note     field.EditableField `json:"note"`
}

func (*RSVPData) Kind() SectionType { return RSVP }
func (d *RSVPData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Title, &d.Deadline, &d.Email, &d.Phone, &d.Note}
}
func (*RSVPData) Groups() []*Group { return nil }
func (*RSVPData) sectionData()     {}

type VenueData struct {
	Name          field.EditableField `json:"name"`
	Address       field.EditableField `json:"address"`
	MapURL        field.EditableField `json:"mapUrl"`
	CeremonyTime  field.EditableField `json:"ceremonyTime"`
	ReceptionTime field.EditableField `json:"receptionTime"`
}

func (*VenueData) Kind() SectionType { return Venue }
func (d *VenueData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Name, &d.Address, &d.MapURL, &d.CeremonyTime, &d.ReceptionTime}
}
func (*VenueData) Groups() []*Group { return nil }
func (*VenueData) sectionData()     {}

type DetailsData struct {
	DressCode   field.EditableField `json:"dressCode"`
	AccentColor field.EditableField `json:"accentColor"`
	RegistryURL field.EditableField `json:"registryUrl"`
	Notes       field.EditableField `json:"notes"`
}

func (*DetailsData) Kind() SectionType { return Details }
func (d *DetailsData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.DressCode, &d.AccentColor, &d.RegistryURL, &d.Notes}
}
func (*DetailsData) Groups() []*Group { return nil }
func (*DetailsData) sectionData()     {}

type GalleryData struct {
	Title  field.EditableField `json:"title"`
	Photos []Group             `json:"photos"`
}

func (*GalleryData) Kind() SectionType                { return Gallery }
func (d *GalleryData) Fields() []*field.EditableField { return []*field.EditableField{&d.Title} }
func (d *GalleryData) Groups() []*Group               { return groupPtrs(d.Photos) }
func (*GalleryData) sectionData()                     {}

type TestimonialsData struct {
	Title   field.EditableField `json:"title"`
	Entries []Group             `json:"entries"`
}

func (*TestimonialsData) Kind() SectionType                { return Testimonials }
func (d *TestimonialsData) Fields() []*field.EditableField { return []*field.EditableField{&d.Title} }
func (d *TestimonialsData) Groups() []*Group               { return groupPtrs(d.Entries) }
func (*TestimonialsData) sectionData()                     {}

type FooterData struct {
	Message      field.EditableField `json:"message"`
	ContactEmail field.EditableField `json:"contactEmail"`
	Hashtag      field.EditableField `json:"hashtag"`
}

func (*FooterData) Kind() SectionType { return Footer }
func (d *FooterData) Fields() []*field.EditableField {
	return []*field.EditableField{&d.Message, &d.ContactEmail, &d.Hashtag}
}
func (*FooterData) Groups() []*Group { return nil }
func (*FooterData) sectionData()     {}
