package render

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"wedsite/internal/editor"
	"wedsite/internal/field"
	"wedsite/internal/site"
)

// builtins 是静态分发表：每个目录类型对应一个组件。
var builtins = map[site.SectionType]Component{
	site.Hero:         ComponentFunc(renderHero),
	site.Invitation:   ComponentFunc(renderInvitation),
	site.Countdown:    ComponentFunc(renderCountdown),
	site.Story:        ComponentFunc(renderStory),
	site.Groomsmen:    ComponentFunc(renderGroomsmen),
	site.Gamification: ComponentFunc(renderGamification),
	site.RSVP:         ComponentFunc(renderRSVP),
	site.Venue:        ComponentFunc(renderVenue),
	site.Details:      ComponentFunc(renderDetails),
	site.Gallery:      ComponentFunc(renderGallery),
	site.Testimonials: ComponentFunc(renderTestimonials),
	site.Footer:       ComponentFunc(renderFooter),
}

// dataOf returns the section data as T, or fresh defaults when the section
// carries nothing usable.
func dataOf[T site.Data](p Props) T {
	if d, ok := p.Section.Data.(T); ok {
		return d
	}
	d, _ := site.NewData(p.Section.Type, nil).(T)
	return d
}

// shell is the view model shared by every section template.
type shell struct {
	ID       string
	Type     site.SectionType
	Style    template.CSS
	Editable bool
}

func shellOf(p Props) shell {
	s := shell{ID: p.Section.ID, Type: p.Section.Type, Editable: p.Editable}
	if p.Style != nil {
		s.Style = cssVarsStyle(p.Style.CSSVars)
	} else {
		vars := map[string]string{}
		if c := p.Section.Style.BackgroundColor; c != "" {
			vars["--section-bg"] = c
		}
		if c := p.Section.Style.TextColor; c != "" {
			vars["--section-fg"] = c
		}
		s.Style = cssVarsStyle(vars)
	}
	return s
}

type item struct {
	Label template.HTML
	Body  template.HTML
	Extra template.HTML
}

// groupItems lays out repeated groups; empty groups only appear while editing.
func groupItems(p Props, groups []site.Group, fallback string) []item {
	var out []item
	for i := range groups {
		g := &groups[i]
		if !p.Editable && g.Empty() {
			continue
		}
		it := item{}
		for j := range g.Fields {
			f := &g.Fields[j]
			html := p.Field(f, "")
			switch j {
			case 0:
				it.Label = html
				if it.Label == "" {
					it.Label = template.HTML(template.HTMLEscapeString(fallback))
				}
			case 1:
				it.Body = html
			default:
				it.Extra = html
			}
		}
		out = append(out, it)
	}
	return out
}

func execute(w io.Writer, name string, data any) error {
	if err := sectionTemplates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

func renderHero(w io.Writer, p Props) error {
	d := dataOf[*site.HeroData](p)
	return execute(w, "hero", map[string]any{
		"Shell":    shellOf(p),
		"Bride":    p.Field(&d.BrideName, "Bride"),
		"Groom":    p.Field(&d.GroomName, "Groom"),
		"Date":     p.Field(&d.WeddingDate, "Save the date"),
		"Tagline":  p.Field(&d.Tagline, "We're getting married"),
		"Cover":    p.Field(&d.CoverImage, ""),
		"HasCover": p.Show(&d.CoverImage),
	})
}

func renderInvitation(w io.Writer, p Props) error {
	d := dataOf[*site.InvitationData](p)
	return execute(w, "invitation", map[string]any{
		"Shell":        shellOf(p),
		"Title":        p.Field(&d.Title, "You're invited"),
		"Message":      p.Field(&d.Message, "Together with our families, we invite you to celebrate our wedding."),
		"BrideParents": p.Field(&d.BrideParents, ""),
		"GroomParents": p.Field(&d.GroomParents, ""),
		"HasParents":   p.Show(&d.BrideParents) || p.Show(&d.GroomParents),
	})
}

// Countdown states derived from the wedding date.
const (
	countdownUnknown = iota
	countdownFuture
	countdownToday
	countdownPast
)

func countdown(date string, now time.Time) (state, days int) {
	day, err := time.ParseInLocation(field.DateLayout, date, now.Location())
	if err != nil {
		return countdownUnknown, 0
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	days = int(day.Sub(today).Hours() / 24)
	switch {
	case days > 0:
		return countdownFuture, days
	case days == 0:
		return countdownToday, 0
	}
	return countdownPast, -days
}

func renderCountdown(w io.Writer, p Props) error {
	d := dataOf[*site.CountdownData](p)
	state, days := countdown(d.WeddingDate.Value, p.Now)
	return execute(w, "countdown", map[string]any{
		"Shell":   shellOf(p),
		"Title":   p.Field(&d.Title, "Counting down"),
		"Date":    p.Field(&d.WeddingDate, ""),
		"Time":    p.Field(&d.WeddingTime, ""),
		"HasTime": p.Show(&d.WeddingTime),
		"State":   state,
		"Days":    days,
	})
}

func renderStory(w io.Writer, p Props) error {
	d := dataOf[*site.StoryData](p)
	return execute(w, "story", map[string]any{
		"Shell":    shellOf(p),
		"Title":    p.Field(&d.Title, "Our story"),
		"Body":     p.Field(&d.Body, ""),
		"HasBody":  p.Show(&d.Body),
		"Photo":    p.Field(&d.Photo, ""),
		"HasPhoto": p.Show(&d.Photo),
		"MetOn":    p.Field(&d.MetOn, ""),
		"HasMetOn": p.Show(&d.MetOn),
	})
}

func renderGroomsmen(w io.Writer, p Props) error {
	d := dataOf[*site.GroomsmenData](p)
	return execute(w, "groomsmen", map[string]any{
		"Shell":   shellOf(p),
		"Title":   p.Field(&d.Title, "The groomsmen"),
		"Members": groupItems(p, d.Members, "Groomsman"),
	})
}

func renderGamification(w io.Writer, p Props) error {
	d := dataOf[*site.GamificationData](p)
	return execute(w, "gamification", map[string]any{
		"Shell":       shellOf(p),
		"Title":       p.Field(&d.Title, "How well do you know us?"),
		"Question":    p.Field(&d.Question, ""),
		"HasQuestion": p.Show(&d.Question),
		"Answer":      p.Field(&d.Answer, ""),
		"Prize":       p.Field(&d.Prize, ""),
		"HasPrize":    p.Show(&d.Prize),
	})
}

func renderRSVP(w io.Writer, p Props) error {
	d := dataOf[*site.RSVPData](p)
	deadline := ""
	if !d.Deadline.IsEmpty() {
		deadline = editor.FormatDate(d.Deadline.Value)
	}
	return execute(w, "rsvp", map[string]any{
		"Shell":       shellOf(p),
		"Title":       p.Field(&d.Title, "Will you join us?"),
		"Deadline":    p.Field(&d.Deadline, ""),
		"DeadlineTxt": deadline,
		"HasDeadline": p.Show(&d.Deadline),
		"Email":       p.Field(&d.Email, ""),
		"EmailAddr":   p.Value(&d.Email, ""),
		"HasEmail":    p.Show(&d.Email),
		"Phone":       p.Field(&d.Phone, ""),
		"HasPhone":    p.Show(&d.Phone),
		"Note":        p.Field(&d.Note, ""),
		"HasNote":     p.Show(&d.Note),
	})
}

func renderVenue(w io.Writer, p Props) error {
	d := dataOf[*site.VenueData](p)
	return execute(w, "venue", map[string]any{
		"Shell":        shellOf(p),
		"Name":         p.Field(&d.Name, "Venue to be announced"),
		"Address":      p.Field(&d.Address, ""),
		"HasAddress":   p.Show(&d.Address),
		"MapURL":       p.Field(&d.MapURL, ""),
		"HasMap":       p.Show(&d.MapURL),
		"Ceremony":     p.Field(&d.CeremonyTime, ""),
		"HasCeremony":  p.Show(&d.CeremonyTime),
		"Reception":    p.Field(&d.ReceptionTime, ""),
		"HasReception": p.Show(&d.ReceptionTime),
	})
}

func renderDetails(w io.Writer, p Props) error {
	d := dataOf[*site.DetailsData](p)
	return execute(w, "details", map[string]any{
		"Shell":       shellOf(p),
		"DressCode":   p.Field(&d.DressCode, ""),
		"HasDress":    p.Show(&d.DressCode),
		"Accent":      p.Field(&d.AccentColor, ""),
		"HasAccent":   p.Show(&d.AccentColor),
		"Registry":    p.Field(&d.RegistryURL, ""),
		"HasRegistry": p.Show(&d.RegistryURL),
		"Notes":       p.Field(&d.Notes, ""),
		"HasNotes":    p.Show(&d.Notes),
	})
}

func renderGallery(w io.Writer, p Props) error {
	d := dataOf[*site.GalleryData](p)
	return execute(w, "gallery", map[string]any{
		"Shell":  shellOf(p),
		"Title":  p.Field(&d.Title, "Moments"),
		"Photos": groupItems(p, d.Photos, ""),
	})
}

func renderTestimonials(w io.Writer, p Props) error {
	d := dataOf[*site.TestimonialsData](p)
	return execute(w, "testimonials", map[string]any{
		"Shell":   shellOf(p),
		"Title":   p.Field(&d.Title, "Kind words"),
		"Entries": groupItems(p, d.Entries, "A friend"),
	})
}

func renderFooter(w io.Writer, p Props) error {
	d := dataOf[*site.FooterData](p)
	return execute(w, "footer", map[string]any{
		"Shell":      shellOf(p),
		"Message":    p.Field(&d.Message, "Thank you for being part of our day."),
		"Email":      p.Field(&d.ContactEmail, ""),
		"HasEmail":   p.Show(&d.ContactEmail),
		"Hashtag":    p.Field(&d.Hashtag, ""),
		"HasHashtag": p.Show(&d.Hashtag),
	})
}
