package render

import "html/template"

const sectionMarkup = `
{{define "open"}}<section id="{{.ID}}" class="section section-{{.Type}}{{if .Editable}} is-editable{{end}}" data-section="{{.Type}}"{{with .Style}} style="{{.}}"{{end}}>{{end}}

{{define "hero"}}{{template "open" .Shell}}
<header class="hero">
{{if .HasCover}}<div class="hero-cover">{{.Cover}}</div>{{end}}
<p class="hero-tagline">{{.Tagline}}</p>
<h1 class="hero-names"><span>{{.Bride}}</span> <span class="amp">&amp;</span> <span>{{.Groom}}</span></h1>
<p class="hero-date">{{.Date}}</p>
</header>
</section>
{{end}}

{{define "invitation"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
<div class="invitation-message">{{.Message}}</div>
{{if .HasParents}}<div class="invitation-parents"><p>{{.BrideParents}}</p><p>{{.GroomParents}}</p></div>{{end}}
</section>
{{end}}

{{define "countdown"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
<p class="countdown-date">{{.Date}}{{if .HasTime}} · {{.Time}}{{end}}</p>
{{if eq .State 1}}<p class="countdown-days"><strong>{{.Days}}</strong> {{if eq .Days 1}}day{{else}}days{{end}} to go</p>{{else if eq .State 2}}<p class="countdown-days">Today is the day!</p>{{else if eq .State 3}}<p class="countdown-days">Just married</p>{{end}}
</section>
{{end}}

{{define "story"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
{{if .HasPhoto}}<figure class="story-photo">{{.Photo}}</figure>{{end}}
{{if .HasMetOn}}<p class="story-met">We met on {{.MetOn}}</p>{{end}}
{{if .HasBody}}<div class="story-body">{{.Body}}</div>{{end}}
</section>
{{end}}

{{define "groomsmen"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
<ul class="people">{{range .Members}}
<li class="person">{{with .Extra}}<div class="person-photo">{{.}}</div>{{end}}<p class="person-name">{{.Label}}</p><p class="person-role">{{.Body}}</p></li>{{end}}
</ul>
</section>
{{end}}

{{define "gamification"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
{{if .HasQuestion}}<div class="quiz"><p class="quiz-question">{{.Question}}</p><details class="quiz-answer"><summary>Reveal the answer</summary>{{.Answer}}</details></div>{{end}}
{{if .HasPrize}}<p class="quiz-prize">{{.Prize}}</p>{{end}}
</section>
{{end}}

{{define "rsvp"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
{{if .HasDeadline}}<p class="rsvp-deadline">Please reply by {{.Deadline}}</p>{{end}}
{{if .HasNote}}<div class="rsvp-note">{{.Note}}</div>{{end}}
<p class="rsvp-contact">{{if .HasEmail}}<span>{{.Email}}</span>{{end}}{{if .HasPhone}} <span>{{.Phone}}</span>{{end}}</p>
{{with .EmailAddr}}<a class="button rsvp-button" href="mailto:{{.}}?subject=RSVP">RSVP</a>{{end}}
</section>
{{end}}

{{define "venue"}}{{template "open" .Shell}}
<h2>{{.Name}}</h2>
{{if .HasAddress}}<address>{{.Address}}</address>{{end}}
<dl class="venue-times">{{if .HasCeremony}}<dt>Ceremony</dt><dd>{{.Ceremony}}</dd>{{end}}{{if .HasReception}}<dt>Reception</dt><dd>{{.Reception}}</dd>{{end}}</dl>
{{if .HasMap}}<p class="venue-map">{{.MapURL}}</p>{{end}}
</section>
{{end}}

{{define "details"}}{{template "open" .Shell}}
<h2>Good to know</h2>
<dl class="details">{{if .HasDress}}<dt>Dress code</dt><dd>{{.DressCode}}</dd>{{end}}{{if .HasAccent}}<dt>Colour of the day</dt><dd>{{.Accent}}</dd>{{end}}{{if .HasRegistry}}<dt>Registry</dt><dd>{{.Registry}}</dd>{{end}}</dl>
{{if .HasNotes}}<div class="details-notes">{{.Notes}}</div>{{end}}
</section>
{{end}}

{{define "gallery"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
<div class="gallery">{{range .Photos}}
<figure>{{.Label}}{{with .Body}}<figcaption>{{.}}</figcaption>{{end}}</figure>{{end}}
</div>
</section>
{{end}}

{{define "testimonials"}}{{template "open" .Shell}}
<h2>{{.Title}}</h2>
{{range .Entries}}<blockquote class="testimonial">{{.Body}}<footer>{{.Label}}</footer></blockquote>
{{end}}</section>
{{end}}

{{define "footer"}}{{template "open" .Shell}}
<footer class="site-footer">
<p>{{.Message}}</p>
{{if .HasHashtag}}<p class="hashtag">{{.Hashtag}}</p>{{end}}
{{if .HasEmail}}<p class="contact">{{.Email}}</p>{{end}}
</footer>
</section>
{{end}}
`

const pageMarkup = `{{define "page-open"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{with .Description}}<meta name="description" content="{{.}}">{{end}}
{{with .Stylesheet}}<link rel="stylesheet" href="{{.}}">{{end}}
{{with .RootStyle}}<style>:root { {{.}} }</style>{{end}}
</head>
<body{{if .Editable}} class="is-editing"{{end}}>
<main>
{{end}}`

var (
	sectionTemplates = template.Must(template.New("sections").Parse(sectionMarkup))
	pageTemplates    = template.Must(template.New("page").Parse(pageMarkup))
)
