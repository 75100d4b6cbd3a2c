package render

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedsite/internal/editor"
	"wedsite/internal/profile"
	"wedsite/internal/site"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sample() *site.Template {
	return site.Build(profile.Record{
		profile.KeyBrideName:   "Maria",
		profile.KeyGroomName:   "João",
		profile.KeyWeddingDate: "2026-06-20",
		"venue_name":           "Quinta do Lago",
		"groomsman_1_name":     "Pedro",
		"groomsman_1_role":     "Best man",
		"rsvp_email":           "rsvp@example.com",
	})
}

func TestEveryCatalogTypeHasComponent(t *testing.T) {
	r := New(quietLogger())
	for _, typ := range site.Catalog() {
		_, ok := r.Component(typ)
		assert.True(t, ok, "no component for %s", typ)
	}
}

func TestRenderSkipsDisabledAndKeepsOrder(t *testing.T) {
	tpl := sample()
	require.NoError(t, tpl.SetEnabled(site.Story, false))
	require.NoError(t, tpl.Move(site.Venue, 0))

	var buf bytes.Buffer
	res, err := New(quietLogger()).Render(context.Background(), &buf, tpl, Options{})
	require.NoError(t, err)

	assert.NotContains(t, res.Rendered, site.Story)
	assert.NotContains(t, buf.String(), `data-section="story"`)
	assert.Equal(t, site.Venue, res.Rendered[0])
	assert.Len(t, res.Rendered, len(site.Catalog())-1)

	s, ok := tpl.Section(site.Story)
	require.True(t, ok, "disabled section stays in the template")
	assert.False(t, s.Enabled)

	out := buf.String()
	assert.Less(t, strings.Index(out, `data-section="venue"`), strings.Index(out, `data-section="hero"`))
}

func TestRenderUnknownTypeIsSkipped(t *testing.T) {
	tpl := sample()
	tpl.Sections = append(tpl.Sections, &site.Section{ID: "x", Type: "carousel", Order: 99, Enabled: true})

	var logs bytes.Buffer
	r := New(slog.New(slog.NewTextHandler(&logs, nil)))
	var buf bytes.Buffer
	res, err := r.Render(context.Background(), &buf, tpl, Options{})
	require.NoError(t, err)
	assert.Equal(t, []site.SectionType{"carousel"}, res.Skipped)
	assert.Contains(t, logs.String(), "carousel")
	assert.Contains(t, buf.String(), `data-section="footer"`)
}

func TestRenderReadOnlyUsesFallbacks(t *testing.T) {
	tpl := site.Build(nil)
	var buf bytes.Buffer
	_, err := New(quietLogger()).Render(context.Background(), &buf, tpl, Options{})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Bride")
	assert.Contains(t, out, "Venue to be announced")
	assert.NotContains(t, out, "field-empty")
	assert.NotContains(t, out, "class=\"person\"", "empty groups are hidden on the public page")
}

func TestRenderEditableUsesEditors(t *testing.T) {
	var saved []string
	save := func(_ context.Context, id, v string) error {
		saved = append(saved, id+"="+v)
		return nil
	}
	editors := editor.NewSet(save)
	tpl := sample()

	var buf bytes.Buffer
	_, err := New(quietLogger()).Render(context.Background(), &buf, tpl, Options{Editable: true, Editors: editors})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, `data-field="bride_name"`)
	assert.Contains(t, out, "field-empty", "blank fields offer a call to action")
	assert.Contains(t, out, "is-editable")

	e, ok := editors.Get("venue_name")
	require.True(t, ok)
	require.NoError(t, e.Activate())
	require.NoError(t, e.Input("Palácio"))
	require.NoError(t, e.Key(context.Background(), editor.KeyEnter))
	assert.Equal(t, []string{"venue_name=Palácio"}, saved)
}

func TestRenderEditableBuildsEditorsFromCallback(t *testing.T) {
	var buf bytes.Buffer
	_, err := New(quietLogger()).Render(context.Background(), &buf, sample(), Options{
		Editable:      true,
		OnFieldUpdate: func(context.Context, string, string) error { return nil },
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `data-field="venue_name"`)
}

func TestCountdown(t *testing.T) {
	now := time.Date(2026, 6, 10, 18, 0, 0, 0, time.UTC)
	state, days := countdown("2026-06-20", now)
	assert.Equal(t, countdownFuture, state)
	assert.Equal(t, 10, days)

	state, _ = countdown("2026-06-10", now)
	assert.Equal(t, countdownToday, state)
	state, _ = countdown("2026-06-01", now)
	assert.Equal(t, countdownPast, state)
	state, _ = countdown("", now)
	assert.Equal(t, countdownUnknown, state)

	var buf bytes.Buffer
	_, err := New(quietLogger()).Render(context.Background(), &buf, sample(), Options{Now: func() time.Time { return now }})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "<strong>10</strong> days to go")
}

func TestRenderHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(quietLogger()).Render(ctx, io.Discard, sample(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderPageWithTheme(t *testing.T) {
	styles, err := NewThemeStyles("")
	require.NoError(t, err)
	tpl := sample()
	tpl.Global.Theme = "garden"
	sec, _ := tpl.Section(site.Hero)
	sec.Style.BackgroundColor = "#fafafa"

	bound, err := styles.Bind(tpl.Global)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = New(quietLogger()).RenderPage(context.Background(), &buf, tpl, Options{Styles: bound})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "<title>Maria &amp; João</title>")
	assert.Contains(t, out, "--color-accent: #8a9a5b")
	assert.Contains(t, out, "--section-bg: #fafafa")
	assert.Contains(t, out, `href="/static/themes/garden/garden.css"`)
	assert.True(t, strings.HasSuffix(out, "</html>\n"))
}
