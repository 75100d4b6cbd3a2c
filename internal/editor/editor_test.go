package editor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedsite/internal/field"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) save(_ context.Context, id, value string) error {
	r.calls = append(r.calls, id+"="+value)
	return r.err
}

func validSample(t field.Type) string {
	switch t {
	case field.Date:
		return "2026-06-20"
	case field.Time:
		return "16:30"
	case field.Color:
		return "#c9a227"
	case field.URL:
		return "https://example.com"
	case field.Phone:
		return "+1 555 0100"
	case field.Email:
		return "ana@example.com"
	case field.RichText:
		return "<p>hello</p>"
	}
	return "hello"
}

func TestInvalidCommitKeepsModelAndBuffer(t *testing.T) {
	ctx := context.Background()
	for _, typ := range field.Types() {
		rec := &recorder{}
		committed := validSample(typ)
		f := field.EditableField{ID: "f", Type: typ, Value: committed, Required: true}
		var seen []State
		e := New(f, rec.save, WithObserver(func(tr Transition) { seen = append(seen, tr.To) }))

		require.NoError(t, e.Activate())
		require.NoError(t, e.Input(""))
		err := e.Confirm(ctx)

		require.Error(t, err, "type %s", typ)
		assert.Equal(t, Editing, e.State(), "type %s", typ)
		assert.Equal(t, committed, e.Value(), "type %s", typ)
		assert.Error(t, e.Err())
		assert.Empty(t, rec.calls, "no save call for invalid %s", typ)
		assert.Equal(t, []State{Editing, Saving, Error, Editing}, seen, "type %s", typ)
	}
}

func TestCustomValidatorBlocksSave(t *testing.T) {
	rec := &recorder{}
	f := field.EditableField{ID: "hashtag", Type: field.Text, Value: "#a", Validate: func(v string) error {
		if !strings.HasPrefix(v, "#") {
			return errors.New("Hashtag must start with #")
		}
		return nil
	}}
	e := New(f, rec.save)
	require.NoError(t, e.Activate())
	require.NoError(t, e.Input("nohash"))
	require.Error(t, e.Key(context.Background(), KeyEnter))
	assert.Equal(t, "#a", e.Value())
	assert.Equal(t, "nohash", e.Buffer())
	assert.Empty(t, rec.calls)
}

func TestCancelRestoresCommittedValue(t *testing.T) {
	for _, typ := range field.Types() {
		committed := validSample(typ)
		e := New(field.EditableField{ID: "f", Type: typ, Value: committed}, (&recorder{}).save)
		require.NoError(t, e.Activate())
		require.NoError(t, e.Input("something else"))
		e.Cancel()
		assert.Equal(t, Viewing, e.State())
		assert.Equal(t, committed, e.Value(), "type %s", typ)

		require.NoError(t, e.Activate())
		assert.Equal(t, committed, e.Buffer(), "type %s buffer reseeded", typ)
	}
}

func TestEscapeCancels(t *testing.T) {
	e := New(field.New("n", field.Text, "Maria"), (&recorder{}).save)
	require.NoError(t, e.Activate())
	require.NoError(t, e.Input("Mar"))
	require.NoError(t, e.Key(context.Background(), KeyEscape))
	assert.Equal(t, Viewing, e.State())
	assert.Equal(t, "Maria", e.Value())
}

func TestEnterAndBlurCommitSingleLineOnly(t *testing.T) {
	ctx := context.Background()
	for _, typ := range field.Types() {
		if typ.Atomic() {
			continue
		}
		rec := &recorder{}
		e := New(field.EditableField{ID: "f", Type: typ}, rec.save)
		require.NoError(t, e.Activate())
		require.NoError(t, e.Input(validSample(typ)))
		require.NoError(t, e.Key(ctx, KeyEnter))
		require.NoError(t, e.Blur(ctx))

		if typ.SingleLine() {
			assert.Equal(t, Viewing, e.State(), "type %s", typ)
			assert.Len(t, rec.calls, 1, "type %s", typ)
		} else {
			assert.Equal(t, Editing, e.State(), "type %s must need confirm", typ)
			assert.Empty(t, rec.calls, "type %s", typ)
			require.NoError(t, e.Confirm(ctx))
			assert.Equal(t, Viewing, e.State())
			assert.Len(t, rec.calls, 1)
		}
	}
}

func TestSaveRejectionReturnsToEditing(t *testing.T) {
	rec := &recorder{err: errors.New("network down")}
	e := New(field.New("venue_name", field.Text, "Old"), rec.save)
	require.NoError(t, e.Activate())
	require.NoError(t, e.Input("New"))

	err := e.Confirm(context.Background())
	require.EqualError(t, err, "network down")
	assert.Equal(t, Editing, e.State())
	assert.Equal(t, "Old", e.Value())
	assert.Equal(t, "New", e.Buffer())
	assert.Contains(t, string(e.View()), "network down")

	rec.err = nil
	require.NoError(t, e.Confirm(context.Background()))
	assert.Equal(t, "New", e.Value())
	assert.NoError(t, e.Err())
}

func TestDisabledFieldCannotActivate(t *testing.T) {
	f := field.New("f", field.Text, "x")
	f.Disabled = true
	e := New(f, nil)
	assert.ErrorIs(t, e.Activate(), ErrDisabled)
	assert.Equal(t, Viewing, e.State())
	assert.ErrorIs(t, e.Pick(context.Background(), "x"), ErrNotAtomic)
}

func TestPickCommitsAtomicAtOnce(t *testing.T) {
	rec := &recorder{}
	e := New(field.New("accent_color", field.Color, ""), rec.save)
	require.NoError(t, e.Pick(context.Background(), "#8a9a5b"))
	assert.Equal(t, Viewing, e.State())
	assert.Equal(t, "#8a9a5b", e.Value())
	assert.Equal(t, []string{"accent_color=#8a9a5b"}, rec.calls)

	img := New(field.New("hero_image", field.Image, ""), rec.save)
	require.NoError(t, img.Pick(context.Background(), "assets/1/cover.jpg"))
	assert.Equal(t, "assets/1/cover.jpg", img.Value())

	bad := New(field.New("accent_color", field.Color, "#ffffff"), rec.save)
	require.Error(t, bad.Pick(context.Background(), "gold"))
	assert.Equal(t, Editing, bad.State())
	assert.Equal(t, "#ffffff", bad.Value())
}

func TestFormatMutatesRichBuffer(t *testing.T) {
	rec := &recorder{}
	e := New(field.New("story_body", field.RichText, "<p>We met</p>"), rec.save)
	require.ErrorIs(t, e.Format(CmdBold), ErrNotEditing)
	require.NoError(t, e.Activate())
	require.NoError(t, e.Format(CmdBold))
	require.NoError(t, e.Format(CmdAlignCenter))
	assert.ErrorIs(t, e.Format("sparkle"), ErrUnknownFormat)
	assert.Equal(t, `<p style="text-align:center"><strong>We met</strong></p>`, e.Buffer())

	require.NoError(t, e.Confirm(context.Background()))
	assert.Equal(t, `<p style="text-align:center"><strong>We met</strong></p>`, e.Value())

	plain := New(field.New("n", field.Text, ""), rec.save)
	require.NoError(t, plain.Activate())
	assert.ErrorIs(t, plain.Format(CmdBold), ErrNotRichText)
}

func TestConfirmWithoutEditsKeepsRichValue(t *testing.T) {
	const stored = `<p>We <strong>met</strong> in Lisbon.</p><p style="text-align:center">Then Porto.</p>`
	rec := &recorder{}
	e := New(field.New("story_body", field.RichText, stored), rec.save)

	require.NoError(t, e.Activate())
	assert.Equal(t, stored, e.Buffer())
	require.NoError(t, e.Confirm(context.Background()))
	assert.Equal(t, stored, e.Value())
	assert.Equal(t, []string{"story_body=" + stored}, rec.calls)

	require.NoError(t, e.Activate())
	require.NoError(t, e.Format(CmdItalic))
	assert.NotEqual(t, stored, e.Buffer())
	e.Cancel()
	assert.Equal(t, stored, e.Value())

	require.NoError(t, e.Activate())
	assert.ErrorIs(t, e.Format("sparkle"), ErrUnknownFormat)
	assert.Equal(t, stored, e.Buffer(), "a rejected command leaves the value alone")
}

func TestSyncUpdatesCommittedValue(t *testing.T) {
	e := New(field.New("bride_name", field.Text, "Maria"), nil)
	e.Sync("Mariana")
	assert.Equal(t, "Mariana", e.Value())
	assert.Contains(t, string(e.View()), "Mariana")

	require.NoError(t, e.Activate())
	require.NoError(t, e.Input("typing"))
	e.Sync("Marta")
	assert.Equal(t, "typing", e.Buffer())
	e.Cancel()
	assert.Equal(t, "Marta", e.Value())
}

func TestSetSharesEditorPerField(t *testing.T) {
	s := NewSet(nil)
	a := s.For(field.New("wedding_date", field.Date, "2026-06-20"))
	b := s.For(field.New("wedding_date", field.Date, "2026-06-20"))
	assert.Same(t, a, b)

	s.Sync("wedding_date", "2026-07-01")
	assert.Equal(t, "2026-07-01", a.Value())

	require.NoError(t, a.Activate())
	s.CancelAll()
	assert.Equal(t, Viewing, a.State())
}
