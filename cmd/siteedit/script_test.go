package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedsite/internal/autosave"
	"wedsite/internal/profile"
	"wedsite/internal/session"
	"wedsite/internal/studio"
	"wedsite/internal/upload"
)

type memWriter struct {
	mu    sync.Mutex
	saved []profile.Record
}

func (w *memWriter) Write(_ context.Context, _ string, rec profile.Record) (profile.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.saved = append(w.saved, rec)
	return rec, nil
}

const sample = `
steps:
  - edit:
      field: bride_name
      value: Ana
  - set:
      key: venue_name
      value: Casa Azul
  - image:
      field: hero_image
      file: cover.png
  - toggle:
      section: story
      enabled: false
  - move:
      section: footer
      position: 0
submit: true
output: page.html
`

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(sample))
	require.NoError(t, err)
	require.Len(t, s.Steps, 5)
	assert.True(t, s.Submit)
	assert.Equal(t, "page.html", s.Output)
	assert.Equal(t, "Ana", s.Steps[0].Edit.Value)

	s, err = ParseScript([]byte("steps:\n  - wait: 250ms\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.Steps[0].Wait)

	_, err = ParseScript([]byte("steps:\n  - {}\n"))
	assert.ErrorIs(t, err, errBadStep)

	_, err = ParseScript([]byte("steps:\n  - set: {key: a, value: b}\n    toggle: {section: story}\n"))
	assert.ErrorIs(t, err, errBadStep)
}

func TestApplyScriptThroughSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.png"), []byte("png"), 0o600))

	var uploaded string
	w := &memWriter{}
	sess := studio.Open(profile.Record{
		profile.KeyBrideName:   "Maria",
		profile.KeyGroomName:   "João",
		profile.KeyWeddingDate: "2026-06-20",
	}, studio.Deps{
		Writer:   w,
		Sessions: &session.Static{Token: "t"},
		Uploader: upload.Func(func(_ context.Context, name string, r io.Reader) (string, error) {
			uploaded = name
			return "user-assets/1/cover.png", nil
		}),
		AfterFunc: (&autosave.ManualClock{}).AfterFunc,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(sess.Close)

	s, err := ParseScript([]byte(sample))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, sess, dir))
	require.NoError(t, sess.Form.Submit(ctx))

	assert.Equal(t, "cover.png", uploaded)
	require.Len(t, w.saved, 1)
	saved := w.saved[0]
	assert.Equal(t, "Ana", saved[profile.KeyBrideName])
	assert.Equal(t, "Casa Azul", saved["venue_name"])
	assert.Equal(t, "user-assets/1/cover.png", saved["hero_image"])
	assert.Equal(t, "false", saved[profile.LayoutKey("story", "enabled")])
	assert.Equal(t, "0", saved[profile.LayoutKey("footer", "order")])
}

func TestApplyReportsFailingStep(t *testing.T) {
	sess := studio.Open(profile.Record{}, studio.Deps{
		Writer:    &memWriter{},
		Sessions:  &session.Static{Token: "t"},
		AfterFunc: (&autosave.ManualClock{}).AfterFunc,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(sess.Close)

	s, err := ParseScript([]byte("steps:\n  - move: {section: carousel, position: 1}\n"))
	require.NoError(t, err)
	err = s.Apply(context.Background(), sess, ".")
	assert.ErrorContains(t, err, "step 1")
}
