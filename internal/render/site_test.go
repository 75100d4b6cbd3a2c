package render

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedsite/internal/profile"
)

func TestSiteRendersReadOnlyWithThemeFallback(t *testing.T) {
	themes, err := NewThemeStyles("")
	require.NoError(t, err)

	rec := sample().Record()
	rec[profile.KeyTheme] = "neon"

	var buf bytes.Buffer
	res, err := New(quietLogger()).Site(context.Background(), &buf, rec, themes, Options{Editable: true})
	require.NoError(t, err)
	out := buf.String()
	assert.NotEmpty(t, res.Rendered)
	assert.Contains(t, out, "Maria &amp; João")
	assert.Contains(t, out, "/static/themes/classic/classic.css")
	assert.NotContains(t, out, "data-field", "published pages never carry editors")
}
