package field

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRequired(t *testing.T) {
	for _, typ := range Types() {
		f := EditableField{ID: "x", Type: typ, Required: true, Label: "Thing"}
		err := f.Check("   ")
		var fe *Error
		require.ErrorAs(t, err, &fe, "type %s", typ)
		assert.Equal(t, "x", fe.FieldID)
		assert.Equal(t, "Thing is required.", fe.Message)
	}
}

func TestCheckOptionalEmptySkipsTypeValidation(t *testing.T) {
	for _, typ := range Types() {
		f := EditableField{ID: "x", Type: typ}
		assert.NoError(t, f.Check(""), "type %s", typ)
	}
}

func TestCheckRichTextBlankMarkupIsEmpty(t *testing.T) {
	f := EditableField{ID: "story", Type: RichText, Required: true}
	assert.Error(t, f.Check("<p><strong> </strong></p>"))
	assert.NoError(t, f.Check("<p><strong>Hi</strong></p>"))
}

func TestCheckMaxLengthCountsRunes(t *testing.T) {
	f := EditableField{ID: "n", Type: Text, MaxLength: 4}
	assert.NoError(t, f.Check("João"))
	assert.Error(t, f.Check("Joãoo"))

	rich := EditableField{ID: "r", Type: RichText, MaxLength: 3}
	assert.NoError(t, rich.Check("<p><strong>abc</strong></p>"))
	assert.Error(t, rich.Check("<p>abcd</p>"))
}

func TestCheckTypes(t *testing.T) {
	cases := []struct {
		typ  Type
		good string
		bad  string
	}{
		{Email, "ana@example.com", "ana@"},
		{URL, "https://maps.example.com/x", "not a url"},
		{Color, "#c9a227", "gold"},
		{Phone, "+1 555 0100", "call me"},
		{Date, "2026-06-20", "20/06/2026"},
		{Time, "16:30", "4pm"},
	}
	for _, tc := range cases {
		f := EditableField{ID: "f", Type: tc.typ}
		assert.NoError(t, f.Check(tc.good), "%s good", tc.typ)
		assert.Error(t, f.Check(tc.bad), "%s bad", tc.typ)
	}
}

func TestCheckImageIsOpaque(t *testing.T) {
	f := EditableField{ID: "img", Type: Image, Required: true}
	assert.NoError(t, f.Check("assets/7/abc.png"))
	assert.NoError(t, f.Check("whatever it is"))
}

func TestCheckCustomValidator(t *testing.T) {
	f := EditableField{ID: "tag", Type: Text, Validate: func(v string) error {
		if !strings.HasPrefix(v, "#") {
			return errors.New("Hashtag must start with #")
		}
		return nil
	}}
	err := f.Check("wedding")
	require.Error(t, err)
	assert.Equal(t, "tag: Hashtag must start with #", err.Error())
	assert.NoError(t, f.Check("#wedding"))
}

func TestTypeClasses(t *testing.T) {
	for _, typ := range Types() {
		assert.True(t, typ.Valid())
		n := 0
		for _, b := range []bool{typ.SingleLine(), typ.Multiline(), typ.Atomic()} {
			if b {
				n++
			}
		}
		assert.Equal(t, 1, n, "type %s belongs to exactly one commit class", typ)
	}
	assert.False(t, Type("video").Valid())
}
