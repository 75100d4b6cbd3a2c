package profile

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyToSave(t *testing.T) {
	err := ReadyToSave(Record{KeyBrideName: "Maria"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncomplete))
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, []string{KeyGroomName, KeyWeddingDate}, inc.Missing)

	assert.NoError(t, ReadyToSave(Record{
		KeyBrideName:   "Maria",
		KeyGroomName:   "João",
		KeyWeddingDate: "2026-06-20",
	}))
	assert.Error(t, ReadyToSave(Record{KeyBrideName: "Maria", KeyGroomName: "  ", KeyWeddingDate: "2026-06-20"}))
}

func TestFormStateProjections(t *testing.T) {
	rec := Record{
		KeyBrideName:                  "Maria",
		KeySlug:                       "maria",
		LayoutKey("hero", "order"):    "0",
		LayoutKey("story", "enabled"): "false",
	}
	fs := FormStateOf(rec)
	want := FormState{KeyBrideName: "Maria", KeySlug: "maria"}
	if diff := cmp.Diff(want, fs); diff != "" {
		t.Fatalf("FormStateOf mismatch (-want +got):\n%s", diff)
	}

	fs["section.hero.order"] = "9"
	back := fs.Record()
	assert.NotContains(t, back, "section.hero.order")
	assert.Equal(t, "maria", back[KeySlug])
}

func TestStoreRevision(t *testing.T) {
	s := NewStore(Record{KeyBrideName: "Maria"})
	assert.Equal(t, uint64(0), s.Revision())

	assert.False(t, s.Set(KeyBrideName, "Maria"))
	assert.Equal(t, uint64(0), s.Revision())

	assert.True(t, s.Set(KeyGroomName, "João"))
	snap, rev := s.Snapshot()
	assert.Equal(t, uint64(1), rev)
	assert.Equal(t, "João", snap[KeyGroomName])

	snap[KeyGroomName] = "mutated"
	assert.Equal(t, "João", s.Get(KeyGroomName), "snapshot must be a copy")

	assert.True(t, s.SetAll(Record{KeyGroomName: "João", KeySlug: "x"}))
	assert.Equal(t, uint64(2), s.Revision())
	assert.False(t, s.SetAll(Record{KeySlug: "x"}))

	s.Replace(Record{KeySlug: "y"})
	assert.Equal(t, uint64(3), s.Revision())
	assert.Equal(t, "", s.Get(KeyBrideName))
}

func TestSetOnEmptyKeyCountsAsChange(t *testing.T) {
	s := NewStore(nil)
	assert.True(t, s.Set(KeySlug, ""))
	assert.False(t, s.Set(KeySlug, ""))
}
