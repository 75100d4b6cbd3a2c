package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUserAssetKey(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"user-assets/7/a.png", true},
		{"user-assets/7/a.JPEG", true},
		{"user-assets/7/a.webp", true},
		{"user-assets/8/a.png", false},
		{"user-assets/7/../8/a.png", false},
		{"user-assets/7//a.png", false},
		{"user-assets/7/a.svg", false},
		{"user-assets/7/" + strings.Repeat("x", 200) + ".png", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsUserAssetKey(7, tc.key), tc.key)
	}
}

func TestPublishedKeys(t *testing.T) {
	assert.Equal(t, "published/joao-maria/index.html", PublishedPageKey("joao-maria"))
	assert.Equal(t, "published/joao-maria/assets/cover.png", PublishedAssetKey("joao-maria", "user-assets/1/cover.png"))
}

func TestSlugOfPublishedKey(t *testing.T) {
	assert.Equal(t, "a-b", SlugOfPublishedKey(PublishedPageKey("a-b")))
	assert.Equal(t, "a-b", SlugOfPublishedKey(PublishedAssetKey("a-b", "user-assets/1/x.png")))
	assert.Empty(t, SlugOfPublishedKey(""))
	assert.Empty(t, SlugOfPublishedKey("thumbnails/site/1/preview.jpg"))
}
