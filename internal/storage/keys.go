package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// UserAssetPrefix 返回用户上传图片的对象前缀。
func UserAssetPrefix(userID uint) string {
	return fmt.Sprintf("user-assets/%d/", userID)
}

const publishedRoot = "published/"

// PublishedPrefix 返回站点发布产物的对象前缀。
func PublishedPrefix(slug string) string {
	return publishedRoot + slug + "/"
}

// SlugOfPublishedKey 从发布产物的对象键中取出站点地址；不是发布产物时返回空串。
func SlugOfPublishedKey(key string) string {
	rest, ok := strings.CutPrefix(key, publishedRoot)
	if !ok {
		return ""
	}
	slug, _, ok := strings.Cut(rest, "/")
	if !ok {
		return ""
	}
	return slug
}

// PublishedPageKey 返回站点首页 HTML 的对象键。
func PublishedPageKey(slug string) string {
	return PublishedPrefix(slug) + "index.html"
}

// PublishedAssetKey 返回发布副本中图片的对象键。
func PublishedAssetKey(slug, name string) string {
	return PublishedPrefix(slug) + "assets/" + path.Base(name)
}

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// IsUserAssetKey 校验对象键属于该用户且是受支持的图片。
func IsUserAssetKey(userID uint, key string) bool {
	if key == "" || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, UserAssetPrefix(userID)) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > 200 {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
