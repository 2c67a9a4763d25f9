package utils

import (
	"strings"

	"github.com/google/uuid"
)

// Slugify derives a URL-safe slug from a name: lowercase alphanumerics with
// single hyphens. Falls back to a short random slug when nothing survives.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return RandomSlug()
	}
	return slug
}

// RandomSlug returns a short random lowercase slug.
func RandomSlug() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
