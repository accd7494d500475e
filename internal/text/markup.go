package text

import (
	"html"
	"regexp"
	"strings"
)

const (
	ssmlOpenTag  = "<speak"
	ssmlCloseTag = "</speak>"
)

var (
	tagPattern   = regexp.MustCompile(`<[^<>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// IsSSML reports whether text is a complete <speak> document.
func IsSSML(text string) bool {
	trimmed := strings.TrimSpace(text)

	return strings.HasPrefix(trimmed, ssmlOpenTag) && strings.HasSuffix(trimmed, ssmlCloseTag)
}

// StripMarkup removes tags and decodes entities, returning plain text.
// Text without any tag is returned unchanged.
func StripMarkup(text string) string {
	if !tagPattern.MatchString(text) {
		return text
	}

	plain := tagPattern.ReplaceAllString(text, " ")
	plain = html.UnescapeString(plain)

	return strings.TrimSpace(spacePattern.ReplaceAllString(plain, " "))
}
