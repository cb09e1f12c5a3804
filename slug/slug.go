// Package slug builds URL and storage friendly names from article titles.
package slug

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength bounds a generated slug
const MaxLength = 100

var (
	invalidChars = regexp.MustCompile("[^a-z0-9-]+")
	hyphenRuns   = regexp.MustCompile("-+")
)

// Generate creates a URL-friendly slug from a string
func Generate(s string) string {
	if s == "" {
		return ""
	}

	s = transliterate(strings.ToLower(s))

	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")
	s = invalidChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}

	return s
}

// FromURL builds a slug from the last path segment of a URL, without its extension
func FromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "." || segment == "/" {
		return Generate(u.Hostname())
	}
	segment = strings.TrimSuffix(segment, path.Ext(segment))

	return Generate(segment)
}

// ForArticle names an article for storage. The id suffix keeps two articles
// with the same title apart.
func ForArticle(title, sourceURL, id string) string {
	base := Generate(title)
	if base == "" {
		base = FromURL(sourceURL)
	}
	if base == "" {
		base = "article"
	}

	short := Generate(id)
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		return base
	}
	return base + "-" + short
}

// transliterate strips diacritics so accented letters survive as ASCII
func transliterate(s string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(isMn), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// isMn checks if a rune is a nonspacing mark (accents, diacritics)
func isMn(r rune) bool {
	return unicode.Is(unicode.Mn, r)
}
