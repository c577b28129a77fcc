// Package archive keeps immutable saved snapshots of task lists, keyed by
// generated URL-safe slugs, and refuses duplicate archival of identical
// content.
package archive

import (
	"fmt"
	"regexp"
	"strings"
)

// SlugMaxLen caps generated slugs before uniqueness suffixing.
const SlugMaxLen = 50

// FallbackSlug is used when a title reduces to nothing.
const FallbackSlug = "untitled"

var nonSlugRunRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the title, collapses runs of non-alphanumeric
// characters to single hyphens, strips edge hyphens, and caps the result at
// SlugMaxLen (re-stripping a trailing hyphen introduced by truncation).
func Slugify(title string) string {
	slug := nonSlugRunRe.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > SlugMaxLen {
		slug = strings.TrimRight(slug[:SlugMaxLen], "-")
	}
	if slug == "" {
		return FallbackSlug
	}
	return slug
}

// EnsureUnique returns slug itself when unused, otherwise the smallest
// slug-N suffix not present in taken.
func EnsureUnique(slug string, taken map[string]struct{}) string {
	if _, used := taken[slug]; !used {
		return slug
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", slug, i)
		if _, used := taken[candidate]; !used {
			return candidate
		}
	}
}
