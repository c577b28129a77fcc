package archive

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title string
		want  string
	}{
		{"Sprint 12", "sprint-12"},
		{"  Release!!  Prep  ", "release-prep"},
		{"Émigré déjà vu", "migr-d-j-vu"},
		{"---", "untitled"},
		{"", "untitled"},
		{"ALL CAPS TITLE", "all-caps-title"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
	}
	for _, tc := range cases {
		if got := Slugify(tc.title); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}

func TestSlugifyTruncationStripsTrailingHyphen(t *testing.T) {
	t.Parallel()
	// 49 chars then a separator right at the cap boundary.
	title := strings.Repeat("a", 49) + " bbbb"
	got := Slugify(title)
	if strings.HasSuffix(got, "-") {
		t.Fatalf("slug ends with hyphen: %q", got)
	}
	if len(got) > SlugMaxLen {
		t.Fatalf("slug over cap: %q", got)
	}
}

func TestEnsureUnique(t *testing.T) {
	t.Parallel()
	taken := map[string]struct{}{}
	if got := EnsureUnique("test", taken); got != "test" {
		t.Fatalf("first slug = %q", got)
	}
	taken["test"] = struct{}{}
	if got := EnsureUnique("test", taken); got != "test-1" {
		t.Fatalf("second slug = %q", got)
	}
	taken["test-1"] = struct{}{}
	if got := EnsureUnique("test", taken); got != "test-2" {
		t.Fatalf("third slug = %q", got)
	}
}
