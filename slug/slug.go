// Package slug derives URL-safe, collision-free post identifiers.
package slug

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxLen matches the width of the posts.slug column.
	MaxLen = 256
	// Fallback is used when a title has no usable characters.
	Fallback = "post"
)

// Normalize lower-cases s, folds accented letters to their base letter, drops
// everything that is not an ASCII letter, digit, underscore, hyphen or
// whitespace, and joins the remaining words with single hyphens.
//
//	Normalize("  Hello, World!!  ") // "hello-world"
//	Normalize("Café au lait")       // "cafe-au-lait"
//	Normalize("!!!")                // ""
func Normalize(s string) string {
	s = strings.ToLower(s)
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.TrimSpace(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == '_' || r == '-' || unicode.IsSpace(r):
			pendingSep = true
		}
	}
	return truncate(b.String(), MaxLen)
}

// Base returns the normalized requested slug when one is given, otherwise the
// normalized title, falling back to "post" when nothing survives.
func Base(requested *string, title string) string {
	var base string
	if requested != nil && strings.TrimSpace(*requested) != "" {
		base = Normalize(*requested)
	} else {
		base = Normalize(title)
	}
	if base == "" {
		return Fallback
	}
	return base
}

// Candidate returns the n-th candidate for base: base itself for n == 0 and
// base-n otherwise. The base is shortened so the result fits MaxLen.
func Candidate(base string, n int) string {
	if n <= 0 {
		return truncate(base, MaxLen)
	}
	suffix := "-" + strconv.Itoa(n)
	if len(base)+len(suffix) > MaxLen {
		base = truncate(base, MaxLen-len(suffix))
	}
	return base + suffix
}

// Next returns the first candidate for base that is not in taken.
func Next(base string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	for n := 0; ; n++ {
		c := Candidate(base, n)
		if _, ok := used[c]; !ok {
			return c
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "-")
}
