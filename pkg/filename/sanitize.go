// Package filename converts arbitrary strings into names that are safe to
// use as files or directories on any major OS.
package filename

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// unsafeRe matches path separators, shell-hostile characters, control bytes
// and whitespace; runs are replaced as a unit.
var unsafeRe = regexp.MustCompile(`[<>:"/\\|?*\s\x00-\x1f]+`)

// separatorRunRe collapses runs of dashes and underscores.
var separatorRunRe = regexp.MustCompile(`[-_]{2,}`)

// Sanitize converts name into a slug containing only the characters safe in
// a filename. Leading and trailing dashes and dots are stripped, so the
// result is never a hidden file and never ends a Windows path with a dot.
// maxLen bounds the output in bytes without splitting a rune; 0 applies the
// 80-byte default.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 80
	}

	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	s = unsafeRe.ReplaceAllString(s, "-")
	s = separatorRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")

	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "-.")
	}
	return s
}
