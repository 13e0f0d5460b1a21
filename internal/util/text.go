package util

import "strings"

// SanitizeText drops invalid UTF-8 and NUL bytes that fetched web pages
// sometimes carry.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// FirstNWords returns at most n whitespace separated words of s, appending an
// ellipsis when words were cut.
func FirstNWords(s string, n int) string {
	words := strings.Fields(s)
	if n <= 0 || len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}
