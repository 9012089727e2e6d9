package util

import (
	"strings"
	"unicode/utf8"
)

// Trunc truncates the input string to a specific length.
// It is UTF8-safe, but does not care for HTML.
func Trunc(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	var runes = 0
	for i := range s {
		if runes == maxRunes {
			return strings.TrimSpace(s[:i]) // trim spaces again
		}
		runes++
	}
	return s
}

// RuneCount counts the runes of the trimmed string.
func RuneCount(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

// SplitList splits a comma-separated list, trims the elements and drops empty ones.
func SplitList(s string) []string {
	var result []string
	for _, elem := range strings.Split(s, ",") {
		if elem = strings.TrimSpace(elem); elem != "" {
			result = append(result, elem)
		}
	}
	return result
}
