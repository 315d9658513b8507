// Package utils provides shared text and logging helpers.
package utils

import "strings"

// Truncate returns s cut to maxLen runes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// OneLine collapses every run of whitespace, newlines included, into a
// single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
