package util

import "strings"

// SanitizeStoredText strips NUL bytes and invalid UTF-8 before a value is
// written to the graph store or the fingerprint database.
func SanitizeStoredText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// NormalizeText lowercases a value and collapses all whitespace runs to a
// single space. Fingerprint hashing and fuzzy comparison both key on this
// normal form.
func NormalizeText(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	return strings.Join(strings.Fields(value), " ")
}
