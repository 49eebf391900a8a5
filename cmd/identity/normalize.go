package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLen    = 254
	maxFullNameLen = 100
	maxBioLen      = 500
	maxURLLen      = 2048
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s parses as a bare address.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxEmailLen {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// NormalizeFullName collapses inner whitespace.
func NormalizeFullName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}
