package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validate checks the password against the policy, counting runes not bytes.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "qwerty": {}, "qwertyuiop": {},
	"letmein": {}, "iloveyou": {}, "admin": {}, "welcome": {},
}

// looksVeryWeak catches only the most obvious cases: one repeated character,
// digits only, or a well-known password.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	allSame, allDigits := true, true
	for _, r := range s {
		if r != first {
			allSame = false
		}
		if !unicode.IsDigit(r) {
			allDigits = false
		}
	}
	return allSame || allDigits
}
