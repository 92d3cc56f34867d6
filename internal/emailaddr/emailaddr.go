// Package emailaddr checks recipient email addresses.
package emailaddr

import (
	"net/mail"
	"strings"
)

// Valid reports whether s is a bare RFC 5322 address ("user@host") with no
// display name, comments or surrounding whitespace. Case is preserved and
// not normalised.
func Valid(s string) bool {
	if s == "" || strings.TrimSpace(s) != s {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	if addr.Address != s || addr.Name != "" {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
