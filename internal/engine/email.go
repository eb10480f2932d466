// ABOUTME: Syntactic e-mail validation for share targets
// ABOUTME: Format check only, no DNS or deliverability probing

package engine

import (
	"net/mail"
	"strings"
)

// validEmail reports whether s is a bare, syntactically valid address.
// Display names and addresses without a dotted domain are rejected so that
// inputs like "Bob <b@example.com>" or "user@localhost" never reach the
// provider.
func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return strings.Contains(s[at+1:], ".")
}
