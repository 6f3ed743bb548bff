package domain

import "strings"

// NormalizePhone reduces a phone number to E.164-ish form: a leading "+"
// followed by digits only, dropping spaces, hyphens, parens, and dots. It
// does not validate country codes; it exists so inbound carrier webhooks and
// FindByPhone lookups compare the same representation (spec.md §4.6: "sms by
// E.164-normalized phone").
func NormalizePhone(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
