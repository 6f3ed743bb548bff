package domain

import (
	"strings"
)

// Template is a reusable message body with {{name}} placeholder substitution.
type Template struct {
	Versioned
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Subject   string   `json:"subject,omitempty"`
	Body      string   `json:"body"`
	Variables []string `json:"variables"`
	Category  string   `json:"category"`
}

// Render substitutes {{name}} placeholders against ctx, leaving unknown
// placeholders untouched so callers can detect missing context upstream.
func (t Template) Render(ctx map[string]string) (subject, body string) {
	return substitutePlaceholders(t.Subject, ctx), substitutePlaceholders(t.Body, ctx)
}

func substitutePlaceholders(s string, ctx map[string]string) string {
	if s == "" || len(ctx) == 0 {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : end])
		if v, ok := ctx[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+2])
		}
		s = s[end+2:]
	}
	return b.String()
}
