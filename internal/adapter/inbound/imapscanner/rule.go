package imapscanner

import "strings"

// Rule pattern-matches an inbound email against subject/from/body substrings
// and, on a match, applies a fixed action set (spec.md §4.6 point 2):
// createLead, assignCampaign, setPriority, addTags. At least one of
// SubjectContains/FromContains/BodyContains must be set, or the rule matches
// nothing (an all-empty rule is a configuration mistake, not a catch-all).
type Rule struct {
	Name string

	SubjectContains string
	FromContains    string
	BodyContains    string

	CreateLead       bool
	AssignCampaignID string
	SetPriority      string
	AddTags          []string
}

// Matches reports whether this rule fires against a given email's fields.
// Every non-empty criterion must match (case-insensitive substring).
func (r Rule) Matches(subject, from, body string) bool {
	if r.SubjectContains == "" && r.FromContains == "" && r.BodyContains == "" {
		return false
	}
	if r.SubjectContains != "" && !containsFold(subject, r.SubjectContains) {
		return false
	}
	if r.FromContains != "" && !containsFold(from, r.FromContains) {
		return false
	}
	if r.BodyContains != "" && !containsFold(body, r.BodyContains) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// firstMatch returns the first rule (in configured order) that matches, and
// whether any rule matched at all.
func firstMatch(rules []Rule, subject, from, body string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(subject, from, body) {
			return r, true
		}
	}
	return Rule{}, false
}
