// Package extract holds the deterministic language heuristics supervisors
// apply on top of LLM proposals: relative date resolution, priority
// inference from language intensity, and tag inference from keywords.
package extract

import (
	"strings"
	"time"
)

// dateLayouts are the absolute formats accepted by ParseDate.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2",
	"Jan 2",
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDate resolves a natural-language or absolute date expression relative
// to now. Returns the zero time and false when the expression is not a date.
func ParseDate(expr string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(expr))
	if s == "" {
		return time.Time{}, false
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch s {
	case "today", "tonight":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "next week":
		return today.AddDate(0, 0, 7), true
	case "next month":
		return today.AddDate(0, 1, 0), true
	case "end of week":
		offset := int(time.Friday - today.Weekday())
		if offset < 0 {
			offset += 7
		}
		return today.AddDate(0, 0, offset), true
	}

	// "next monday", bare "friday", etc. Bare weekdays resolve to the next
	// occurrence, never today.
	name := strings.TrimPrefix(s, "next ")
	if wd, ok := weekdays[name]; ok {
		offset := (int(wd) - int(today.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return today.AddDate(0, 0, offset), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, expr); err == nil {
			// Layouts without a year parse as year 0; pin them to now's year.
			if t.Year() == 0 {
				t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())
				if t.Before(today) {
					t = t.AddDate(1, 0, 0)
				}
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// urgentMarkers escalate priority to high; casualMarkers de-escalate to low.
var urgentMarkers = []string{
	"urgent", "asap", "immediately", "right away", "critical",
	"important", "must", "deadline", "overdue", "now",
}

var casualMarkers = []string{
	"whenever", "sometime", "eventually", "no rush", "low priority",
	"at some point", "if you get a chance",
}

// InferPriority infers a todo priority from the intensity of the request
// language. Defaults to medium when no marker is present.
func InferPriority(query string) string {
	q := strings.ToLower(query)
	for _, m := range urgentMarkers {
		if strings.Contains(q, m) {
			return "high"
		}
	}
	for _, m := range casualMarkers {
		if strings.Contains(q, m) {
			return "low"
		}
	}
	return "medium"
}

// tagKeywords maps trigger words to inferred tags.
var tagKeywords = map[string][]string{
	"shopping": {"buy", "purchase", "order", "groceries", "grocery", "milk", "shop"},
	"study":    {"study", "read", "review", "exam", "quiz", "homework", "assignment", "lecture", "notes"},
	"email":    {"email", "reply", "respond", "message"},
	"call":     {"call", "phone", "ring"},
	"health":   {"doctor", "dentist", "gym", "workout", "appointment"},
	"finance":  {"pay", "bill", "rent", "invoice", "bank"},
	"errand":   {"pick up", "drop off", "return", "mail"},
}

// InferTags derives tags from keywords in the title and query.
// The result preserves a stable order and contains no duplicates.
func InferTags(text string) []string {
	q := strings.ToLower(text)
	var tags []string
	for _, tag := range []string{"shopping", "study", "email", "call", "health", "finance", "errand"} {
		for _, kw := range tagKeywords[tag] {
			if strings.Contains(q, kw) {
				tags = append(tags, tag)
				break
			}
		}
	}
	return tags
}
