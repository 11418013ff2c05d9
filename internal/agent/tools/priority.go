package tools

import (
	"strings"

	"github.com/uneezaismail/hackathon-todo-sub007/internal/db"
)

var highCues = []string{
	"urgent",
	"asap",
	"immediately",
	"critical",
	"right away",
	"high priority",
}

var lowCues = []string{
	"low priority",
	"whenever",
	"no rush",
	"someday",
	"eventually",
}

// InferPriority derives a task priority from free-form text. Matching is
// case-insensitive substring search; high-urgency cues win over
// low-urgency ones, and text with no cue lands on Medium. The function
// reads nothing but its argument, so the same text always yields the
// same priority.
func InferPriority(text string) db.Priority {
	t := strings.ToLower(text)
	for _, cue := range highCues {
		if strings.Contains(t, cue) {
			return db.PriorityHigh
		}
	}
	for _, cue := range lowCues {
		if strings.Contains(t, cue) {
			return db.PriorityLow
		}
	}
	return db.PriorityMedium
}
