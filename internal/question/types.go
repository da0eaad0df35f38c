package question

import "strings"

// DefaultCategory is used for rows without a category column value.
const DefaultCategory = "一般"

// Question is one multiple-choice item of the bank.
type Question struct {
	Prompt   string   `json:"prompt"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer,omitempty"` // server-side only
	Category string   `json:"category"`
}

// HasOption reports whether text is one of the question's options.
func (q Question) HasOption(text string) bool {
	for _, opt := range q.Options {
		if opt == text {
			return true
		}
	}
	return false
}

// IsCorrect compares the chosen option text against the answer text.
func (q Question) IsCorrect(text string) bool {
	return strings.TrimSpace(text) == strings.TrimSpace(q.Answer)
}
