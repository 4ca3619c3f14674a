package utils

import "strings"

// PhraseMatcher decides whether a seller message is the campaign trigger.
// Kept as an interface so the plain substring check can later be replaced by
// a classifier without touching the selector or the state machine.
type PhraseMatcher interface {
	Matches(text string) bool
}

// SubstringMatcher matches any text containing the phrase.
type SubstringMatcher struct {
	Phrase string
}

func (m SubstringMatcher) Matches(text string) bool {
	return m.Phrase != "" && strings.Contains(text, m.Phrase)
}
