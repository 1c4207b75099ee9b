package agent

import "strings"

// Condition decides when a team run is finished.
type Condition interface {
	// Matches reports whether the event ends the run. It observes raw event
	// content, before any display formatting strips the sentinel.
	Matches(ev Event) bool
}

// TextMentionTermination matches when any emitted text contains a fixed
// token, in any casing.
type TextMentionTermination struct {
	token string
}

// NewTextMentionTermination creates a termination condition for token.
func NewTextMentionTermination(token string) *TextMentionTermination {
	return &TextMentionTermination{token: token}
}

// Matches implements Condition.
func (t *TextMentionTermination) Matches(ev Event) bool {
	switch ev.Kind {
	case EventTextMessage, EventFinalResponse:
		return containsFold(ev.Content, t.token)
	case EventToolCallRequest:
		return false
	}
	return false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
