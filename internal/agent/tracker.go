package agent

import (
	"fmt"
	"iter"
	"strings"
)

// Recorder receives each formatted transcript line as soon as the tracker
// produces it.
type Recorder func(content string)

// Tracker mirrors a team's event stream into displayable transcript entries
// while passing every event through unchanged, so the enclosing loop's
// termination detection still observes raw content.
//
// Formatting rules:
//   - tool-call request: "[<source>] Tool calls requested:" plus one bulleted
//     line per call with the tool name and verbatim arguments;
//   - text message from a non-"user" source: "[<source>]\n<content>" with the
//     termination token removed and whitespace trimmed;
//   - final response: same as the text message it wraps, but skipped when that
//     message was already tracked (some emission orders yield both).
type Tracker struct {
	record Recorder

	lastTextSource  string
	lastTextContent string
	hasLastText     bool
}

// NewTracker creates a tracker that feeds formatted entries to record.
func NewTracker(record Recorder) *Tracker {
	return &Tracker{record: record}
}

// Intercept wraps an event stream: each event is tracked, then re-yielded
// unchanged to the caller.
func (t *Tracker) Intercept(events iter.Seq2[Event, error]) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range events {
			if err == nil {
				t.track(ev)
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

func (t *Tracker) track(ev Event) {
	switch ev.Kind {
	case EventToolCallRequest:
		t.hasLastText = false
		t.record(FormatToolCalls(ev.Source, ev.Calls))
	case EventTextMessage:
		if ev.Source == "user" {
			return
		}
		t.record(FormatText(ev.Source, ev.Content))
		t.lastTextSource = ev.Source
		t.lastTextContent = ev.Content
		t.hasLastText = true
	case EventFinalResponse:
		if ev.Source == "user" {
			return
		}
		// Skip when the wrapped message was already tracked as a plain text
		// message; track it otherwise.
		if t.hasLastText && t.lastTextSource == ev.Source && t.lastTextContent == ev.Content {
			t.hasLastText = false
			return
		}
		t.hasLastText = false
		t.record(FormatText(ev.Source, ev.Content))
	}
}

// FormatToolCalls renders a tool-call request entry.
func FormatToolCalls(source string, calls []ToolCall) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Tool calls requested:", source)
	for _, c := range calls {
		fmt.Fprintf(&b, "\n- %s with arguments %s", c.Name, c.Arguments)
	}
	return b.String()
}

// FormatText renders a text-message entry with the termination token removed.
func FormatText(source, content string) string {
	return fmt.Sprintf("[%s]\n%s", source, strings.TrimSpace(StripTermination(content)))
}

// StripTermination removes every occurrence of the termination token from s,
// in any casing.
func StripTermination(s string) string {
	token := strings.ToLower(TerminationToken)
	lower := strings.ToLower(s)

	var b strings.Builder
	for {
		i := strings.Index(lower, token)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		s = s[i+len(token):]
		lower = lower[i+len(token):]
	}
}
