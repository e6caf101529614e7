package agent

import (
	"fmt"
	"strings"
)

type actionEntry struct {
	action    string
	elementID int
	text      string
}

// RecentActionLog keeps a sliding window of the agent's latest actions
// so the decision prompt can warn the model when it starts looping on
// the same element.
type RecentActionLog struct {
	entries []actionEntry
	window  int
}

func NewRecentActionLog(window int) *RecentActionLog {
	if window <= 0 {
		window = 5
	}
	return &RecentActionLog{window: window}
}

// Record appends an action, evicting the oldest entry once the window
// is full.
func (l *RecentActionLog) Record(action string, elementID int, text string) {
	l.entries = append(l.entries, actionEntry{action: action, elementID: elementID, text: text})
	if len(l.entries) > l.window {
		l.entries = l.entries[len(l.entries)-l.window:]
	}
}

// IsRepeated reports whether an identical action tuple already appears
// twice or more in the window.
func (l *RecentActionLog) IsRepeated(action string, elementID int, text string) bool {
	count := 0
	for _, e := range l.entries {
		if e.action == action && e.elementID == elementID && e.text == text {
			count++
		}
	}
	return count >= 2
}

// RepetitionWarning renders a prompt warning listing every
// (action, element) pair seen at least twice in the window. It returns
// the empty string when nothing repeats.
func (l *RecentActionLog) RepetitionWarning() string {
	if len(l.entries) < 2 {
		return ""
	}
	type key struct {
		action    string
		elementID int
	}
	counts := make(map[key]int)
	order := make([]key, 0, len(l.entries))
	for _, e := range l.entries {
		k := key{action: e.action, elementID: e.elementID}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	var lines []string
	for _, k := range order {
		if counts[k] >= 2 {
			lines = append(lines, fmt.Sprintf("  - %s on element %d (repeated %d times)", k.action, k.elementID, counts[k]))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n\n**Warning: repeated actions detected**:\n" + strings.Join(lines, "\n") + "\nTry a different strategy instead of repeating actions that are not working."
}
