package issues

import (
	"fmt"
	"time"
)

const keySeparator = "-"

// IssueKey derives the primary key of an issue record: the repository node id and the
// issue number joined by "-". The issue number never contains the separator, so the key
// splits back into its parts at the last "-".
func IssueKey(repositoryNodeID string, issueNumber int) string {
	return fmt.Sprintf("%s%s%d", repositoryNodeID, keySeparator, issueNumber)
}

// EventKey derives the primary key of an issue event: the owning issue's key and the event
// timestamp (RFC3339, UTC, nanosecond precision when present). seq distinguishes events on the
// same issue which share a timestamp; the first such event has seq 0 and gets no suffix.
func EventKey(issueKey string, createdAt time.Time, seq int) string {
	key := issueKey + keySeparator + FormatEventTime(createdAt)
	if seq > 0 {
		key = fmt.Sprintf("%s%s%d", key, keySeparator, seq)
	}
	return key
}

func FormatEventTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// EventKeyer hands out event keys for a single issue, numbering timestamp collisions
// in the order events are seen.
type EventKeyer struct {
	issueKey string
	seen     map[string]int
}

func NewEventKeyer(issueKey string) *EventKeyer {
	return &EventKeyer{issueKey: issueKey, seen: map[string]int{}}
}

func (k *EventKeyer) Next(createdAt time.Time) string {
	ts := FormatEventTime(createdAt)
	seq := k.seen[ts]
	k.seen[ts] = seq + 1
	return EventKey(k.issueKey, createdAt, seq)
}
