package engage

import (
	"fmt"
	"time"

	"github.com/araddon/dateparse"
)

// zone-less layouts are interpreted as UTC by time.Parse
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp reads a recorded send time. Values which only the lenient fallback understands are rejected when they land after now, since bare digit strings parse as far-future unix times.
func parseTimestamp(s string, now time.Time) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// records written by other tools
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	if t.After(now) {
		return time.Time{}, fmt.Errorf("timestamp %q is in the future", s)
	}
	return t, nil
}

// Eligible decides whether the follower with identifier id may be sent a direct message at now.
//
// A follower without history is always eligible. With history, a zero cooldown means never again; otherwise the cooldown must have fully elapsed since the recorded send. Empty or unparseable timestamps are eligible.
func Eligible(id string, history map[string]string, cooldown time.Duration, now time.Time) bool {
	last, ok := history[id]
	if !ok {
		return true
	}
	if cooldown <= 0 {
		return false
	}
	if last == "" {
		return true
	}
	sent, err := parseTimestamp(last, now)
	if err != nil {
		return true
	}
	return now.Sub(sent) >= cooldown
}
