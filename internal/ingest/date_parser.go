package ingest

import (
	"fmt"
	"strings"
	"time"
)

// The extract publishes every date as an 8-digit MMDDYYYY string.
const feedDateLayout = "01022006"

// parseFeedDate parses an 8-digit feed date. Empty input is not an error;
// it simply yields nil, matching the optional-date semantics of the feed.
func parseFeedDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("feed date %q is not 8 digits", raw)
	}

	t, err := time.Parse(feedDateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("unable to parse feed date %q: %w", raw, err)
	}

	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d, nil
}

// isoDate formats a date pointer as YYYY-MM-DD, or "" for nil.
func isoDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// isExpired reports whether the record's close date is strictly before
// today. Records without a close date never expire here.
func isExpired(closeDate *time.Time, now time.Time) bool {
	if closeDate == nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return closeDate.Before(today)
}
