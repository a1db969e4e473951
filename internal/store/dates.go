package store

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the formats court portals emit, most common first.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
	"02.01.2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"January 2, 2006",
	"2006",
}

// ParseDate parses an ingested date string.
// ok is false for empty input; err is set when text is present but unparseable.
func ParseDate(s string) (t time.Time, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, true, fmt.Errorf("unrecognized date %q", s)
}
