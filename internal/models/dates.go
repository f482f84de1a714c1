package models

import (
	"fmt"
	"strings"
	"time"
)

// UserDateLayout is the DD/MM/YYYY form accepted from user input and
// written back to user-facing date columns.
const UserDateLayout = "02/01/2006"

// ParseUserDate parses a DD/MM/YYYY date. Falls back to RFC3339 so
// machine-entered values round-trip through the same helper.
func ParseUserDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty date", ErrValidation)
	}
	if t, err := time.Parse(UserDateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrValidation, s)
}

// FormatUserDate renders a time in the user-facing DD/MM/YYYY form.
func FormatUserDate(t time.Time) string {
	return t.Format(UserDateLayout)
}
