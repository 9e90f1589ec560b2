package reminder

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// QuietWindow is a per-user do-not-disturb window in local wall-clock time.
// Start and End are "HH:MM". An empty Start or End disables the window.
type QuietWindow struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (w QuietWindow) IsZero() bool { return w.Start == "" || w.End == "" }

// InQuietHours reports whether t falls inside the window in the given IANA
// timezone. Bounds are inclusive. A window whose start is after its end
// spans midnight (e.g. 22:00-06:00). Unknown or empty timezone means UTC;
// an unparseable window never suppresses delivery.
func InQuietHours(t time.Time, w QuietWindow, tz string) bool {
	if w.IsZero() {
		return false
	}
	start, err := parseHHMM(w.Start)
	if err != nil {
		return false
	}
	end, err := parseHHMM(w.End)
	if err != nil {
		return false
	}

	local := t.In(loadLocation(tz))
	mins := local.Hour()*60 + local.Minute()

	if start <= end {
		return mins >= start && mins <= end
	}
	// Window wraps past midnight.
	return mins >= start || mins <= end
}

func loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseHHMM parses "HH:MM" into minutes of day.
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
