package geo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/farmaturno/farmacias-api/normalizer"
)

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("clock value %q is not HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("clock value %q has a bad hour: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("clock value %q has a bad minute: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q is out of range", s)
	}

	return hour*60 + minute, nil
}

// weekdays maps time.Weekday onto the Spanish day names the upstream
// feed uses, already in normalized form.
var weekdays = [7]string{
	"domingo", "lunes", "martes", "miercoles", "jueves", "viernes", "sabado",
}

// OpenOn reports whether the operating-days field covers the weekday of
// t. The turno feed names a single day per record; "todos" covers every
// day. An empty field reports open, like missing hours. Comparison runs
// on normalized text so accents and casing in the feed don't matter.
func OpenOn(days string, t time.Time) bool {
	norm := normalizer.Normalize(days)
	if norm == "" || strings.Contains(norm, "todos") {
		return true
	}
	return strings.Contains(norm, weekdays[t.Weekday()])
}

// OpenAt reports whether a window [open, close) covers the wall-clock
// time of t. A close before open means the window crosses midnight.
// Missing or unparseable hours report open, matching the upstream
// feed's habit of omitting hours for 24h locations.
func OpenAt(openStr, closeStr string, t time.Time) bool {
	if strings.TrimSpace(openStr) == "" || strings.TrimSpace(closeStr) == "" {
		return true
	}

	open, err := ParseClock(openStr)
	if err != nil {
		return true
	}
	close, err := ParseClock(closeStr)
	if err != nil {
		return true
	}

	now := t.Hour()*60 + t.Minute()
	if close < open {
		return now >= open || now < close
	}
	return open <= now && now < close
}
