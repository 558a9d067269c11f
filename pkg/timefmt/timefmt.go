// Package timefmt parses and formats the engine's canonical timestamp
// representation: ISO datetimes with microsecond precision, always UTC.
package timefmt

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrMalformedTimestamp reports an input that is not a canonical
// "YYYY-MM-DD HH:MM:SS[.ffffff]" datetime.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

const layout = "2006-01-02 15:04:05"

var timestampRE = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})(?:\.(\d+))?$`)

// Parse interprets s as a UTC instant. The fractional second part, when
// present, is truncated to microseconds.
func Parse(s string) (time.Time, error) {
	m := timestampRE.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	t, err := time.ParseInLocation(layout, m[1], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	if m[2] != "" {
		frac := m[2]
		if len(frac) > 6 {
			frac = frac[:6]
		}
		for len(frac) < 6 {
			frac += "0"
		}
		micros, err := strconv.Atoi(frac)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		t = t.Add(time.Duration(micros) * time.Microsecond)
	}
	return t, nil
}

// Format renders t as "YYYY-MM-DD HH:MM:SS.uuuuuu" in UTC, microseconds
// zero-padded to six digits. The explicit suffix avoids subsecond rounding
// ambiguity when the driver re-parses the literal.
func Format(t time.Time) string {
	u := t.UTC()
	return fmt.Sprintf("%s.%06d", u.Format(layout), u.Nanosecond()/1000)
}
