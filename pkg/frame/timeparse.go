package frame

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sferrors "github.com/safefeat/safefeat/internal/errors"
)

// timestampLayouts are tried in order when parsing string cells into
// timestamps. All string timestamps are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp converts a cell value into a time.Time. time.Time cells
// pass through unchanged; string cells are parsed against the supported
// layouts; int64/float64 cells are treated as Unix seconds.
func ParseTimestamp(v interface{}) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.ParseInLocation(layout, val, time.UTC); err == nil {
				return ts, nil
			}
		}
		return time.Time{}, sferrors.NewParseError(sferrors.CodeBadTimestamp,
			fmt.Sprintf("cannot parse timestamp %q", val), nil)
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case float64:
		sec := int64(val)
		nsec := int64((val - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), nil
	case nil:
		return time.Time{}, sferrors.NewParseError(sferrors.CodeBadTimestamp,
			"cannot parse nil timestamp", nil)
	}
	return time.Time{}, sferrors.NewParseError(sferrors.CodeBadTimestamp,
		fmt.Sprintf("cannot parse timestamp from %T", v), nil)
}

// durationPattern matches offset strings like "30D", "2w", "15min", "1.5h".
var durationPattern = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*(D|d|W|w|min|h|m|s|ms)$`)

// ParseDuration parses a time-offset string. Day ("30D") and week ("2W")
// units extend the units understood by time.ParseDuration; composite
// forms like "1h30m" fall through to the standard parser. A day is a
// fixed 24 hours.
func ParseDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if m := durationPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, sferrors.NewParseError(sferrors.CodeBadDuration,
				fmt.Sprintf("cannot parse duration %q", s), err)
		}
		var unit time.Duration
		switch m[2] {
		case "D", "d":
			unit = 24 * time.Hour
		case "W", "w":
			unit = 7 * 24 * time.Hour
		case "min", "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		case "s":
			unit = time.Second
		case "ms":
			unit = time.Millisecond
		}
		return time.Duration(n * float64(unit)), nil
	}
	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, sferrors.NewParseError(sferrors.CodeBadDuration,
			fmt.Sprintf("cannot parse duration %q", s), err)
	}
	return d, nil
}

// ParseNonNegativeDuration parses a time-offset string and rejects
// negative values. Used for windows and the allowed lag.
func ParseNonNegativeDuration(s string) (time.Duration, error) {
	d, err := ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, sferrors.NewSpecError(sferrors.CodeNegativeDuration,
			fmt.Sprintf("duration %q must be non-negative", s))
	}
	return d, nil
}

// WindowLabel returns the feature-name form of a window string ("30D"
// becomes "30d").
func WindowLabel(window string) string {
	return strings.ToLower(strings.TrimSpace(window))
}
