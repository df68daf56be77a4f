package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vjeantet/jodaTime"
)

// dateFormat is a compiled date pattern. Patterns such as
// "yyyy-MM-dd HH:mm:ss" use Joda letters; strings that already look like Go
// layouts are used as is. The zero value means RFC 3339.
type dateFormat struct {
	pattern string
	layout  bool
}

// dateSampleTime is formatted and parsed back to validate a pattern.
var dateSampleTime = time.Date(2006, time.January, 2, 15, 4, 5, 0, time.UTC)

// compileDateFormat validates format.
func compileDateFormat(format string) (dateFormat, error) {
	if format == "" {
		return dateFormat{}, nil
	}
	if strings.Contains(format, "2006") || strings.Contains(format, "15:04") {
		return dateFormat{pattern: format, layout: true}, nil
	}
	df := dateFormat{pattern: format}
	if _, err := df.parse(df.format(dateSampleTime)); err != nil {
		return dateFormat{}, fmt.Errorf("date format %q: %w", format, err)
	}
	return df, nil
}

func (f dateFormat) parse(s string) (time.Time, error) {
	switch {
	case f.pattern == "":
		return time.Parse(time.RFC3339, s)
	case f.layout:
		return time.ParseInLocation(f.pattern, s, time.UTC)
	}
	return jodaTime.Parse(f.pattern, s)
}

func (f dateFormat) format(t time.Time) string {
	t = t.UTC()
	switch {
	case f.pattern == "":
		return t.Format(time.RFC3339)
	case f.layout:
		return t.Format(f.pattern)
	}
	return jodaTime.Format(f.pattern, t)
}

// parseDate reads an external date into epoch milliseconds. Without a
// format RFC 3339 strings and numeric epoch milliseconds are accepted.
func parseDate(v any, f dateFormat) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		if f.pattern == "" {
			if ms, err := strconv.ParseInt(x, 10, 64); err == nil {
				return float64(ms), nil
			}
		}
		t, err := f.parse(x)
		if err != nil {
			return 0, err
		}
		return float64(t.UnixMilli()), nil
	}
	return 0, fmt.Errorf("unsupported date value %T", v)
}

func formatDate(ms float64, f dateFormat) string {
	return f.format(time.UnixMilli(int64(ms)))
}
