package watermark

import (
	"strconv"
	"strings"
	"time"
)

// watermark columns carry either timestamps or numeric sequence values;
// both orderings must survive the round-trip through their string form.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Compare orders two watermark values. Timestamps compare as times,
// numeric values compare numerically, anything else lexicographically.
func Compare(a, b string) int {
	if ta, ok := parseTime(a); ok {
		if tb, ok := parseTime(b); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}
	if fa, errA := strconv.ParseFloat(a, 64); errA == nil {
		if fb, errB := strconv.ParseFloat(b, 64); errB == nil {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(a, b)
}

// Max returns the greatest watermark value observed, or "" for no values.
func Max(values []string) string {
	max := ""
	for _, v := range values {
		if v == "" {
			continue
		}
		if max == "" || Compare(v, max) > 0 {
			max = v
		}
	}
	return max
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
