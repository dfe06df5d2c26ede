package printer

import (
	"time"

	"github.com/dustin/go-humanize"
)

// TimeAgo returns the relative time of t, e.g. "3 minutes ago".
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// FormatTimestamp returns t in UTC as "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatBytes returns a human readable binary size, e.g. "1.5 KiB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatElapsed returns the time a wrapper took to finish, rounded to the second.
// Unfinished wrappers return "-".
func FormatElapsed(start time.Time, end *time.Time) string {
	if end == nil || start.IsZero() || end.Before(start) {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}
