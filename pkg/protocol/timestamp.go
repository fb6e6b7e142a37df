package protocol

import "time"

// secondsThreshold separates second-based from millisecond-based epoch
// values. 10_000_000_000 seconds is in the year 2286, and the same number
// of milliseconds is in April 1970.
const secondsThreshold = 10_000_000_000

// NormalizeTimestamp converts an epoch value of ambiguous unit to milliseconds.
func NormalizeTimestamp(ts int64) int64 {
	if ts < secondsThreshold {
		return ts * 1000
	}
	return ts
}

// FormatTimestamp renders a timestamp relative to now:
// today as 15:04:05, yesterday with a prefix, this year without the year.
func FormatTimestamp(ts int64, now time.Time) string {
	t := time.UnixMilli(NormalizeTimestamp(ts)).In(now.Location())

	y, m, d := t.Date()
	ny, nm, nd := now.Date()
	switch {
	case y == ny && m == nm && d == nd:
		return t.Format("15:04:05")
	case sameDay(t, now.AddDate(0, 0, -1)):
		return "yesterday " + t.Format("15:04:05")
	case y == ny:
		return t.Format("01-02 15:04:05")
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
