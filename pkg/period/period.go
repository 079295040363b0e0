package period

import "time"

// MonthStart returns the first instant (00:00:00.000) of now's calendar month in UTC.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first instant of the calendar month following now, in UTC.
// AddDate handles year rollover and variable month lengths, including leap February.
func NextMonthStart(now time.Time) time.Time {
	return MonthStart(now).AddDate(0, 1, 0)
}

// NeedsReset reports whether a counter last reset at lastResetAt is due for a
// reset in the month containing now. A nil lastResetAt always needs a reset.
// Any lastResetAt on or after the current month boundary means no reset, which
// also covers clock skew where lastResetAt sits in the future.
func NeedsReset(lastResetAt *time.Time, now time.Time) bool {
	if lastResetAt == nil {
		return true
	}
	return lastResetAt.UTC().Before(MonthStart(now))
}
