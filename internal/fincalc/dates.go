package fincalc

import "time"

// AddMonths adds n calendar months preserving the day of month, clamped to
// the last day when the target month is shorter (Jan 31 + 1 month = Feb 28,
// not Mar 3 as time.AddDate would produce).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysInMonth(firstOfTarget); d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}

// DaysBetween returns the whole calendar days from a to b (negative when b
// precedes a). Time-of-day is ignored.
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// MonthsBetween returns the number of whole calendar-month boundaries from
// a to b (negative when b precedes a). Days of month are ignored: Jan 31 to
// Feb 1 is one month.
func MonthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// ReferenceMonth formats a date as the YYYY-MM key used by the rate-history
// provider.
func ReferenceMonth(t time.Time) string {
	return t.Format("2006-01")
}
