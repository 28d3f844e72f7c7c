package payroll

import (
	"time"

	"paystub/internal/domain/tax"
)

// NextPayDate projects the following pay date from the current one.
// Semimonthly pays fall on the 15th and the last day of the month; monthly
// pays keep the day of month, clamped to shorter months.
func NextPayDate(current Date, frequency tax.PayFrequency) Date {
	if current.IsZero() {
		return Date{}
	}
	y, m, d := current.Date()
	switch frequency {
	case tax.Weekly:
		return Date{current.AddDate(0, 0, 7)}
	case tax.Biweekly:
		return Date{current.AddDate(0, 0, 14)}
	case tax.Semimonthly:
		if d < 15 {
			return NewDate(y, m, 15)
		}
		if d < lastDay(y, m) {
			return NewDate(y, m, lastDay(y, m))
		}
		ny, nm := nextMonth(y, m)
		return NewDate(ny, nm, 15)
	case tax.Monthly:
		ny, nm := nextMonth(y, m)
		if last := lastDay(ny, nm); d > last {
			d = last
		}
		return NewDate(ny, nm, d)
	}
	return Date{}
}

func nextMonth(y int, m time.Month) (int, time.Month) {
	if m == time.December {
		return y + 1, time.January
	}
	return y, m + 1
}

func lastDay(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
