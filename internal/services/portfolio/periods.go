package portfolio

import (
	"fmt"
	"time"
)

// Period names accepted by GetOverallPortfolioPerformance
const (
	PeriodWeekly = "weekly"
	PeriodYTD    = "ytd"
	PeriodMTD    = "mtd"
)

// PeriodRange returns the [start, end] window of a named period ending at now.
// weekly starts 7 days back, ytd on January 1st and mtd on the 1st of the month.
func PeriodRange(period string, now time.Time) (time.Time, time.Time, error) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch period {
	case PeriodWeekly:
		return end.AddDate(0, 0, -7), end, nil
	case PeriodYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), end, nil
	case PeriodMTD:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q (expected weekly, ytd or mtd)", period)
	}
}
