package prices

import (
	"time"

	"github.com/ternarybob/pulse/internal/models"
)

// DefaultLookbackDays is how many calendar days NearestDate inspects
const DefaultLookbackDays = 30

// NearestDate finds the close on target or the closest earlier date,
// inspecting at most lookbackDays calendar days starting at target.
func NearestDate(series models.PriceSeries, target time.Time, lookbackDays int) (string, float64, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	day := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < lookbackDays; i++ {
		key := day.AddDate(0, 0, -i).Format(models.DateFormat)
		if c, ok := series.Close(key); ok {
			return key, c, nil
		}
	}

	return "", 0, models.NewPriceError(models.ErrorKindNoDataForDate, series.Ticker,
		"no close within %d days before %s", lookbackDays, target.Format(models.DateFormat))
}
