package prices

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/pulse/internal/models"
)

func TestNearestDate(t *testing.T) {
	series := seriesOf("AAPL", map[string]float64{
		"2024-01-05": 181.18, // Friday
		"2024-01-08": 185.56, // Monday
	})

	tests := []struct {
		name      string
		target    string
		wantDate  string
		wantClose float64
	}{
		{name: "exact date", target: "2024-01-08", wantDate: "2024-01-08", wantClose: 185.56},
		{name: "saturday resolves to friday", target: "2024-01-06", wantDate: "2024-01-05", wantClose: 181.18},
		{name: "sunday resolves to friday", target: "2024-01-07", wantDate: "2024-01-05", wantClose: 181.18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c, err := NearestDate(series, date(tt.target), 30)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, d)
			assert.Equal(t, tt.wantClose, c)
		})
	}
}

func TestNearestDate_WindowExhausted(t *testing.T) {
	series := seriesOf("AAPL", map[string]float64{"2024-01-01": 100})

	// 2024-01-31 minus 29 days is 2024-01-02, one day short
	_, _, err := NearestDate(series, date("2024-01-31"), 30)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNoDataForDate))

	d, _, err := NearestDate(series, date("2024-01-30"), 30)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", d)
}
