package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodRange(t *testing.T) {
	now := time.Date(2024, time.March, 13, 15, 4, 5, 0, time.UTC)

	tests := []struct {
		period    string
		wantStart string
	}{
		{period: PeriodWeekly, wantStart: "2024-03-06"},
		{period: PeriodYTD, wantStart: "2024-01-01"},
		{period: PeriodMTD, wantStart: "2024-03-01"},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			start, end, err := PeriodRange(tt.period, now)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start.Format("2006-01-02"))
			assert.Equal(t, "2024-03-13", end.Format("2006-01-02"))
		})
	}

	_, _, err := PeriodRange("quarterly", now)
	assert.Error(t, err)
}

func TestCompanyName(t *testing.T) {
	assert.Equal(t, "Alphabet Inc.", CompanyName("GOOGL"))
	assert.Equal(t, "Berkshire Hathaway Inc.", CompanyName("BRK-B"))
	assert.Equal(t, "Berkshire Hathaway Inc.", CompanyName("brk.b"))
	assert.Equal(t, "DHEIX", CompanyName("DHEIX"))

	_, ok := LookupCompanyName("DHEIX")
	assert.False(t, ok)
	name, ok := LookupCompanyName("brk/b")
	assert.True(t, ok)
	assert.Equal(t, "Berkshire Hathaway Inc.", name)
}
