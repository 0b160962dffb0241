package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gexpipe/utils"
)

func ist(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, utils.IST())
}

func TestIsTradingDay(t *testing.T) {
	cal := NewCalendar([]string{"2026-08-28"})

	// 2026-08-28 is a Friday but listed as a holiday
	assert.False(t, cal.IsTradingDay(ist(2026, 8, 28, 12, 0)))
	// Thursday before
	assert.True(t, cal.IsTradingDay(ist(2026, 8, 27, 12, 0)))
	// Weekend
	assert.False(t, cal.IsTradingDay(ist(2026, 8, 29, 12, 0)))
	assert.False(t, cal.IsTradingDay(ist(2026, 8, 30, 12, 0)))
}

func TestLastTradingDay(t *testing.T) {
	cal := NewCalendar([]string{"2026-08-28"})

	// Sunday walks back over Saturday and the Friday holiday to Thursday
	got := cal.LastTradingDay(ist(2026, 8, 30, 9, 0))
	assert.Equal(t, "2026-08-27", got.Format("2006-01-02"))

	// A trading day is its own last trading day
	got = cal.LastTradingDay(ist(2026, 8, 27, 9, 0))
	assert.Equal(t, "2026-08-27", got.Format("2006-01-02"))
}

func TestMarketHours(t *testing.T) {
	cal := NewCalendar(nil)
	day := ist(2026, 8, 27, 0, 0) // Thursday

	assert.False(t, cal.IsMarketOpen(ist(2026, 8, 27, 9, 14)))
	assert.True(t, cal.IsMarketOpen(ist(2026, 8, 27, 9, 15)))
	assert.True(t, cal.IsMarketOpen(ist(2026, 8, 27, 15, 30)))
	assert.False(t, cal.IsMarketOpen(ist(2026, 8, 27, 15, 31)))

	assert.True(t, cal.IsPreMarket(ist(2026, 8, 27, 9, 14)))
	assert.False(t, cal.IsPreMarket(ist(2026, 8, 27, 9, 15)))

	assert.False(t, cal.IsAfterClose(ist(2026, 8, 27, 15, 30)))
	assert.True(t, cal.IsAfterClose(ist(2026, 8, 27, 15, 31)))

	closing := ClosingMinute(day)
	assert.Equal(t, 15, closing.Hour())
	assert.Equal(t, 29, closing.Minute())

	bucket := ClosingBucket(day, 5)
	assert.Equal(t, 15, bucket.Hour())
	assert.Equal(t, 25, bucket.Minute())
}
