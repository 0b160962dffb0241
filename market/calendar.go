// Package market answers trading-calendar questions: trading days,
// market hours and the closing-snapshot minute, all in IST.
package market

import (
	"time"

	"gexpipe/utils"
	"gexpipe/window"
)

// NSE session boundaries (IST)
var (
	openTime      = clock{9, 15}
	closeTime     = clock{15, 30}
	closingMinute = clock{15, 29}
)

type clock struct {
	hour, minute int
}

// Calendar decides trading days from the weekday rule plus a holiday list
type Calendar struct {
	holidays map[string]struct{}
}

// NewCalendar builds a Calendar from YYYY-MM-DD holiday strings
func NewCalendar(holidays []string) *Calendar {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[h] = struct{}{}
	}
	return &Calendar{holidays: set}
}

// IsTradingDay reports whether d is a weekday and not a listed holiday
func (c *Calendar) IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := c.holidays[d.Format("2006-01-02")]
	return !holiday
}

// LastTradingDay returns the most recent trading day on or before d
func (c *Calendar) LastTradingDay(d time.Time) time.Time {
	for !c.IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// IsMarketOpen reports whether now falls inside the trading session
func (c *Calendar) IsMarketOpen(now time.Time) bool {
	now = utils.ToIST(now)
	if !c.IsTradingDay(now) {
		return false
	}
	t := now.Hour()*60 + now.Minute()
	return t >= openTime.minutes() && t <= closeTime.minutes()
}

// IsPreMarket reports whether now is before the session open
func (c *Calendar) IsPreMarket(now time.Time) bool {
	now = utils.ToIST(now)
	return now.Hour()*60+now.Minute() < openTime.minutes()
}

// IsAfterClose reports whether now is past the session close
func (c *Calendar) IsAfterClose(now time.Time) bool {
	now = utils.ToIST(now)
	return now.Hour()*60+now.Minute() > closeTime.minutes()
}

// ClosingMinute returns the expected closing-snapshot minute (15:29 IST)
// for the given day.
func ClosingMinute(day time.Time) time.Time {
	day = utils.ToIST(day)
	return time.Date(day.Year(), day.Month(), day.Day(),
		closingMinute.hour, closingMinute.minute, 0, 0, utils.IST())
}

// ClosingBucket returns the 5-minute bucket holding the closing minute,
// which is where compaction files the closing row.
func ClosingBucket(day time.Time, bucketMinutes int) time.Time {
	return window.BucketStart(ClosingMinute(day), bucketMinutes)
}

func (c clock) minutes() int {
	return c.hour*60 + c.minute
}
