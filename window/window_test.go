package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gexpipe/utils"
)

func TestATMStrike(t *testing.T) {
	assert.Equal(t, 22450.0, ATMStrike(22430, 50))
	assert.Equal(t, 22400.0, ATMStrike(22420, 50))
	// Halfway rounds up
	assert.Equal(t, 22450.0, ATMStrike(22425, 50))
	assert.Equal(t, 48200.0, ATMStrike(48249.9, 100))
	assert.Equal(t, 48300.0, ATMStrike(48250, 100))
}

func TestAcceptBand(t *testing.T) {
	low, high := AcceptBand(22450, 50, 40)
	assert.Equal(t, 20450.0, low)
	assert.Equal(t, 24450.0, high)

	// Band boundaries are inclusive
	assert.True(t, InBand(20450, low, high))
	assert.True(t, InBand(24450, low, high))
	assert.False(t, InBand(20400, low, high))
	assert.False(t, InBand(24500, low, high))
}

func TestFloorToMinute(t *testing.T) {
	ts := time.Date(2026, 8, 28, 10, 17, 42, 123456789, utils.IST())
	floored := FloorToMinute(ts)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 17, 0, 0, utils.IST()), floored)
}

func TestBucketStart(t *testing.T) {
	cases := []struct {
		minute   int
		expected int
	}{
		{0, 0},
		{4, 0},
		{5, 5},
		{17, 15},
		{29, 25},
		{59, 55},
	}
	for _, tc := range cases {
		ts := time.Date(2026, 8, 28, 15, tc.minute, 30, 0, utils.IST())
		got := BucketStart(ts, 5)
		assert.Equal(t, tc.expected, got.Minute(), "minute %d", tc.minute)
		assert.Equal(t, 15, got.Hour())
		assert.Equal(t, 0, got.Second())
	}
}
