package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gexpipe/core"
	"gexpipe/market"
	"gexpipe/utils"
)

func ist(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, utils.IST())
}

func TestDecideTarget(t *testing.T) {
	cal := market.NewCalendar([]string{"2026-08-28"}) // Friday holiday

	t.Run("after close audits today in short-term", func(t *testing.T) {
		got := DecideTarget(cal, ist(2026, 8, 27, 16, 0))
		assert.False(t, got.Skip)
		assert.False(t, got.Historical)
		assert.Equal(t, "2026-08-27", got.Day.Format("2006-01-02"))
	})

	t.Run("mid-session skips", func(t *testing.T) {
		got := DecideTarget(cal, ist(2026, 8, 27, 11, 0))
		assert.True(t, got.Skip)
	})

	t.Run("pre-market audits the prior trading day in historical", func(t *testing.T) {
		got := DecideTarget(cal, ist(2026, 8, 27, 8, 0))
		assert.False(t, got.Skip)
		assert.True(t, got.Historical)
		assert.Equal(t, "2026-08-26", got.Day.Format("2006-01-02"))
	})

	t.Run("weekend audits the last trading day in historical", func(t *testing.T) {
		got := DecideTarget(cal, ist(2026, 8, 30, 12, 0)) // Sunday
		assert.False(t, got.Skip)
		assert.True(t, got.Historical)
		// Saturday and the Friday holiday are skipped
		assert.Equal(t, "2026-08-27", got.Day.Format("2006-01-02"))
	})

	t.Run("holiday audits the last trading day in historical", func(t *testing.T) {
		got := DecideTarget(cal, ist(2026, 8, 28, 12, 0))
		assert.True(t, got.Historical)
		assert.Equal(t, "2026-08-27", got.Day.Format("2006-01-02"))
	})
}

type fakeChecker struct {
	present    map[string]bool
	historical []bool
	minutes    []time.Time
	err        error
}

func (f *fakeChecker) HasMinuteSnapshot(ctx context.Context, historical bool, instrument string, expiry, minute time.Time) (bool, error) {
	f.historical = append(f.historical, historical)
	f.minutes = append(f.minutes, minute)
	if f.err != nil {
		return false, f.err
	}
	return f.present[instrument+":"+expiry.Format(core.ExpiryFormat)], nil
}

type fakeExpirySource struct {
	expiries map[string][]string
}

func (f *fakeExpirySource) Expiries(ctx context.Context, inst core.Instrument) ([]string, error) {
	return f.expiries[inst.SecurityID], nil
}

type backfillRequest struct {
	instrument string
	expiry     string
	minute     time.Time
}

type fakeBackfill struct {
	requests []backfillRequest
}

func (f *fakeBackfill) RequestBackfill(ctx context.Context, inst core.Instrument, expiry string, minute time.Time) error {
	f.requests = append(f.requests, backfillRequest{inst.SecurityID, expiry, minute})
	return nil
}

func TestRunBackfillsMissingClosingSnapshots(t *testing.T) {
	cal := market.NewCalendar(nil)
	checker := &fakeChecker{present: map[string]bool{
		"NIFTY:2026-09-02": true,
	}}
	expiries := &fakeExpirySource{expiries: map[string][]string{
		"NIFTY":     {"2026-09-02", "2026-09-09"},
		"BANKNIFTY": {"2026-09-29"},
	}}
	backfill := &fakeBackfill{}

	a := NewAuditor(checker, expiries, backfill, cal, 5)
	err := a.Run(context.Background(), ist(2026, 8, 27, 16, 0))
	require.NoError(t, err)

	// One present, two missing
	require.Len(t, backfill.requests, 2)
	assert.Equal(t, "NIFTY", backfill.requests[0].instrument)
	assert.Equal(t, "2026-09-09", backfill.requests[0].expiry)
	assert.Equal(t, "BANKNIFTY", backfill.requests[1].instrument)

	// Backfills are always tagged with the 15:29 closing minute
	for _, req := range backfill.requests {
		assert.Equal(t, "15:29", req.minute.Format("15:04"))
	}

	// Same-day audit checks the short-term store at the exact closing minute
	for i, hist := range checker.historical {
		assert.False(t, hist)
		assert.Equal(t, "15:29", checker.minutes[i].Format("15:04"))
	}
}

func TestRunHistoricalTargetChecksClosingBucket(t *testing.T) {
	cal := market.NewCalendar(nil)
	checker := &fakeChecker{}
	expiries := &fakeExpirySource{expiries: map[string][]string{
		"NIFTY": {"2026-09-02"},
	}}
	backfill := &fakeBackfill{}

	a := NewAuditor(checker, expiries, backfill, cal, 5)
	// Sunday: target is Friday in the historical store
	err := a.Run(context.Background(), ist(2026, 8, 30, 12, 0))
	require.NoError(t, err)

	require.NotEmpty(t, checker.historical)
	assert.True(t, checker.historical[0])
	// Compaction restamps the 15:29 row to its 5-minute bucket start
	assert.Equal(t, "15:25", checker.minutes[0].Format("15:04"))

	// The backfill itself still targets the real closing minute
	require.Len(t, backfill.requests, 1)
	assert.Equal(t, "15:29", backfill.requests[0].minute.Format("15:04"))
	assert.Equal(t, "2026-08-28", backfill.requests[0].minute.Format("2006-01-02"))
}

func TestRunSkipsMidSession(t *testing.T) {
	cal := market.NewCalendar(nil)
	checker := &fakeChecker{}
	backfill := &fakeBackfill{}

	a := NewAuditor(checker, &fakeExpirySource{}, backfill, cal, 5)
	err := a.Run(context.Background(), ist(2026, 8, 27, 11, 0))

	require.NoError(t, err)
	assert.Empty(t, checker.historical)
	assert.Empty(t, backfill.requests)
}
