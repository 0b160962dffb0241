// Package audit verifies the close-of-day snapshot exists for every
// tracked (instrument, expiry) and requests a backfill fetch when it is
// missing.
package audit

import (
	"context"
	"time"

	"gexpipe/core"
	"gexpipe/logger"
	"gexpipe/market"
	"gexpipe/utils"
)

// SnapshotChecker answers whether a minute row exists in the chosen store
type SnapshotChecker interface {
	HasMinuteSnapshot(ctx context.Context, historical bool, instrument string, expiry, minute time.Time) (bool, error)
}

// ExpirySource supplies the ordered upcoming expiries for an instrument,
// already limited to the instrument's configured count.
type ExpirySource interface {
	Expiries(ctx context.Context, inst core.Instrument) ([]string, error)
}

// BackfillRequester triggers a fresh fetch tagged with the closing minute,
// so the resulting ingestion fills the gap.
type BackfillRequester interface {
	RequestBackfill(ctx context.Context, inst core.Instrument, expiry string, minute time.Time) error
}

type Auditor struct {
	store         SnapshotChecker
	expiries      ExpirySource
	backfill      BackfillRequester
	calendar      *market.Calendar
	bucketMinutes int
	log           *logger.Logger
}

func NewAuditor(store SnapshotChecker, expiries ExpirySource, backfill BackfillRequester, cal *market.Calendar, bucketMinutes int) *Auditor {
	if bucketMinutes <= 0 {
		bucketMinutes = 5
	}
	return &Auditor{
		store:         store,
		expiries:      expiries,
		backfill:      backfill,
		calendar:      cal,
		bucketMinutes: bucketMinutes,
		log:           logger.L(),
	}
}

// Target is the audit decision: which trading day to audit and which store
// should currently hold that day's closing row.
type Target struct {
	Skip       bool
	Day        time.Time
	Historical bool
}

// DecideTarget applies the calendar rules. Pre-market on a trading day and
// non-trading days audit the prior trading day in the historical store
// (compaction has already run); mid-session is skipped; after the close the
// target is today in the short-term store.
func DecideTarget(cal *market.Calendar, now time.Time) Target {
	now = utils.ToIST(now)

	if !cal.IsTradingDay(now) {
		return Target{Day: cal.LastTradingDay(now), Historical: true}
	}
	if cal.IsPreMarket(now) {
		return Target{Day: cal.LastTradingDay(now.AddDate(0, 0, -1)), Historical: true}
	}
	if !cal.IsAfterClose(now) {
		return Target{Skip: true}
	}
	return Target{Day: now, Historical: false}
}

// Run performs one audit pass. Failures for one (instrument, expiry) are
// logged and do not stop the rest of the audit.
func (a *Auditor) Run(ctx context.Context, now time.Time) error {
	target := DecideTarget(a.calendar, now)
	if target.Skip {
		a.log.Debug("Closing audit skipped mid-session", nil)
		return nil
	}

	expected := market.ClosingMinute(target.Day)
	if target.Historical {
		// Compaction restamps rows to the bucket start
		expected = market.ClosingBucket(target.Day, a.bucketMinutes)
	}

	a.log.Info("Running closing snapshot audit", map[string]interface{}{
		"target_day": target.Day.Format("2006-01-02"),
		"store":      storeName(target.Historical),
		"expected":   expected.Format("2006-01-02 15:04"),
	})

	for _, inst := range core.GetInstruments().GetAll() {
		expiries, err := a.expiries.Expiries(ctx, inst)
		if err != nil {
			a.log.Error("Failed to fetch expiries for audit", map[string]interface{}{
				"instrument": inst.SecurityID,
				"error":      err.Error(),
			})
			continue
		}

		if len(expiries) == 0 {
			a.log.Warn("No valid expiries to audit", map[string]interface{}{
				"instrument": inst.SecurityID,
			})
			continue
		}

		for _, expiry := range expiries {
			a.auditExpiry(ctx, inst, expiry, target, expected)
		}
	}

	return nil
}

func (a *Auditor) auditExpiry(ctx context.Context, inst core.Instrument, expiry string, target Target, expected time.Time) {
	expiryDate, err := time.ParseInLocation(core.ExpiryFormat, expiry, utils.IST())
	if err != nil {
		a.log.Error("Invalid expiry in audit", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"error":      err.Error(),
		})
		return
	}

	exists, err := a.store.HasMinuteSnapshot(ctx, target.Historical, inst.SecurityID, expiryDate, expected)
	if err != nil {
		a.log.Error("Failed to check closing snapshot", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"error":      err.Error(),
		})
		return
	}

	if exists {
		a.log.Debug("Closing snapshot present", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
		})
		return
	}

	a.log.Warn("Closing snapshot missing, requesting backfill", map[string]interface{}{
		"instrument": inst.SecurityID,
		"expiry":     expiry,
		"expected":   expected.Format("2006-01-02 15:04"),
		"store":      storeName(target.Historical),
	})

	if err := a.backfill.RequestBackfill(ctx, inst, expiry, market.ClosingMinute(target.Day)); err != nil {
		a.log.Error("Backfill request failed", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"error":      err.Error(),
		})
	}
}

func storeName(historical bool) string {
	if historical {
		return "historical"
	}
	return "short-term"
}
