package scheduler

import (
	"context"
	"time"

	"gexpipe/audit"
	"gexpipe/compactor"
	"gexpipe/fetcher"
	"gexpipe/market"
	"gexpipe/utils"
)

// InitializeFetchPolling schedules the upstream fetch cycle, gated on
// market hours. The closing-audit backfill path runs separately.
func InitializeFetchPolling(f *fetcher.Fetcher, cal *market.Calendar, interval time.Duration) {
	GetScheduler().AddTask(&Task{
		Name:     "OptionChainFetch",
		Interval: interval,
		Execute: func(ctx context.Context) error {
			if !cal.IsMarketOpen(utils.NowIST()) {
				return nil
			}
			return f.RunCycle(ctx)
		},
	})
}

// InitializeHistoricalCompaction schedules the daily compaction sweep
func InitializeHistoricalCompaction(c *compactor.Compactor, cal *market.Calendar, interval time.Duration) {
	GetScheduler().AddTask(&Task{
		Name:     "HistoricalCompaction",
		Interval: interval,
		Execute: func(ctx context.Context) error {
			if !compactionWindowOpen(cal, utils.NowIST()) {
				return nil
			}
			return c.Sweep(ctx)
		},
	})
}

// compactionWindowOpen restricts the sweep to non-trading days and the
// pre-open hours of trading days. Mid-session a sweep would purge the live
// day; post-close the closing audit still expects the finished day in the
// short-term store.
func compactionWindowOpen(cal *market.Calendar, now time.Time) bool {
	if !cal.IsTradingDay(now) {
		return true
	}
	return cal.IsPreMarket(now)
}

// InitializeClosingAudit schedules the closing-snapshot audit
func InitializeClosingAudit(a *audit.Auditor, interval time.Duration) {
	GetScheduler().AddTask(&Task{
		Name:     "ClosingSnapshotAudit",
		Interval: interval,
		Execute: func(ctx context.Context) error {
			return a.Run(ctx, utils.NowIST())
		},
	})
}
