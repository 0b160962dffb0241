// Package compactor migrates short-term per-minute data into the 5-minute
// historical store and purges the migrated days.
package compactor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gexpipe/db"
	"gexpipe/logger"
	"gexpipe/window"
)

// Store is the storage surface the sweep runs against. MigrateDay must be
// atomic per (instrument, day) pair.
type Store interface {
	ListActiveDays(ctx context.Context) ([]db.InstrumentDay, error)
	EarliestExpiryForDay(ctx context.Context, instrument string, day time.Time) (time.Time, bool, error)
	MinuteSnapshotsForDay(ctx context.Context, instrument string, expiry, day time.Time) ([]db.MinuteSnapshot, error)
	SummariesForDay(ctx context.Context, instrument string, day time.Time) ([]db.Summary, error)
	MigrateDay(ctx context.Context, instrument string, day time.Time, minutes []db.MinuteSnapshot, summaries []db.Summary) error
}

// Notifier receives the sweep completion message; may be nil
type Notifier interface {
	SendMessage(message string) error
}

type Compactor struct {
	store         Store
	notifier      Notifier
	bucketMinutes int
	log           *logger.Logger
}

func NewCompactor(store Store, notifier Notifier, bucketMinutes int) *Compactor {
	if bucketMinutes <= 0 {
		bucketMinutes = 5
	}
	return &Compactor{
		store:         store,
		notifier:      notifier,
		bucketMinutes: bucketMinutes,
		log:           logger.L(),
	}
}

// Sweep compacts every outstanding (instrument, day) pair. One pair's
// failure is logged and does not abort the rest of the sweep.
func (c *Compactor) Sweep(ctx context.Context) error {
	pairs, err := c.store.ListActiveDays(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate days for compaction: %w", err)
	}

	if len(pairs) == 0 {
		c.log.Info("Nothing to compact", nil)
		return nil
	}

	migrated, failed := 0, 0
	for _, pair := range pairs {
		if err := c.compactPair(ctx, pair); err != nil {
			failed++
			c.log.Error("Compaction failed for day", map[string]interface{}{
				"instrument": pair.Instrument,
				"day":        pair.Day.Format("2006-01-02"),
				"error":      err.Error(),
			})
			continue
		}
		migrated++
	}

	c.log.Info("Compaction sweep finished", map[string]interface{}{
		"pairs":    len(pairs),
		"migrated": migrated,
		"failed":   failed,
	})

	if c.notifier != nil {
		msg := fmt.Sprintf("Historical compaction: %d/%d instrument-days migrated", migrated, len(pairs))
		if err := c.notifier.SendMessage(msg); err != nil {
			c.log.Warn("Failed to send compaction notification", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return nil
}

// compactPair downsamples one instrument's day. Minute rows are restricted
// to the day's current (earliest observed) expiry; summaries cover every
// expiry observed that day.
func (c *Compactor) compactPair(ctx context.Context, pair db.InstrumentDay) error {
	var minutes []db.MinuteSnapshot

	currentExpiry, ok, err := c.store.EarliestExpiryForDay(ctx, pair.Instrument, pair.Day)
	if err != nil {
		return fmt.Errorf("failed to find current expiry: %w", err)
	}
	if ok {
		dayRows, err := c.store.MinuteSnapshotsForDay(ctx, pair.Instrument, currentExpiry, pair.Day)
		if err != nil {
			return fmt.Errorf("failed to load day minute rows: %w", err)
		}
		minutes = SelectMinuteBuckets(dayRows, c.bucketMinutes)
	}

	dailySummaries, err := c.store.SummariesForDay(ctx, pair.Instrument, pair.Day)
	if err != nil {
		return fmt.Errorf("failed to load day summaries: %w", err)
	}
	summaries := SelectSummaryBuckets(dailySummaries, c.bucketMinutes)

	return c.store.MigrateDay(ctx, pair.Instrument, pair.Day, minutes, summaries)
}

type minuteBucketKey struct {
	expiry time.Time
	strike float64
	bucket time.Time
}

// SelectMinuteBuckets picks, per (expiry, strike, bucket), the row with the
// latest original minute, ties broken by the most recent fetch timestamp,
// and restamps it to the bucket start.
func SelectMinuteBuckets(rows []db.MinuteSnapshot, bucketMinutes int) []db.MinuteSnapshot {
	selected := make(map[minuteBucketKey]db.MinuteSnapshot, len(rows))
	for _, row := range rows {
		key := minuteBucketKey{
			expiry: row.Expiry,
			strike: row.Strike,
			bucket: window.BucketStart(row.ISTMinute, bucketMinutes),
		}
		prev, ok := selected[key]
		if !ok || newerMinute(row.ISTMinute, row.Timestamp, prev.ISTMinute, prev.Timestamp) {
			selected[key] = row
		}
	}

	out := make([]db.MinuteSnapshot, 0, len(selected))
	for key, row := range selected {
		row.ISTMinute = key.bucket
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ISTMinute.Equal(out[j].ISTMinute) {
			return out[i].ISTMinute.Before(out[j].ISTMinute)
		}
		return out[i].Strike < out[j].Strike
	})
	return out
}

type summaryBucketKey struct {
	expiry time.Time
	bucket time.Time
}

// SelectSummaryBuckets picks, per (expiry, bucket), the summary with the
// latest original minute and restamps it to the bucket start.
func SelectSummaryBuckets(rows []db.Summary, bucketMinutes int) []db.Summary {
	selected := make(map[summaryBucketKey]db.Summary, len(rows))
	for _, row := range rows {
		key := summaryBucketKey{
			expiry: row.Expiry,
			bucket: window.BucketStart(row.ISTMinute, bucketMinutes),
		}
		prev, ok := selected[key]
		if !ok || row.ISTMinute.After(prev.ISTMinute) {
			selected[key] = row
		}
	}

	out := make([]db.Summary, 0, len(selected))
	for key, row := range selected {
		row.ISTMinute = key.bucket
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ISTMinute.Equal(out[j].ISTMinute) {
			return out[i].ISTMinute.Before(out[j].ISTMinute)
		}
		return out[i].Expiry.Before(out[j].Expiry)
	})
	return out
}

func newerMinute(minute, ts, prevMinute, prevTS time.Time) bool {
	if minute.After(prevMinute) {
		return true
	}
	if minute.Equal(prevMinute) && ts.After(prevTS) {
		return true
	}
	return false
}
