package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ListActiveDays enumerates every (instrument, IST day) pair with
// outstanding short-term data, as a grouped query over the
// (instrument, ist_minute) indexes rather than a table scan.
func (t *TimescaleDB) ListActiveDays(ctx context.Context) ([]InstrumentDay, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT instrument, day FROM (
			SELECT instrument, (ist_minute AT TIME ZONE 'Asia/Kolkata')::date AS day
				FROM oc_minute_snapshots GROUP BY 1, 2
			UNION
			SELECT instrument, (ist_minute AT TIME ZONE 'Asia/Kolkata')::date AS day
				FROM oc_summaries GROUP BY 1, 2
		) pairs ORDER BY instrument, day`)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate active days: %w", err)
	}
	defer rows.Close()

	var out []InstrumentDay
	for rows.Next() {
		var d InstrumentDay
		if err := rows.Scan(&d.Instrument, &d.Day); err != nil {
			return nil, fmt.Errorf("failed to scan active day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MigrateDay commits one (instrument, day) compaction as a single unit:
// the selected 5-minute rows go into the historical tables (existing
// historical rows win) and the day's short-term rows are purged. A failure
// rolls back both halves together.
func (t *TimescaleDB) MigrateDay(ctx context.Context, instrument string, day time.Time, minutes []MinuteSnapshot, summaries []Summary) error {
	start, end := dayBounds(day)

	return t.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		minuteSQL := fmt.Sprintf(
			`INSERT INTO historical_oc_snapshots (%s) VALUES (%s)
				ON CONFLICT (instrument, expiry, strike, ist_minute) DO NOTHING`,
			minuteColumns, minutePlaceholders)
		for i := range minutes {
			batch.Queue(minuteSQL, minuteArgs(&minutes[i])...)
		}

		summarySQL := fmt.Sprintf(
			`INSERT INTO historical_oc_summaries (%s) VALUES (%s)
				ON CONFLICT (instrument, expiry, ist_minute) DO NOTHING`,
			summaryColumns, summaryPlaceholders)
		for i := range summaries {
			batch.Queue(summarySQL, summaryArgs(&summaries[i])...)
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < len(minutes)+len(summaries); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("failed to insert historical row: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("failed to close historical batch: %w", err)
		}

		minuteTag, err := tx.Exec(ctx,
			`DELETE FROM oc_minute_snapshots
				WHERE instrument = $1 AND ist_minute >= $2 AND ist_minute < $3`,
			instrument, start, end)
		if err != nil {
			return fmt.Errorf("failed to purge minute rows: %w", err)
		}

		summaryTag, err := tx.Exec(ctx,
			`DELETE FROM oc_summaries
				WHERE instrument = $1 AND ist_minute >= $2 AND ist_minute < $3`,
			instrument, start, end)
		if err != nil {
			return fmt.Errorf("failed to purge summaries: %w", err)
		}

		t.log.Info("Migrated day to historical store", map[string]interface{}{
			"instrument":     instrument,
			"day":            start.Format("2006-01-02"),
			"minute_rows":    len(minutes),
			"summary_rows":   len(summaries),
			"purged_minutes": minuteTag.RowsAffected(),
			"purged_summary": summaryTag.RowsAffected(),
		})

		return nil
	})
}
