package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"gexpipe/utils"
)

const minuteColumns = `timestamp, ist_minute, instrument, expiry, underlying_price, strike,
	call_delta, call_theta, call_gamma, call_vega, call_iv, call_oi, call_volume, call_last_price,
	put_delta, put_theta, put_gamma, put_vega, put_iv, put_oi, put_volume, put_last_price,
	call_gex, put_gex, net_gex, abs_gex`

const minutePlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26`

func minuteArgs(s *MinuteSnapshot) []interface{} {
	return []interface{}{
		s.Timestamp, s.ISTMinute, s.Instrument, s.Expiry, s.UnderlyingPrice, s.Strike,
		s.CallDelta, s.CallTheta, s.CallGamma, s.CallVega, s.CallIV, s.CallOI, s.CallVolume, s.CallLastPrice,
		s.PutDelta, s.PutTheta, s.PutGamma, s.PutVega, s.PutIV, s.PutOI, s.PutVolume, s.PutLastPrice,
		s.CallGex, s.PutGex, s.NetGex, s.AbsGex,
	}
}

func scanMinuteSnapshot(rows pgx.Rows) (MinuteSnapshot, error) {
	var s MinuteSnapshot
	err := rows.Scan(
		&s.Timestamp, &s.ISTMinute, &s.Instrument, &s.Expiry, &s.UnderlyingPrice, &s.Strike,
		&s.CallDelta, &s.CallTheta, &s.CallGamma, &s.CallVega, &s.CallIV, &s.CallOI, &s.CallVolume, &s.CallLastPrice,
		&s.PutDelta, &s.PutTheta, &s.PutGamma, &s.PutVega, &s.PutIV, &s.PutOI, &s.PutVolume, &s.PutLastPrice,
		&s.CallGex, &s.PutGex, &s.NetGex, &s.AbsGex,
	)
	return s, err
}

// dayBounds returns the [start, end) IST bounds of the calendar day holding d
func dayBounds(d time.Time) (time.Time, time.Time) {
	d = utils.ToIST(d)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, utils.IST())
	return start, start.AddDate(0, 0, 1)
}

// ReplaceMinuteSnapshots removes any prior rows for the
// (instrument, expiry, minute) key and inserts the new set in one
// transaction. Re-delivery of the same fetch therefore converges on the
// same final row set.
func (t *TimescaleDB) ReplaceMinuteSnapshots(ctx context.Context, instrument string, expiry, minute time.Time, rows []MinuteSnapshot) error {
	return t.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM oc_minute_snapshots WHERE instrument = $1 AND expiry = $2 AND ist_minute = $3`,
			instrument, expiry, minute)
		if err != nil {
			return fmt.Errorf("failed to delete existing minute rows: %w", err)
		}

		if tag.RowsAffected() > 0 {
			t.log.Debug("Deleted existing minute rows", map[string]interface{}{
				"instrument": instrument,
				"ist_minute": minute,
				"rows":       tag.RowsAffected(),
			})
		}

		batch := &pgx.Batch{}
		insertSQL := fmt.Sprintf("INSERT INTO oc_minute_snapshots (%s) VALUES (%s)", minuteColumns, minutePlaceholders)
		for i := range rows {
			batch.Queue(insertSQL, minuteArgs(&rows[i])...)
		}

		results := tx.SendBatch(ctx, batch)
		defer results.Close()
		for range rows {
			if _, err := results.Exec(); err != nil {
				return fmt.Errorf("failed to insert minute row: %w", err)
			}
		}

		return nil
	})
}

// GetMinuteSnapshots loads all rows for one (instrument, expiry, minute)
// key, ordered by strike ascending.
func (t *TimescaleDB) GetMinuteSnapshots(ctx context.Context, instrument string, expiry, minute time.Time) ([]MinuteSnapshot, error) {
	rows, err := t.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM oc_minute_snapshots
			WHERE instrument = $1 AND expiry = $2 AND ist_minute = $3
			ORDER BY strike ASC`, minuteColumns),
		instrument, expiry, minute)
	if err != nil {
		return nil, fmt.Errorf("failed to query minute rows: %w", err)
	}
	defer rows.Close()

	var out []MinuteSnapshot
	for rows.Next() {
		s, err := scanMinuteSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan minute row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MinuteSnapshotsForDay loads one expiry's minute rows across a full IST day
func (t *TimescaleDB) MinuteSnapshotsForDay(ctx context.Context, instrument string, expiry, day time.Time) ([]MinuteSnapshot, error) {
	start, end := dayBounds(day)
	rows, err := t.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM oc_minute_snapshots
			WHERE instrument = $1 AND expiry = $2 AND ist_minute >= $3 AND ist_minute < $4
			ORDER BY ist_minute ASC, strike ASC`, minuteColumns),
		instrument, expiry, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query day minute rows: %w", err)
	}
	defer rows.Close()

	var out []MinuteSnapshot
	for rows.Next() {
		s, err := scanMinuteSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan minute row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EarliestExpiryForDay finds the "current" expiry among a day's minute rows
func (t *TimescaleDB) EarliestExpiryForDay(ctx context.Context, instrument string, day time.Time) (time.Time, bool, error) {
	start, end := dayBounds(day)
	var expiry *time.Time
	err := t.pool.QueryRow(ctx,
		`SELECT min(expiry) FROM oc_minute_snapshots
			WHERE instrument = $1 AND ist_minute >= $2 AND ist_minute < $3`,
		instrument, start, end).Scan(&expiry)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query earliest expiry: %w", err)
	}
	if expiry == nil {
		return time.Time{}, false, nil
	}
	return *expiry, true, nil
}

// HasMinuteSnapshot reports whether any row exists for the key in the
// chosen store.
func (t *TimescaleDB) HasMinuteSnapshot(ctx context.Context, historical bool, instrument string, expiry, minute time.Time) (bool, error) {
	table := "oc_minute_snapshots"
	if historical {
		table = "historical_oc_snapshots"
	}

	var exists bool
	err := t.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s
			WHERE instrument = $1 AND expiry = $2 AND ist_minute = $3)`, table),
		instrument, expiry, minute).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return exists, nil
}
