package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const summaryColumns = `ist_minute, instrument, expiry, underlying_price, total_net_gex, gamma_flip_level,
	otm_call_vega, otm_put_vega, otm_call_theta, otm_put_theta, otm_call_delta, otm_put_delta`

const summaryPlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12`

func summaryArgs(s *Summary) []interface{} {
	return []interface{}{
		s.ISTMinute, s.Instrument, s.Expiry, s.UnderlyingPrice, s.TotalNetGex, s.GammaFlipLevel,
		s.OtmCallVega, s.OtmPutVega, s.OtmCallTheta, s.OtmPutTheta, s.OtmCallDelta, s.OtmPutDelta,
	}
}

func scanSummary(rows pgx.Rows) (Summary, error) {
	var s Summary
	err := rows.Scan(
		&s.ISTMinute, &s.Instrument, &s.Expiry, &s.UnderlyingPrice, &s.TotalNetGex, &s.GammaFlipLevel,
		&s.OtmCallVega, &s.OtmPutVega, &s.OtmCallTheta, &s.OtmPutTheta, &s.OtmCallDelta, &s.OtmPutDelta,
	)
	return s, err
}

// ReplaceSummary removes any prior summary for the (instrument, expiry,
// minute) key and inserts the new one in a single transaction.
func (t *TimescaleDB) ReplaceSummary(ctx context.Context, s Summary) error {
	return t.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM oc_summaries WHERE instrument = $1 AND expiry = $2 AND ist_minute = $3`,
			s.Instrument, s.Expiry, s.ISTMinute); err != nil {
			return fmt.Errorf("failed to delete existing summary: %w", err)
		}

		if _, err := tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO oc_summaries (%s) VALUES (%s)", summaryColumns, summaryPlaceholders),
			summaryArgs(&s)...); err != nil {
			return fmt.Errorf("failed to insert summary: %w", err)
		}

		return nil
	})
}

// SummariesForDay loads all of a day's summaries across every expiry
func (t *TimescaleDB) SummariesForDay(ctx context.Context, instrument string, day time.Time) ([]Summary, error) {
	start, end := dayBounds(day)
	rows, err := t.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM oc_summaries
			WHERE instrument = $1 AND ist_minute >= $2 AND ist_minute < $3
			ORDER BY ist_minute ASC`, summaryColumns),
		instrument, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query day summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSummary returns the most recent short-term summary for an instrument
func (t *TimescaleDB) LatestSummary(ctx context.Context, instrument string) (*Summary, error) {
	rows, err := t.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM oc_summaries
			WHERE instrument = $1
			ORDER BY ist_minute DESC, expiry ASC LIMIT 1`, summaryColumns),
		instrument)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest summary: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSummary(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}
	return &s, nil
}

// SummariesBetween returns summaries in [from, to) from either store
func (t *TimescaleDB) SummariesBetween(ctx context.Context, historical bool, instrument string, from, to time.Time) ([]Summary, error) {
	table := "oc_summaries"
	if historical {
		table = "historical_oc_summaries"
	}

	rows, err := t.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s
			WHERE instrument = $1 AND ist_minute >= $2 AND ist_minute < $3
			ORDER BY ist_minute ASC`, summaryColumns, table),
		instrument, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary range: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
