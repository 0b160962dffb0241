// Package summary reduces one minute's snapshot rows into a single summary
// row with the gamma-flip level.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"

	"gexpipe/core"
	"gexpipe/db"
	"gexpipe/logger"
	"gexpipe/queue"
	"gexpipe/utils"
	"gexpipe/window"
)

// Store provides the minute rows and persists the summary replace-style
type Store interface {
	GetMinuteSnapshots(ctx context.Context, instrument string, expiry, minute time.Time) ([]db.MinuteSnapshot, error)
	ReplaceSummary(ctx context.Context, s db.Summary) error
}

type Aggregator struct {
	store Store
	log   *logger.Logger
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		log:   logger.L(),
	}
}

// Aggregate summarizes one (instrument, expiry, minute) key. No rows is a
// no-op, not an error: compaction may legitimately have purged the minute.
func (a *Aggregator) Aggregate(ctx context.Context, inst core.Instrument, expiry, minute time.Time) error {
	rows, err := a.store.GetMinuteSnapshots(ctx, inst.SecurityID, expiry, minute)
	if err != nil {
		return fmt.Errorf("failed to load minute rows for %s (%s) at %s: %w",
			inst.SecurityID, expiry.Format(core.ExpiryFormat), minute.Format("15:04"), err)
	}

	if len(rows) == 0 {
		a.log.Warn("No minute rows to summarize", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry.Format(core.ExpiryFormat),
			"ist_minute": minute.Format("2006-01-02 15:04"),
		})
		return nil
	}

	s := Compute(rows, inst.StrikeRange)
	s.Instrument = inst.SecurityID
	s.Expiry = expiry
	s.ISTMinute = minute

	if err := a.store.ReplaceSummary(ctx, s); err != nil {
		return fmt.Errorf("failed to persist summary for %s (%s) at %s: %w",
			inst.SecurityID, expiry.Format(core.ExpiryFormat), minute.Format("15:04"), err)
	}

	a.log.Info("Computed summary", map[string]interface{}{
		"instrument":    inst.SecurityID,
		"expiry":        expiry.Format(core.ExpiryFormat),
		"ist_minute":    minute.Format("2006-01-02 15:04"),
		"total_net_gex": s.TotalNetGex,
		"gamma_flip":    fmtFlip(s.GammaFlipLevel),
	})

	return nil
}

// Compute derives the summary aggregates from one minute's rows. All rows
// share the minute's underlying price, so the ATM strike is recomputed from
// the first row. The gamma-flip level is the smallest strike, ascending, at
// which the running net GEX sum first reaches zero or above.
func Compute(rows []db.MinuteSnapshot, strikeRange float64) db.Summary {
	sorted := make([]db.MinuteSnapshot, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Strike < sorted[j].Strike })

	underlying := sorted[0].UnderlyingPrice
	atm := window.ATMStrike(underlying, strikeRange)

	s := db.Summary{
		UnderlyingPrice: underlying,
	}

	cumNetGex := 0.0
	for i := range sorted {
		row := &sorted[i]

		s.TotalNetGex += row.NetGex

		if s.GammaFlipLevel == nil {
			cumNetGex += row.NetGex
			if cumNetGex >= 0 {
				flip := row.Strike
				s.GammaFlipLevel = &flip
			}
		}

		if row.Strike >= atm {
			s.OtmCallVega += deref(row.CallVega)
			s.OtmCallTheta += deref(row.CallTheta)
			s.OtmCallDelta += deref(row.CallDelta)
		}
		if row.Strike <= atm {
			s.OtmPutVega += deref(row.PutVega)
			s.OtmPutTheta += deref(row.PutTheta)
			s.OtmPutDelta += deref(row.PutDelta)
		}
	}

	return s
}

// HandleTask is the asynq handler for summary:compute tasks
func (a *Aggregator) HandleTask(ctx context.Context, t *asynq.Task) error {
	var p queue.SummaryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		a.log.Error("Failed to unmarshal summary payload", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("bad summary payload: %v: %w", err, asynq.SkipRetry)
	}

	inst := core.GetInstruments().GetByID(p.Instrument)
	if inst == nil {
		a.log.Error("Unknown instrument in summary task", map[string]interface{}{
			"instrument": p.Instrument,
		})
		return fmt.Errorf("unknown instrument %s: %w", p.Instrument, asynq.SkipRetry)
	}

	expiry, err := time.ParseInLocation(core.ExpiryFormat, p.Expiry, utils.IST())
	if err != nil {
		return fmt.Errorf("invalid expiry %q: %v: %w", p.Expiry, err, asynq.SkipRetry)
	}

	if err := a.Aggregate(ctx, *inst, expiry, p.Minute); err != nil {
		a.log.Error("Summary computation failed", map[string]interface{}{
			"instrument": p.Instrument,
			"expiry":     p.Expiry,
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func fmtFlip(v *float64) interface{} {
	if v == nil {
		return "none"
	}
	return *v
}
