// Package ingest turns one raw option-chain fetch into the minute's
// strike-windowed snapshot rows.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"gexpipe/core"
	"gexpipe/db"
	"gexpipe/logger"
	"gexpipe/queue"
	"gexpipe/utils"
	"gexpipe/window"
)

// MinuteStore persists one minute's snapshot rows as a full replace
type MinuteStore interface {
	ReplaceMinuteSnapshots(ctx context.Context, instrument string, expiry, minute time.Time, rows []db.MinuteSnapshot) error
}

// Enqueuer hands completed minutes off to the summary stage
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

type Ingestor struct {
	store        MinuteStore
	queue        Enqueuer
	strikeWindow int
	log          *logger.Logger
}

func NewIngestor(store MinuteStore, q Enqueuer, strikeWindow int) *Ingestor {
	if strikeWindow <= 0 {
		strikeWindow = window.DefaultStrikeWindow
	}
	return &Ingestor{
		store:        store,
		queue:        q,
		strikeWindow: strikeWindow,
		log:          logger.L(),
	}
}

// Ingest converts one raw chain payload into minute rows and persists them,
// replacing any prior rows for the same (instrument, expiry, minute) key.
// On success the minute is handed to the summary stage; a handoff failure
// does not fail the ingestion.
func (ing *Ingestor) Ingest(ctx context.Context, inst core.Instrument, expiry string, chain *core.OptionChain, fetchedAt time.Time, cycleID string) error {
	if err := chain.Validate(); err != nil {
		return fmt.Errorf("invalid option chain for %s (%s): %w", inst.SecurityID, expiry, err)
	}

	expiryDate, err := time.ParseInLocation(core.ExpiryFormat, expiry, utils.IST())
	if err != nil {
		return fmt.Errorf("invalid expiry %q: %w", expiry, err)
	}

	minute := window.FloorToMinute(utils.ToIST(fetchedAt))
	rows := BuildMinuteRows(inst, expiryDate, chain, minute, fetchedAt, ing.strikeWindow)

	if err := ing.store.ReplaceMinuteSnapshots(ctx, inst.SecurityID, expiryDate, minute, rows); err != nil {
		return fmt.Errorf("failed to persist minute rows for %s (%s) at %s: %w",
			inst.SecurityID, expiry, minute.Format("15:04"), err)
	}

	ing.log.Info("Ingested snapshot", map[string]interface{}{
		"instrument": inst.SecurityID,
		"expiry":     expiry,
		"ist_minute": minute.Format("2006-01-02 15:04"),
		"rows":       len(rows),
		"cycle_id":   cycleID,
	})

	task, err := queue.NewSummaryTask(queue.SummaryPayload{
		Instrument: inst.SecurityID,
		Expiry:     expiry,
		Minute:     minute,
	})
	if err == nil {
		err = ing.queue.Enqueue(ctx, task)
	}
	if err != nil {
		// Fire-and-forget: the minute rows are already durable
		ing.log.Warn("Failed to enqueue summary task", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"ist_minute": minute.Format("2006-01-02 15:04"),
			"error":      err.Error(),
		})
	}

	return nil
}

// BuildMinuteRows merges the call and put legs of every in-band strike into
// combined rows with the derived GEX fields. Strikes outside the ATM band
// are silently excluded; a missing leg leaves its fields nil and contributes
// zero to the GEX arithmetic.
func BuildMinuteRows(inst core.Instrument, expiry time.Time, chain *core.OptionChain, minute, fetchedAt time.Time, strikeWindow int) []db.MinuteSnapshot {
	atm := window.ATMStrike(chain.LastPrice, inst.StrikeRange)
	low, high := window.AcceptBand(atm, inst.StrikeRange, strikeWindow)

	rows := make([]db.MinuteSnapshot, 0, len(chain.Strikes))
	for strikeStr, legs := range chain.Strikes {
		strike, err := strconv.ParseFloat(strikeStr, 64)
		if err != nil {
			continue
		}
		if !window.InBand(strike, low, high) {
			continue
		}

		row := db.MinuteSnapshot{
			Timestamp:       fetchedAt,
			ISTMinute:       minute,
			Instrument:      inst.SecurityID,
			Expiry:          expiry,
			UnderlyingPrice: chain.LastPrice,
			Strike:          strike,
		}

		var callGamma, putGamma float64
		var callOI, putOI int64

		if ce := legs.CE; ce != nil {
			row.CallDelta = f64(ce.Greeks.Delta)
			row.CallTheta = f64(ce.Greeks.Theta)
			row.CallGamma = f64(ce.Greeks.Gamma)
			row.CallVega = f64(ce.Greeks.Vega)
			row.CallIV = f64(ce.ImpliedVolatility)
			row.CallOI = i64(ce.OI)
			row.CallVolume = i64(ce.Volume)
			row.CallLastPrice = f64(ce.LastPrice)
			callGamma, callOI = ce.Greeks.Gamma, ce.OI
		}

		if pe := legs.PE; pe != nil {
			row.PutDelta = f64(pe.Greeks.Delta)
			row.PutTheta = f64(pe.Greeks.Theta)
			row.PutGamma = f64(pe.Greeks.Gamma)
			row.PutVega = f64(pe.Greeks.Vega)
			row.PutIV = f64(pe.ImpliedVolatility)
			row.PutOI = i64(pe.OI)
			row.PutVolume = i64(pe.Volume)
			row.PutLastPrice = f64(pe.LastPrice)
			putGamma, putOI = pe.Greeks.Gamma, pe.OI
		}

		row.CallGex = callGamma * float64(callOI)
		row.PutGex = putGamma * float64(putOI)
		row.NetGex = row.CallGex - row.PutGex
		row.AbsGex = abs(row.CallGex) + abs(row.PutGex)

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Strike < rows[j].Strike })
	return rows
}

// HandleTask is the asynq handler for snapshot:ingest tasks
func (ing *Ingestor) HandleTask(ctx context.Context, t *asynq.Task) error {
	var p queue.IngestPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		ing.log.Error("Failed to unmarshal ingest payload", map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("bad ingest payload: %v: %w", err, asynq.SkipRetry)
	}

	inst := core.GetInstruments().GetByID(p.Instrument)
	if inst == nil {
		ing.log.Error("Unknown instrument in ingest task", map[string]interface{}{
			"instrument": p.Instrument,
		})
		return fmt.Errorf("unknown instrument %s: %w", p.Instrument, asynq.SkipRetry)
	}

	if err := ing.Ingest(ctx, *inst, p.Expiry, &p.Chain, p.FetchedAt, p.CycleID); err != nil {
		ing.log.Error("Ingestion failed", map[string]interface{}{
			"instrument": p.Instrument,
			"expiry":     p.Expiry,
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

func f64(v float64) *float64 { return &v }
func i64(v int64) *int64     { return &v }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
