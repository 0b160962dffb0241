// Package fetcher retrieves option-chain payloads from the upstream
// market-data API and feeds them into the ingestion queue.
package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"gexpipe/config"
	"gexpipe/core"
	"gexpipe/logger"
	"gexpipe/queue"
	"gexpipe/utils"
)

const expiryCacheTTL = 15 * time.Minute

// Enqueuer dispatches ingest tasks to the worker pool
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

// ExpiryCache avoids re-fetching expiry lists on every cycle; may be nil
type ExpiryCache interface {
	StoreExpiryList(ctx context.Context, instrument string, expiries []string, ttl time.Duration) error
	GetExpiryList(ctx context.Context, instrument string) ([]string, bool)
}

type Fetcher struct {
	client *http.Client
	cfg    *config.DhanConfig
	queue  Enqueuer
	cache  ExpiryCache
	pause  time.Duration
	log    *logger.Logger
}

func NewFetcher(cfg *config.DhanConfig, q Enqueuer, cache ExpiryCache, pause time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		cfg:    cfg,
		queue:  q,
		cache:  cache,
		pause:  pause,
		log:    logger.L(),
	}
}

type expiryListResponse struct {
	Data []string `json:"data"`
}

type chainResponse struct {
	Data core.OptionChain `json:"data"`
}

// RunCycle runs one full fetch cycle: the current expiry for every
// instrument first, then the remaining tracked expiries. Each cycle is
// tagged with a fresh identifier carried through ingestion logs.
func (f *Fetcher) RunCycle(ctx context.Context) error {
	cycleID := uuid.NewString()
	start := time.Now()

	f.log.Info("Starting fetch cycle", map[string]interface{}{
		"cycle_id": cycleID,
	})

	instruments := core.GetInstruments().GetAll()
	expiriesByInstrument := make(map[string][]string, len(instruments))

	for _, inst := range instruments {
		expiries, err := f.Expiries(ctx, inst)
		if err != nil {
			f.log.Error("Failed to fetch expiries", map[string]interface{}{
				"instrument": inst.SecurityID,
				"cycle_id":   cycleID,
				"error":      err.Error(),
			})
			continue
		}
		if len(expiries) == 0 {
			f.log.Warn("No valid expiries found", map[string]interface{}{
				"instrument": inst.SecurityID,
				"cycle_id":   cycleID,
			})
			continue
		}

		expiriesByInstrument[inst.SecurityID] = expiries
		f.fetchAndEnqueue(ctx, inst, expiries[0], cycleID)
		f.sleep(ctx)
	}

	for _, inst := range instruments {
		expiries := expiriesByInstrument[inst.SecurityID]
		for _, expiry := range expiries[min(1, len(expiries)):] {
			f.fetchAndEnqueue(ctx, inst, expiry, cycleID)
			f.sleep(ctx)
		}
	}

	f.log.Info("Fetch cycle finished", map[string]interface{}{
		"cycle_id": cycleID,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	})
	return nil
}

// fetchAndEnqueue fetches one chain and hands it to the ingest queue.
// Upstream failures abandon this (instrument, expiry) for the cycle.
func (f *Fetcher) fetchAndEnqueue(ctx context.Context, inst core.Instrument, expiry, cycleID string) {
	chain, err := f.FetchChain(ctx, inst, expiry)
	if err != nil {
		f.log.Error("Failed to fetch option chain", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"cycle_id":   cycleID,
			"error":      err.Error(),
		})
		return
	}

	f.enqueueIngest(ctx, inst, expiry, chain, utils.NowIST(), cycleID)
}

// RequestBackfill fetches a fresh chain and ingests it stamped with the
// given minute, filling a detected close-of-day gap.
func (f *Fetcher) RequestBackfill(ctx context.Context, inst core.Instrument, expiry string, minute time.Time) error {
	chain, err := f.FetchChain(ctx, inst, expiry)
	if err != nil {
		return fmt.Errorf("backfill fetch failed for %s (%s): %w", inst.SecurityID, expiry, err)
	}

	return f.enqueueIngest(ctx, inst, expiry, chain, minute, "backfill-"+uuid.NewString())
}

func (f *Fetcher) enqueueIngest(ctx context.Context, inst core.Instrument, expiry string, chain *core.OptionChain, fetchedAt time.Time, cycleID string) error {
	task, err := queue.NewIngestTask(queue.IngestPayload{
		Instrument: inst.SecurityID,
		Expiry:     expiry,
		Chain:      *chain,
		FetchedAt:  fetchedAt,
		CycleID:    cycleID,
	})
	if err == nil {
		err = f.queue.Enqueue(ctx, task)
	}
	if err != nil {
		f.log.Error("Failed to enqueue ingest task", map[string]interface{}{
			"instrument": inst.SecurityID,
			"expiry":     expiry,
			"cycle_id":   cycleID,
			"error":      err.Error(),
		})
		return err
	}

	f.log.Debug("Enqueued ingest task", map[string]interface{}{
		"instrument": inst.SecurityID,
		"expiry":     expiry,
		"cycle_id":   cycleID,
	})
	return nil
}

// Expiries returns the ordered upcoming expiries for an instrument,
// limited to its configured count.
func (f *Fetcher) Expiries(ctx context.Context, inst core.Instrument) ([]string, error) {
	raw, err := f.fetchExpiryList(ctx, inst)
	if err != nil {
		return nil, err
	}

	expiries := OrderExpiries(raw, utils.NowIST())
	if inst.ExpiryLimit > 0 && len(expiries) > inst.ExpiryLimit {
		expiries = expiries[:inst.ExpiryLimit]
	}
	return expiries, nil
}

func (f *Fetcher) fetchExpiryList(ctx context.Context, inst core.Instrument) ([]string, error) {
	if f.cache != nil {
		if cached, ok := f.cache.GetExpiryList(ctx, inst.SecurityID); ok {
			return cached, nil
		}
	}

	var resp expiryListResponse
	err := f.post(ctx, "/optionchain/expirylist", map[string]interface{}{
		"UnderlyingScrip": inst.UnderlyingScrip,
		"UnderlyingSeg":   inst.Segment,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("expiry list request failed for %s: %w", inst.SecurityID, err)
	}

	if f.cache != nil {
		if err := f.cache.StoreExpiryList(ctx, inst.SecurityID, resp.Data, expiryCacheTTL); err != nil {
			f.log.Warn("Failed to cache expiry list", map[string]interface{}{
				"instrument": inst.SecurityID,
				"error":      err.Error(),
			})
		}
	}

	return resp.Data, nil
}

// FetchChain retrieves the raw option chain for one (instrument, expiry)
func (f *Fetcher) FetchChain(ctx context.Context, inst core.Instrument, expiry string) (*core.OptionChain, error) {
	var resp chainResponse
	err := f.post(ctx, "/optionchain", map[string]interface{}{
		"UnderlyingScrip": inst.UnderlyingScrip,
		"UnderlyingSeg":   inst.Segment,
		"Expiry":          expiry,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("option chain request failed for %s (%s): %w", inst.SecurityID, expiry, err)
	}

	if err := resp.Data.Validate(); err != nil {
		return nil, fmt.Errorf("malformed option chain for %s (%s): %w", inst.SecurityID, expiry, err)
	}

	return &resp.Data, nil
}

func (f *Fetcher) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", f.cfg.AccessToken)
	req.Header.Set("client-id", f.cfg.ClientID)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// OrderExpiries filters expiries to those on or after today and sorts them
// ascending. Malformed entries are dropped.
func OrderExpiries(expiries []string, now time.Time) []string {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	out := make([]string, 0, len(expiries))
	for _, e := range expiries {
		d, err := time.ParseInLocation(core.ExpiryFormat, e, now.Location())
		if err != nil {
			continue
		}
		if !d.Before(today) {
			out = append(out, e)
		}
	}

	sort.Strings(out)
	return out
}

func (f *Fetcher) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(f.pause):
	}
}
