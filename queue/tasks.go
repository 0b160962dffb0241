package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"gexpipe/core"
)

// Task types handled by the pipeline workers
const (
	TypeIngestSnapshot = "snapshot:ingest"
	TypeComputeSummary = "summary:compute"
)

// Queue names, highest priority first
const (
	QueueIngest  = "ingest"
	QueueSummary = "summary"
)

// IngestPayload carries one raw fetch result to the snapshot ingestor.
// CycleID identifies the fetch cycle that produced it.
type IngestPayload struct {
	Instrument string           `json:"instrument"`
	Expiry     string           `json:"expiry"`
	Chain      core.OptionChain `json:"chain"`
	FetchedAt  time.Time        `json:"fetched_at"`
	CycleID    string           `json:"cycle_id"`
}

// SummaryPayload identifies the minute to summarize
type SummaryPayload struct {
	Instrument string    `json:"instrument"`
	Expiry     string    `json:"expiry"`
	Minute     time.Time `json:"minute"`
}

// NewIngestTask wraps an IngestPayload into an asynq task
func NewIngestTask(p IngestPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingest payload: %w", err)
	}
	return asynq.NewTask(TypeIngestSnapshot, payload, asynq.Queue(QueueIngest)), nil
}

// NewSummaryTask wraps a SummaryPayload into an asynq task
func NewSummaryTask(p SummaryPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary payload: %w", err)
	}
	return asynq.NewTask(TypeComputeSummary, payload, asynq.Queue(QueueSummary)), nil
}
