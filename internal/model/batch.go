package model

import "time"

// BatchStatus is the lifecycle of a planned batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// TradeCombined is the trade label for a batch that folds several small
// trades together to avoid per-call overhead on negligible content.
const TradeCombined = "combined"

// BatchResult is the completed payload of one batch submission.
type BatchResult struct {
	Packages     []WorkPackage   `json:"packages"`
	Observations []AIObservation `json:"observations,omitempty"`
	Usage        TokenUsage      `json:"usage"`
	Cost         float64         `json:"cost"`
	DurationMS   int64           `json:"duration_ms"`
}

// Batch is a unit of work submitted to a model backend. A batch belongs to
// exactly one run and is never shared.
type Batch struct {
	ID              string       `json:"id"`
	RunID           string       `json:"run_id"`
	Sequence        int          `json:"sequence"`
	Trade           string       `json:"trade"` // or TradeCombined
	Divisions       []string     `json:"divisions,omitempty"`
	PageNumbers     []int        `json:"page_numbers"`
	EstimatedTokens int          `json:"estimated_tokens"`
	Status          BatchStatus  `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	Result          *BatchResult `json:"result,omitempty"`
	Error           string       `json:"error,omitempty"`
}
