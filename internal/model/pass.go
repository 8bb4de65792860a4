package model

import "time"

// PassPurpose tags what a pass is asking the model to do. Each purpose maps
// to exactly one request and response shape.
type PassPurpose string

const (
	PurposeInitialExtraction PassPurpose = "initial_extraction"
	PurposeSelfReview        PassPurpose = "self_review"
	PurposeTradeDeepDive     PassPurpose = "trade_deep_dive"
	PurposeCrossValidation   PassPurpose = "cross_validation"
	PurposeFinalValidation   PassPurpose = "final_validation"
)

// AllPassPurposes returns every implemented purpose.
func AllPassPurposes() []PassPurpose {
	return []PassPurpose{
		PurposeInitialExtraction,
		PurposeSelfReview,
		PurposeTradeDeepDive,
		PurposeCrossValidation,
		PurposeFinalValidation,
	}
}

// Valid reports whether the purpose is one the executor implements.
func (p PassPurpose) Valid() bool {
	switch p {
	case PurposeInitialExtraction, PurposeSelfReview, PurposeTradeDeepDive,
		PurposeCrossValidation, PurposeFinalValidation:
		return true
	}
	return false
}

// PassConfig declares one step in a run. Passes with unmet dependencies
// cannot execute.
type PassConfig struct {
	Pass      int         `json:"pass" yaml:"pass"`
	Backend   string      `json:"backend" yaml:"backend"` // model identifier
	Purpose   PassPurpose `json:"purpose" yaml:"purpose"`
	DependsOn []int       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// PassResult is the executed outcome of a PassConfig. Immutable once
// produced; passes are append-only within a run.
type PassResult struct {
	Pass       int         `json:"pass"`
	Backend    string      `json:"backend"`
	Purpose    PassPurpose `json:"purpose"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Usage      TokenUsage  `json:"usage"`
	Cost       float64     `json:"cost"`
	CacheHit   bool        `json:"cache_hit"`
	CacheKey   string      `json:"cache_key"`

	// ResponseJSON is the raw typed response for this purpose, serialized.
	// Kept as JSON so results round-trip through the cache and the store
	// without binding persistence to the response union's Go shape.
	ResponseJSON []byte `json:"response_json,omitempty"`
}

// RunStatus represents the lifecycle of a permutation run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusPlanning  RunStatus = "planning"
	RunStatusExecuting RunStatus = "executing"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// RunMetrics aggregates a run's resource consumption.
type RunMetrics struct {
	DurationMS int64      `json:"duration_ms"`
	Usage      TokenUsage `json:"usage"`
	Cost       float64    `json:"cost"` // live calls only; cache hits are free
	CacheHits  int        `json:"cache_hits"`
	LiveCalls  int        `json:"live_calls"`
}

// PermutationResult records one full run: its pass plan, every pass result,
// and the merged final extraction.
type PermutationResult struct {
	RunID        string          `json:"run_id"`
	Passes       []PassConfig    `json:"passes"`
	PassResults  []PassResult    `json:"pass_results"`
	Packages     []WorkPackage   `json:"packages"`
	Observations []AIObservation `json:"observations,omitempty"`
	// Batches holds the executed extraction batch records for live passes.
	// Cache-hit passes contribute none.
	Batches []Batch    `json:"batches,omitempty"`
	Metrics RunMetrics `json:"metrics"`
}

// BasePass returns the run's initial extraction pass config, or nil if the
// run has none. A PermutationResult without a base pass is structurally
// invalid input for consensus.
func (r *PermutationResult) BasePass() *PassConfig {
	for i := range r.Passes {
		if r.Passes[i].Purpose == PurposeInitialExtraction {
			return &r.Passes[i]
		}
	}
	return nil
}

// ResultFor returns the PassResult for the given pass number, or nil.
func (r *PermutationResult) ResultFor(pass int) *PassResult {
	for i := range r.PassResults {
		if r.PassResults[i].Pass == pass {
			return &r.PassResults[i]
		}
	}
	return nil
}
