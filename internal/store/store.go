package store

import (
	"context"

	"github.com/sells-group/precon-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Project string          `json:"project,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, project, docFingerprint string, passes []model.PassConfig) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, result *model.PermutationResult) error
	FailRun(ctx context.Context, runID string, cause string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Batches
	SaveBatches(ctx context.Context, batches []model.Batch) error
	ListBatches(ctx context.Context, runID string) ([]model.Batch, error)

	// Consensus reports
	SaveReport(ctx context.Context, report *model.ConsensusReport) (string, error)
	GetReport(ctx context.Context, reportID string) (*model.ConsensusReport, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
