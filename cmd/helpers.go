package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/precon-cli/internal/batch"
	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
	"github.com/sells-group/precon-cli/internal/orchestrator"
	"github.com/sells-group/precon-cli/internal/passcache"
	"github.com/sells-group/precon-cli/internal/store"
	"github.com/sells-group/precon-cli/pkg/backend"
)

// initStore opens the configured store and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// openCache opens the pass cache, in-memory when no path is configured.
func openCache() (passcache.Cache, error) {
	if cfg.Cache.Path == "" {
		return passcache.NewMemory(), nil
	}
	c, err := passcache.NewSQLite(cfg.Cache.Path)
	return c, eris.Wrap(err, "open pass cache")
}

// buildOrchestrator assembles the pass executor from config.
func buildOrchestrator(cache passcache.Cache, calc *cost.Calculator) *orchestrator.Orchestrator {
	client := backend.NewAnthropicClient(backend.AnthropicOptions{
		APIKey:    cfg.Anthropic.Key,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
		RPS:       float64(cfg.Anthropic.RPS),
		Burst:     cfg.Anthropic.Burst,
	})
	return orchestrator.New(client, cache, calc, orchestrator.Options{
		SchemaVersion:    cfg.Passes.SchemaVersion,
		Plan:             planConfig(),
		BatchConcurrency: cfg.Batch.Concurrency,
	})
}

func planConfig() batch.PlanConfig {
	return batch.PlanConfig{
		MaxTokensPerBatch: cfg.Batch.MaxTokensPerBatch,
		MinTokensPerBatch: cfg.Batch.MinTokensPerBatch,
		MaxPagesPerBatch:  cfg.Batch.MaxPagesPerBatch,
		FocusTrades:       cfg.Batch.FocusTrades,
		SkipTrades:        cfg.Batch.SkipTrades,
	}
}

// loadDocument reads a classified-pages JSON file produced by the page
// classifier.
func loadDocument(path string) (*model.ClassifiedDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read pages file %s", path)
	}

	var pages []model.Page
	if err := json.Unmarshal(raw, &pages); err != nil {
		return nil, eris.Wrapf(err, "parse pages file %s", path)
	}
	if len(pages) == 0 {
		return nil, eris.Errorf("pages file %s contains no pages", path)
	}
	return model.NewClassifiedDocument(pages), nil
}

// loadPlan reads a pass plan YAML file.
func loadPlan(path string) ([]model.PassConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read plan file %s", path)
	}

	var plan struct {
		Passes []model.PassConfig `yaml:"passes"`
	}
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return nil, eris.Wrapf(err, "parse plan file %s", path)
	}
	if len(plan.Passes) == 0 {
		return nil, eris.Errorf("plan file %s defines no passes", path)
	}
	return plan.Passes, nil
}
