package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/cost"
	"github.com/sells-group/precon-cli/internal/model"
)

var (
	extractPages   string
	extractPlan    string
	extractProject string
	extractFocus   []string
	extractSkip    []string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run a pass plan over a classified document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("extract"); err != nil {
			return err
		}

		doc, err := loadDocument(extractPages)
		if err != nil {
			return err
		}
		passes, err := loadPlan(extractPlan)
		if err != nil {
			return err
		}

		if len(extractFocus) > 0 {
			cfg.Batch.FocusTrades = extractFocus
		}
		if len(extractSkip) > 0 {
			cfg.Batch.SkipTrades = extractSkip
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()

		calc := cost.NewCalculator(cfg.Rates())
		orch := buildOrchestrator(cache, calc)

		run, err := st.CreateRun(ctx, extractProject, doc.Fingerprint(), passes)
		if err != nil {
			return err
		}
		if err := st.UpdateRunStatus(ctx, run.ID, model.RunStatusExecuting); err != nil {
			return err
		}

		result, err := orch.Run(ctx, run.ID, doc, passes)
		if err != nil {
			if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
				zap.L().Warn("record run failure", zap.Error(failErr))
			}
			return eris.Wrapf(err, "run %s", run.ID)
		}

		// Persist the executed batch records so runs show can report them.
		if len(result.Batches) > 0 {
			if err := st.SaveBatches(ctx, result.Batches); err != nil {
				return err
			}
		}

		if err := st.CompleteRun(ctx, run.ID, result); err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.String("run_id", run.ID),
			zap.Int("packages", len(result.Packages)),
			zap.Int("observations", len(result.Observations)),
			zap.Float64("cost", result.Metrics.Cost),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractPages, "pages", "", "classified pages JSON file (required)")
	extractCmd.Flags().StringVar(&extractPlan, "plan", "", "pass plan YAML file (required)")
	extractCmd.Flags().StringVar(&extractProject, "project", "default", "project label")
	extractCmd.Flags().StringSliceVar(&extractFocus, "focus-trade", nil, "trades to prioritize")
	extractCmd.Flags().StringSliceVar(&extractSkip, "skip-trade", nil, "trades to skip")
	_ = extractCmd.MarkFlagRequired("pages")
	_ = extractCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(extractCmd)
}
