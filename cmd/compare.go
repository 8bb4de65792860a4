package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/consensus"
	"github.com/sells-group/precon-cli/internal/model"
)

var compareCmd = &cobra.Command{
	Use:   "compare <run-id>...",
	Short: "Build a consensus report across completed runs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		results := make([]*model.PermutationResult, 0, len(args))
		for _, id := range args {
			run, err := st.GetRun(ctx, id)
			if err != nil {
				return err
			}
			if run.Result == nil {
				return eris.Errorf("run %s has no result (status %s)", id, run.Status)
			}
			results = append(results, run.Result)
		}

		engine := consensus.New(consensus.FamilyTable(cfg.Consensus.Families))
		report, err := engine.Compare(results)
		if err != nil {
			return err
		}

		reportID, err := st.SaveReport(ctx, report)
		if err != nil {
			return err
		}
		zap.L().Info("consensus report saved", zap.String("report_id", reportID))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
