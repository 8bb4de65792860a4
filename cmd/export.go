package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/precon-cli/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's bid form to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		if run.Result == nil {
			return eris.Errorf("run %s has no result (status %s)", args[0], run.Status)
		}

		if err := report.WriteWorkbook(exportOut, run.Result); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("path", exportOut))
		return nil
	},
}

var exportReportCmd = &cobra.Command{
	Use:   "report <report-id>",
	Short: "Export a consensus report to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		rep, err := st.GetReport(ctx, args[0])
		if err != nil {
			return err
		}
		if rep == nil {
			return eris.Errorf("report not found: %s", args[0])
		}

		if err := report.WriteConsensus(exportOut, rep); err != nil {
			return err
		}
		zap.L().Info("workbook written", zap.String("path", exportOut))
		return nil
	},
}

func init() {
	exportCmd.PersistentFlags().StringVar(&exportOut, "out", "export.xlsx", "output path")
	exportCmd.AddCommand(exportReportCmd)
	rootCmd.AddCommand(exportCmd)
}
