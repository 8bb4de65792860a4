package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sells-group/precon-cli/internal/batch"
	"github.com/sells-group/precon-cli/internal/cost"
)

var (
	estimatePages    string
	estimateBackends []string
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate extraction cost for a classified document",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("estimate"); err != nil {
			return err
		}

		doc, err := loadDocument(estimatePages)
		if err != nil {
			return err
		}

		batches, err := batch.Plan(doc, uuid.New().String(), planConfig())
		if err != nil {
			return err
		}

		calc := cost.NewCalculator(cfg.Rates())
		backends := estimateBackends
		if len(backends) == 0 {
			backends = []string{cfg.Anthropic.SonnetModel}
		}

		estimates := make([]batch.CostEstimate, 0, len(backends))
		for _, b := range backends {
			estimates = append(estimates, batch.EstimateTotalCost(batches, b, calc))
		}

		out := struct {
			Pages     int                  `json:"pages"`
			Batches   int                  `json:"batches"`
			Estimates []batch.CostEstimate `json:"estimates"`
		}{doc.PageCount(), len(batches), estimates}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	estimateCmd.Flags().StringVar(&estimatePages, "pages", "", "classified pages JSON file (required)")
	estimateCmd.Flags().StringSliceVar(&estimateBackends, "backend", nil, "model ids to price (default: configured sonnet model)")
	_ = estimateCmd.MarkFlagRequired("pages")
	rootCmd.AddCommand(estimateCmd)
}
