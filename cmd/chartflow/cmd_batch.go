package main

import (
	"github.com/spf13/cobra"

	"chartflow/internal/workflow"
)

// ============================================================================
// BATCH COMMAND
// ============================================================================

var batchCmd = &cobra.Command{
	Use:   "batch <suite.yaml>",
	Short: "Run the workflow over a YAML suite of cases",
	Long: `Run every case in a suite file concurrently. Per-case settings
override the suite defaults, which override CLI flags and user config.

Suite format:
  defaults:
    generation_model: gemini-2.5-flash
    reflection_model: gemini-2.5-pro
  cases:
    - name: monthly
      group: sales
      dataset: testdata/coffee_sales.csv
      instruction: "Plot monthly revenue as a bar chart"
    - name: by-region
      dataset: testdata/coffee_sales.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadUserConfig(cmd)
	if err != nil {
		return err
	}

	suite, err := workflow.LoadSuite(args[0])
	if err != nil {
		return err
	}

	fallback := workflow.SuiteDefaults{
		GenerationModel: cfg.GenerationModel,
		ReflectionModel: cfg.ReflectionModel,
		OutputDir:       cfg.OutputDir,
	}
	reqs := suite.Requests(fallback, cfg.OutputDir, overwrite)

	return executeRequests(cmd, cfg, reqs)
}
