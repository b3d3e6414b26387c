package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chartflow/internal/config"
	"chartflow/internal/store"
	"chartflow/internal/workflow"
)

// ============================================================================
// RUN COMMAND
// ============================================================================

const timeRound = 100 * time.Millisecond

var (
	runGroup     string
	runCaseLabel string
)

var runCmd = &cobra.Command{
	Use:   "run <dataset.csv> [instruction]",
	Short: "Generate and refine a chart for a single dataset",
	Long: `Run the two-pass workflow against one dataset. When no instruction
is given, one is suggested from the dataset's column structure.

Examples:
  chartflow run sales.csv "Plot monthly revenue as a bar chart"
  chartflow run variants.csv --generation-model gemini-2.5-pro
  chartflow run sales.csv --group quarterly --case-label q3`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSingle,
}

func init() {
	runCmd.Flags().StringVar(&runGroup, "group", "", "Output subdirectory for this run")
	runCmd.Flags().StringVar(&runCaseLabel, "case-label", "", "Case label used in artifact filenames")
}

func runSingle(cmd *cobra.Command, args []string) error {
	cfg, err := loadUserConfig(cmd)
	if err != nil {
		return err
	}

	instruction := ""
	if len(args) > 1 {
		instruction = args[1]
	}

	req := workflow.WorkflowRequest{
		DatasetPath:     args[0],
		Instruction:     instruction,
		GenerationModel: cfg.GenerationModel,
		ReflectionModel: cfg.ReflectionModel,
		OutputDir:       cfg.OutputDir,
		Group:           runGroup,
		CaseLabel:       runCaseLabel,
		Overwrite:       overwrite,
	}

	return executeRequests(cmd, cfg, []workflow.WorkflowRequest{req})
}

// executeRequests is the shared execution path for run and batch:
// preflight credentials, run the batch, report, record to the ledger.
func executeRequests(cmd *cobra.Command, cfg *config.UserConfig, reqs []workflow.WorkflowRequest) error {
	opts := []workflow.Option{}

	ledgerDir := filepath.Join(workspaceDir(), ".chartflow")
	if err := os.MkdirAll(ledgerDir, 0755); err != nil {
		logger.Warn("run ledger unavailable", zap.Error(err))
	} else if runStore, err := store.NewRunStore(ledgerDir); err != nil {
		logger.Warn("run ledger unavailable", zap.Error(err))
	} else {
		defer runStore.Close()
		opts = append(opts, workflow.WithRecorder(runStore))
	}

	orch := workflow.New(cfg, opts...)
	if err := orch.Preflight(reqs); err != nil {
		return err
	}

	results := orch.Run(cmd.Context(), reqs)
	printResults(results)

	if workflow.AnyFailed(results) {
		return fmt.Errorf("%d of %d cases failed", countFailed(results), len(results))
	}
	return nil
}

func workspaceDir() string {
	if workspace != "" {
		return workspace
	}
	if ws, err := config.FindWorkspaceRoot(); err == nil {
		return ws
	}
	wd, _ := os.Getwd()
	return wd
}

func countFailed(results []workflow.WorkflowResult) int {
	n := 0
	for _, r := range results {
		if r.Status == workflow.StatusFailed {
			n++
		}
	}
	return n
}

func printResults(results []workflow.WorkflowResult) {
	for _, r := range results {
		label := fmt.Sprintf("%s/%s", r.Request.DatasetStem(), r.Request.CaseLabel)
		if r.Request.CaseLabel == "" {
			label = r.Request.DatasetStem()
		}

		switch r.Status {
		case workflow.StatusSuccess:
			fmt.Printf("✅ %s (%s)\n", label, r.Duration.Round(timeRound))
			fmt.Printf("   v1: %s\n", r.V1Path)
			fmt.Printf("   v2: %s\n", r.V2Path)
			if r.Critique != nil && len(r.Critique.Findings) > 0 {
				fmt.Printf("   critique: %s\n", strings.Join(r.Critique.Findings, "; "))
			}
		case workflow.StatusDegradedNoV2:
			fmt.Printf("⚠️  %s (%s) - reflection failed, v1 stands\n", label, r.Duration.Round(timeRound))
			fmt.Printf("   v1: %s\n", r.V1Path)
			if r.Err != nil {
				fmt.Printf("   reason: %v\n", r.Err)
			}
		case workflow.StatusFailed:
			fmt.Printf("❌ %s (%s)\n", label, r.Duration.Round(timeRound))
			if r.Err != nil {
				fmt.Printf("   error: %v\n", r.Err)
			}
		}
	}
}
