package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chartflow/internal/store"
)

// ============================================================================
// HISTORY COMMAND
// ============================================================================

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent workflow runs from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ledgerDir := filepath.Join(workspaceDir(), ".chartflow")
	runStore, err := store.NewRunStore(ledgerDir)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer runStore.Close()

	records, err := runStore.Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	for _, rec := range records {
		icon := "✅"
		switch rec.Status {
		case "degraded_no_v2":
			icon = "⚠️ "
		case "failed":
			icon = "❌"
		}

		fmt.Printf("%s %s  %s/%s  %s\n", icon, rec.CreatedAt.Format("2006-01-02 15:04"), rec.Group, rec.CaseLabel, rec.Dataset)
		fmt.Printf("   models: %s → %s  (%dms)\n", rec.GenerationModel, rec.ReflectionModel, rec.DurationMS)
		if rec.Instruction != "" {
			fmt.Printf("   instruction: %s\n", rec.Instruction)
		}
		if len(rec.Findings) > 0 {
			fmt.Printf("   critique: %s\n", strings.Join(rec.Findings, "; "))
		}
		if rec.Error != "" {
			fmt.Printf("   error: %s\n", rec.Error)
		}
	}
	return nil
}
