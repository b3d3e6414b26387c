// Package main implements the chartflow CLI: a reflection-based chart
// generation workflow (generate a chart, critique it, generate a
// revised version).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chartflow/internal/config"
	"chartflow/internal/logging"
)

var (
	// Global flags
	verbose         bool
	workspace       string
	outputDir       string
	generationModel string
	reflectionModel string
	overwrite       bool
	callTimeout     time.Duration
	maxModelCalls   int

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chartflow",
	Short: "chartflow - reflection-based chart generation workflow",
	Long: `chartflow generates a chart from a tabular dataset and a natural
language instruction, then has a second model critique the result
against the instruction and produce an improved revision.

Both versions are persisted so runs can be compared:
  output_dir/{group}/{dataset}_{case}_v1.svg
  output_dir/{group}/{dataset}_{case}_v2.svg`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadUserConfig loads .chartflow/config.json, layers env overrides,
// then layers explicit CLI flags on top.
func loadUserConfig(cmd *cobra.Command) (*config.UserConfig, error) {
	configPath := config.DefaultUserConfigPath()
	if workspace != "" {
		configPath = filepath.Join(workspace, ".chartflow", "config.json")
	}
	cfg, err := config.LoadUserConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()

	if cmd.Flags().Changed("generation-model") || cfg.GenerationModel == "" {
		cfg.GenerationModel = generationModel
	}
	if cmd.Flags().Changed("reflection-model") || cfg.ReflectionModel == "" {
		cfg.ReflectionModel = reflectionModel
	}
	if cmd.Flags().Changed("output-dir") || cfg.OutputDir == "" {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("call-timeout") {
		cfg.CallTimeoutSec = int(callTimeout.Seconds())
	}
	if cmd.Flags().Changed("max-model-calls") {
		cfg.MaxModelCalls = maxModelCalls
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "./charts", "Directory for generated charts")
	rootCmd.PersistentFlags().StringVar(&generationModel, "generation-model", config.DefaultGenerationModel, "Model for the initial chart generation")
	rootCmd.PersistentFlags().StringVar(&reflectionModel, "reflection-model", config.DefaultReflectionModel, "Model for the reflection pass")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "Replace output files left by prior runs")
	rootCmd.PersistentFlags().DurationVar(&callTimeout, "call-timeout", 60*time.Second, "Per-model-call timeout")
	rootCmd.PersistentFlags().IntVar(&maxModelCalls, "max-model-calls", 4, "Concurrent model call limit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
