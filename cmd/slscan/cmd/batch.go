package cmd

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/MeKo-Tech/slscan/internal/batch"
	"github.com/MeKo-Tech/slscan/internal/config"
	"github.com/spf13/cobra"
)

// batchCmd decodes many capture directories in parallel.
var batchCmd = &cobra.Command{
	Use:   "batch [dirs...]",
	Short: "Decode multiple capture directories in parallel",
	Long: `Decode every capture directory found under the given paths using a pool
of workers. A directory is a capture when it contains at least one positive
pattern image.

Output formats: text, json, yaml, csv (one summary row per capture)

Examples:
  slscan batch captures/plate captures/cup
  slscan batch captures/ --recursive --workers 8
  slscan batch captures/ -r --format json --output results.json
  slscan batch captures/ -r --include 'scan_*' --continue-on-error`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

// configToBatchConfig maps centralized configuration to batch.Config.
// CLI flags override config file values.
func configToBatchConfig(cfg *config.Config, cmd *cobra.Command) *batch.Config {
	flags := cmd.Flags()
	batchConfig := batch.DefaultConfig()

	// Decode settings
	batchConfig.GrayCode = cfg.Decode.GrayCode
	if flags.Changed("binary") {
		binary, _ := flags.GetBool("binary")
		batchConfig.GrayCode = !binary
	}

	batchConfig.RowWorkers = cfg.Decode.Workers
	if flags.Changed("row-workers") {
		batchConfig.RowWorkers, _ = flags.GetInt("row-workers")
	}

	batchConfig.ExtractFringe = cfg.Decode.ExtractFringe
	if flags.Changed("no-fringe") {
		noFringe, _ := flags.GetBool("no-fringe")
		batchConfig.ExtractFringe = !noFringe
	}

	batchConfig.MaxPatterns = cfg.Decode.MaxPatterns
	if flags.Changed("max-patterns") {
		batchConfig.MaxPatterns, _ = flags.GetInt("max-patterns")
	}

	batchConfig.IncludePoints = cfg.Decode.IncludePoints
	batchConfig.Layout = cfg.Layout()

	// Output settings
	batchConfig.Format = cfg.Output.Format
	if flags.Changed("format") {
		batchConfig.Format, _ = flags.GetString("format")
	}

	batchConfig.OutputFile = cfg.Output.File
	if flags.Changed("output") {
		batchConfig.OutputFile, _ = flags.GetString("output")
	}

	batchConfig.DebugDir = cfg.Batch.OutputDir
	if flags.Changed("debug-dir") {
		batchConfig.DebugDir, _ = flags.GetString("debug-dir")
	}

	// Parallel processing settings
	batchConfig.Workers = cfg.Batch.Workers
	if flags.Changed("workers") {
		batchConfig.Workers, _ = flags.GetInt("workers")
	}

	batchConfig.ContinueOnError = cfg.Batch.ContinueOnError
	if flags.Changed("continue-on-error") {
		batchConfig.ContinueOnError, _ = flags.GetBool("continue-on-error")
	}

	// Capture discovery settings
	batchConfig.Recursive = cfg.Batch.Recursive
	if flags.Changed("recursive") {
		batchConfig.Recursive, _ = flags.GetBool("recursive")
	}

	batchConfig.IncludePatterns = cfg.Batch.Include
	if flags.Changed("include") {
		batchConfig.IncludePatterns, _ = flags.GetStringSlice("include")
	}

	batchConfig.ExcludePatterns = cfg.Batch.Exclude
	if flags.Changed("exclude") {
		batchConfig.ExcludePatterns, _ = flags.GetStringSlice("exclude")
	}

	// Progress settings are CLI-only
	batchConfig.ShowProgress, _ = flags.GetBool("progress")
	batchConfig.Quiet, _ = flags.GetBool("quiet")
	batchConfig.ShowStats, _ = flags.GetBool("stats")
	batchConfig.ProgressInterval, _ = flags.GetDuration("progress-interval")

	return batchConfig
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	config := configToBatchConfig(GetConfig(), cmd)

	if !config.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Scanning %d path(s) for captures...\n", len(args))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := batch.ProcessBatch(ctx, args, config)
	if err != nil {
		return fmt.Errorf("batch processing failed: %w", err)
	}

	if err := result.SaveResults(cmd.OutOrStdout(), config.Format, config.OutputFile, config.Quiet); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	if config.ShowStats {
		result.PrintStats(cmd.ErrOrStderr(), config.Quiet)
	}

	if failed := result.Failed(); failed > 0 && !config.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d captures failed\n", failed, len(result.Dirs))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
	addBatchFlags(batchCmd)
}

func addBatchFlags(cmd *cobra.Command) {
	// Decode flags
	cmd.Flags().Bool("binary", false, "patterns are natural binary instead of Gray code")
	cmd.Flags().Int("row-workers", 0, "row workers per decode (0 = one per CPU)")
	cmd.Flags().Int("max-patterns", 0, "reject captures with more pattern pairs (0 = codeword limit)")
	cmd.Flags().Bool("no-fringe", false, "skip fringe extraction")

	// Output flags
	cmd.Flags().StringP("format", "f", "text", "output format: text, json, yaml, csv")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("debug-dir", "", "directory for per-capture debug images")

	// Parallel processing flags
	cmd.Flags().IntP("workers", "w", 0, fmt.Sprintf("number of parallel captures (default: %d)", runtime.NumCPU()))
	cmd.Flags().Bool("continue-on-error", false, "report failed captures instead of aborting the batch")

	// Capture discovery flags
	cmd.Flags().BoolP("recursive", "r", false, "recursively scan directories")
	cmd.Flags().StringSlice("include", []string{}, "directory name patterns to include")
	cmd.Flags().StringSlice("exclude", []string{}, "directory name patterns to exclude")

	// Progress flags
	cmd.Flags().Bool("progress", false, "show progress bar")
	cmd.Flags().Bool("quiet", false, "suppress progress output")
	cmd.Flags().Bool("stats", false, "show processing statistics")
	cmd.Flags().Duration("progress-interval", 100*time.Millisecond, "progress update interval")
}
