package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/slscan/internal/config"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
	outputFormatCSV  = "csv"
)

// decodeCmd decodes one capture directory.
var decodeCmd = &cobra.Command{
	Use:   "decode <capture-dir>",
	Short: "Decode a structured-light capture into codewords and fringes",
	Long: `Decode one capture directory. The directory holds the positive pattern
images, their inverses and optionally a mask image; files are matched by the
capture.* patterns and ordered by the number in their name (pattern 0 is the
coarsest stripe).

Output formats: text, json, yaml, csv (fringe points as level,x,y rows)

Examples:
  slscan decode captures/plate
  slscan decode captures/plate --binary --format json
  slscan decode captures/plate --codeword-png codes.png --fringe-overlay overlay.png`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runDecodeCommand,
}

// decodeOptions is the resolved configuration of one decode run.
type decodeOptions struct {
	pipeline      pipeline.Config
	format        string
	outputFile    string
	codewordPNG   string
	fringeOverlay string
	debugDir      string
}

// configToDecodeOptions maps the centralized configuration to decode
// options. Changed flags override config values.
func configToDecodeOptions(cfg *config.Config, cmd *cobra.Command) (*decodeOptions, error) {
	flags := cmd.Flags()

	if flags.Changed("binary") {
		binary, _ := flags.GetBool("binary")
		cfg.Decode.GrayCode = !binary
	}
	if flags.Changed("workers") {
		cfg.Decode.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-patterns") {
		cfg.Decode.MaxPatterns, _ = flags.GetInt("max-patterns")
	}
	if flags.Changed("no-fringe") {
		noFringe, _ := flags.GetBool("no-fringe")
		cfg.Decode.ExtractFringe = !noFringe
	}
	if flags.Changed("points") {
		cfg.Decode.IncludePoints, _ = flags.GetBool("points")
	}
	if flags.Changed("positive-pattern") {
		cfg.Capture.PositivePattern, _ = flags.GetString("positive-pattern")
	}
	if flags.Changed("inverse-pattern") {
		cfg.Capture.InversePattern, _ = flags.GetString("inverse-pattern")
	}
	if flags.Changed("mask-file") {
		cfg.Capture.MaskFile, _ = flags.GetString("mask-file")
	}
	if flags.Changed("min-contrast") {
		cfg.Capture.MinContrast, _ = flags.GetInt("min-contrast")
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		cfg.Output.File, _ = flags.GetString("output")
	}
	if flags.Changed("codeword-png") {
		cfg.Output.CodewordPNG, _ = flags.GetString("codeword-png")
	}
	if flags.Changed("fringe-overlay") {
		cfg.Output.FringeOverlay, _ = flags.GetString("fringe-overlay")
	}
	if flags.Changed("debug-dir") {
		cfg.Output.DebugDir, _ = flags.GetString("debug-dir")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Output.FringeOverlay != "" && !cfg.Decode.ExtractFringe {
		return nil, errors.New("--fringe-overlay needs fringe extraction")
	}
	if cfg.Output.Format == outputFormatCSV && !cfg.Decode.ExtractFringe {
		return nil, errors.New("csv output needs fringe extraction")
	}

	return &decodeOptions{
		pipeline:      cfg.ToPipelineConfig(),
		format:        cfg.Output.Format,
		outputFile:    cfg.Output.File,
		codewordPNG:   cfg.Output.CodewordPNG,
		fringeOverlay: cfg.Output.FringeOverlay,
		debugDir:      cfg.Output.DebugDir,
	}, nil
}

func runDecodeCommand(cmd *cobra.Command, args []string) error {
	opts, err := configToDecodeOptions(GetConfig(), cmd)
	if err != nil {
		return err
	}

	pl, err := pipeline.NewBuilderFromConfig(opts.pipeline).Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := pl.ProcessDir(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", args[0], err)
	}
	slog.Debug("Decoded capture", "dir", args[0], "patterns", res.Patterns,
		"decoded_pixels", res.Decode.DecodedPixels, "total_ns", res.Processing.TotalNs)

	if err := writeDecodeImages(cmd, opts, res); err != nil {
		return err
	}

	output, err := formatDecodeResult(res, opts.format)
	if err != nil {
		return err
	}
	if opts.outputFile != "" {
		if err := os.WriteFile(opts.outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Results written to %s\n", opts.outputFile)
		return nil
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), output)
	return nil
}

func formatDecodeResult(res *pipeline.Result, format string) (string, error) {
	switch format {
	case outputFormatJSON:
		return pipeline.ToJSON(res)
	case outputFormatYAML:
		return pipeline.ToYAML(res)
	case outputFormatCSV:
		return pipeline.ToCSVPoints(res)
	default:
		return pipeline.ToText(res)
	}
}

// writeDecodeImages stores the requested codeword and fringe images.
func writeDecodeImages(cmd *cobra.Command, opts *decodeOptions, res *pipeline.Result) error {
	if opts.codewordPNG != "" {
		if err := utils.SaveImage(opts.codewordPNG, res.Codewords.ToGray16()); err != nil {
			return fmt.Errorf("failed to write codeword image: %w", err)
		}
	}
	if opts.fringeOverlay != "" && res.Fringes != nil {
		overlay := pipeline.RenderFringeOverlay(res.Texture, res.Fringes.Points, res.Fringe.MaxLevel)
		if err := utils.SaveImage(opts.fringeOverlay, overlay); err != nil {
			return fmt.Errorf("failed to write fringe overlay: %w", err)
		}
	}
	if opts.debugDir != "" {
		if err := os.MkdirAll(opts.debugDir, 0o750); err != nil {
			return fmt.Errorf("failed to create debug dir: %w", err)
		}
		written, err := pipeline.SaveDebugImages(opts.debugDir, res, res.Texture)
		if err != nil {
			return fmt.Errorf("failed to write debug images: %w", err)
		}
		for _, path := range written {
			slog.Debug("Wrote debug image", "path", path)
		}
		if opts.outputFile == "" && opts.format == outputFormatText {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Debug images written to %s\n", opts.debugDir)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	addDecodeFlags(decodeCmd)
}

func addDecodeFlags(cmd *cobra.Command) {
	// Decode flags
	cmd.Flags().Bool("binary", false, "patterns are natural binary instead of Gray code")
	cmd.Flags().IntP("workers", "w", 0, "row workers per decode (0 = one per CPU)")
	cmd.Flags().Int("max-patterns", 0, "reject captures with more pattern pairs (0 = codeword limit)")
	cmd.Flags().Bool("no-fringe", false, "skip fringe extraction")
	cmd.Flags().Bool("points", false, "include every fringe point in json/yaml output")

	// Capture layout flags
	cmd.Flags().String("positive-pattern", "", "glob for positive pattern images")
	cmd.Flags().String("inverse-pattern", "", "glob for inverse pattern images")
	cmd.Flags().String("mask-file", "", "mask image file name inside the capture")
	cmd.Flags().Int("min-contrast", 0, "derive the mask from |positive-inverse| >= value when no mask file exists")

	// Output flags
	cmd.Flags().StringP("format", "f", outputFormatText, "output format: text, json, yaml, csv")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("codeword-png", "", "write the 16-bit codeword image to this PNG")
	cmd.Flags().String("fringe-overlay", "", "write a fringe overlay on the capture texture to this PNG")
	cmd.Flags().String("debug-dir", "", "directory for codeword and fringe debug images")
}
