// Package config holds the slscan configuration and its viper loader.
package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/utils"
)

// Values accepted by Validate.
var (
	ValidLogLevels     = []string{"debug", "info", "warn", "error"}
	ValidOutputFormats = []string{"text", "json", "yaml", "csv"}
)

// Config represents the complete slscan configuration. It is loaded from
// a config file, SLSCAN_* environment variables and command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	Decode  DecodeConfig  `mapstructure:"decode" yaml:"decode" json:"decode"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture" json:"capture"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	Batch   BatchConfig   `mapstructure:"batch" yaml:"batch" json:"batch"`
}

// DecodeConfig controls the decoder and fringe extractor.
type DecodeConfig struct {
	GrayCode bool `mapstructure:"gray_code" yaml:"gray_code" json:"gray_code"`
	// Workers is the row worker count inside one decode (0 = one per CPU).
	Workers       int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	MaxPatterns   int  `mapstructure:"max_patterns" yaml:"max_patterns" json:"max_patterns"`
	ExtractFringe bool `mapstructure:"extract_fringe" yaml:"extract_fringe" json:"extract_fringe"`
	IncludePoints bool `mapstructure:"include_points" yaml:"include_points" json:"include_points"`
	MaxImageSize  int  `mapstructure:"max_image_size" yaml:"max_image_size" json:"max_image_size"`
}

// CaptureConfig names the files of a capture directory.
type CaptureConfig struct {
	PositivePattern string `mapstructure:"positive_pattern" yaml:"positive_pattern" json:"positive_pattern"`
	InversePattern  string `mapstructure:"inverse_pattern" yaml:"inverse_pattern" json:"inverse_pattern"`
	MaskFile        string `mapstructure:"mask_file" yaml:"mask_file" json:"mask_file"`
	MinContrast     int    `mapstructure:"min_contrast" yaml:"min_contrast" json:"min_contrast"`
}

// OutputConfig contains output settings.
type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	File   string `mapstructure:"file" yaml:"file" json:"file"`
	// DebugDir receives codeword and fringe debug images when set.
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir" json:"debug_dir"`
	// CodewordPNG writes the raw 16-bit codeword image to this path when set.
	CodewordPNG   string `mapstructure:"codeword_png" yaml:"codeword_png" json:"codeword_png"`
	FringeOverlay string `mapstructure:"fringe_overlay" yaml:"fringe_overlay" json:"fringe_overlay"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int             `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int             `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int             `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Enabled           bool  `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int   `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int   `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int   `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
	MaxDataPerDayMB   int64 `mapstructure:"max_data_per_day_mb" yaml:"max_data_per_day_mb" json:"max_data_per_day_mb"`
}

// BatchConfig contains multi-capture settings.
type BatchConfig struct {
	Workers         int      `mapstructure:"workers" yaml:"workers" json:"workers"`
	Recursive       bool     `mapstructure:"recursive" yaml:"recursive" json:"recursive"`
	ContinueOnError bool     `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
	Include         []string `mapstructure:"include" yaml:"include" json:"include"`
	Exclude         []string `mapstructure:"exclude" yaml:"exclude" json:"exclude"`
	OutputDir       string   `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	layout := capture.DefaultLayout()
	return Config{
		LogLevel: "info",
		Decode: DecodeConfig{
			GrayCode:      true,
			Workers:       0,
			ExtractFringe: true,
			MaxImageSize:  utils.DefaultImageConstraints().MaxWidth,
		},
		Capture: CaptureConfig{
			PositivePattern: layout.PositivePattern,
			InversePattern:  layout.InversePattern,
			MaskFile:        layout.MaskFile,
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     100,
			TimeoutSec:      60,
			ShutdownTimeout: 10,
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				RequestsPerHour:   1000,
				MaxRequestsPerDay: 10000,
				MaxDataPerDayMB:   10240,
			},
		},
		Batch: BatchConfig{
			Workers: 4,
		},
	}
}

// Validate validates the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if !slices.Contains(ValidLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(ValidLogLevels, ", "))
	}
	if c.Output.Format != "" && !slices.Contains(ValidOutputFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)",
			c.Output.Format, strings.Join(ValidOutputFormats, ", "))
	}

	if c.Decode.Workers < 0 {
		return fmt.Errorf("invalid decode workers: %d (must be >= 0)", c.Decode.Workers)
	}
	if c.Decode.MaxPatterns < 0 || c.Decode.MaxPatterns > codeword.MaxPatterns {
		return fmt.Errorf("invalid max patterns: %d (must be between 0 and %d)", c.Decode.MaxPatterns, codeword.MaxPatterns)
	}
	if c.Decode.MaxImageSize < 0 {
		return fmt.Errorf("invalid max image size: %d (must be >= 0)", c.Decode.MaxImageSize)
	}
	if c.Capture.MinContrast < 0 || c.Capture.MinContrast > 255 {
		return fmt.Errorf("invalid min contrast: %d (must be between 0 and 255)", c.Capture.MinContrast)
	}
	if err := c.Layout().Validate(); err != nil {
		return fmt.Errorf("invalid capture layout: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerMinute <= 0 || rl.RequestsPerHour <= 0) {
		return fmt.Errorf("invalid rate limit: %d/min, %d/h (must be positive)", rl.RequestsPerMinute, rl.RequestsPerHour)
	}
	if c.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d (must be positive)", c.Batch.Workers)
	}
	return nil
}

// Layout converts the capture section to a capture.Layout.
func (c *Config) Layout() capture.Layout {
	contrast := min(max(c.Capture.MinContrast, 0), 255)
	return capture.Layout{
		PositivePattern: c.Capture.PositivePattern,
		InversePattern:  c.Capture.InversePattern,
		MaskFile:        c.Capture.MaskFile,
		MinContrast:     uint8(contrast), //nolint:gosec // G115: clamped above
	}
}

// ToPipelineConfig converts the config to the pipeline configuration.
func (c *Config) ToPipelineConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Decode.GrayCode = c.Decode.GrayCode
	cfg.Decode.Workers = c.Decode.Workers
	cfg.ExtractFringe = c.Decode.ExtractFringe
	cfg.IncludePoints = c.Decode.IncludePoints
	cfg.MaxPatterns = c.Decode.MaxPatterns
	cfg.Layout = c.Layout()
	cfg.Constraints.MaxWidth = c.Decode.MaxImageSize
	cfg.Constraints.MaxHeight = c.Decode.MaxImageSize
	cfg.Parallel.MaxWorkers = c.Batch.Workers
	return cfg
}
