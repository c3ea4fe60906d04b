package config

import (
	"testing"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Decode.GrayCode)
	assert.True(t, cfg.Decode.ExtractFringe)
	assert.Equal(t, capture.DefaultLayout(), cfg.Layout())
	assert.Equal(t, "text", cfg.Output.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 4, cfg.Batch.Workers)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "xml" }, "invalid output format"},
		{"empty format allowed", func(c *Config) { c.Output.Format = "" }, ""},
		{"yaml format", func(c *Config) { c.Output.Format = "yaml" }, ""},
		{"negative decode workers", func(c *Config) { c.Decode.Workers = -1 }, "decode workers"},
		{"max patterns", func(c *Config) { c.Decode.MaxPatterns = 16 }, "max patterns"},
		{"max image size", func(c *Config) { c.Decode.MaxImageSize = -1 }, "max image size"},
		{"min contrast", func(c *Config) { c.Capture.MinContrast = 256 }, "min contrast"},
		{"layout", func(c *Config) { c.Capture.InversePattern = c.Capture.PositivePattern }, "capture layout"},
		{"bad glob", func(c *Config) { c.Capture.PositivePattern = "[" }, "capture layout"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload"},
		{"timeout", func(c *Config) { c.Server.TimeoutSec = 0 }, "timeout"},
		{"rate limit", func(c *Config) {
			c.Server.RateLimit.Enabled = true
			c.Server.RateLimit.RequestsPerMinute = 0
		}, "rate limit"},
		{"rate limit disabled ignores values", func(c *Config) { c.Server.RateLimit.RequestsPerMinute = 0 }, ""},
		{"batch workers", func(c *Config) { c.Batch.Workers = 0 }, "batch workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestToPipelineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Decode.GrayCode = false
	cfg.Decode.Workers = 3
	cfg.Decode.MaxPatterns = 10
	cfg.Decode.ExtractFringe = false
	cfg.Decode.IncludePoints = true
	cfg.Decode.MaxImageSize = 2048
	cfg.Capture.MinContrast = 40
	cfg.Batch.Workers = 6

	pc := cfg.ToPipelineConfig()
	assert.False(t, pc.Decode.GrayCode)
	assert.Equal(t, 3, pc.Decode.Workers)
	assert.Equal(t, 10, pc.MaxPatterns)
	assert.False(t, pc.ExtractFringe)
	assert.True(t, pc.IncludePoints)
	assert.Equal(t, 2048, pc.Constraints.MaxWidth)
	assert.Equal(t, 2048, pc.Constraints.MaxHeight)
	assert.Equal(t, uint8(40), pc.Layout.MinContrast)
	assert.Equal(t, 6, pc.Parallel.MaxWorkers)
}

func TestLayoutClampsContrast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capture.MinContrast = 1000
	assert.Equal(t, uint8(255), cfg.Layout().MinContrast)
	cfg.Capture.MinContrast = -5
	assert.Equal(t, uint8(0), cfg.Layout().MinContrast)
}
