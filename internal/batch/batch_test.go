package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeCaptureTree(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	root := testutil.CreateTempDir(t)
	dirs := make([]string, len(names))
	for i, name := range names {
		cfg := testutil.DefaultCaptureConfig()
		cfg.Bits = 4
		cfg.Seed = int64(i)
		c, err := testutil.GenerateCapture(cfg)
		require.NoError(t, err)
		dirs[i] = filepath.Join(root, name)
		require.NoError(t, testutil.WriteCapture(dirs[i], c))
	}
	return root, dirs
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.ShowProgress = false
	cfg.Quiet = true
	cfg.Workers = 2
	return cfg
}

func TestProcessBatch(t *testing.T) {
	root, dirs := writeCaptureTree(t, "scan_a", "scan_b", "scan_c")
	cfg := quietConfig()
	cfg.DebugDir = filepath.Join(root, "debug")

	res, err := ProcessBatch(context.Background(), []string{root}, cfg)
	require.NoError(t, err)
	require.Len(t, res.Results, 3)
	assert.Equal(t, dirs, res.Dirs)
	assert.Zero(t, res.Failed())
	assert.Equal(t, 2, res.WorkerCount)
	for i, r := range res.Results {
		require.NotNil(t, r)
		assert.Equal(t, dirs[i], r.Source)
		assert.Equal(t, 4, r.Patterns)
	}

	assert.FileExists(t, filepath.Join(cfg.DebugDir, "000_scan_a", pipeline.CodewordFileName))
	assert.FileExists(t, filepath.Join(cfg.DebugDir, "002_scan_c", pipeline.OverlayFileName))
}

func TestProcessBatch_FailedCapture(t *testing.T) {
	root, _ := writeCaptureTree(t, "scan_a", "scan_b")
	broken := filepath.Join(root, "scan_broken")
	require.NoError(t, testutil.EnsureDir(broken))
	// Lone pattern without its inverse.
	src := filepath.Join(root, "scan_a", "pattern_00.png")
	data, err := os.ReadFile(src) //nolint:gosec // G304: test temp file
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(broken, "pattern_00.png"), data, 0o600))

	cfg := quietConfig()
	_, err = ProcessBatch(context.Background(), []string{root}, cfg)
	require.Error(t, err)

	cfg.ContinueOnError = true
	res, err := ProcessBatch(context.Background(), []string{root}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed())
	assert.Nil(t, res.Results[2])
	assert.Error(t, res.Errors[2])

	var stats bytes.Buffer
	res.PrintStats(&stats, false)
	assert.Contains(t, stats.String(), "Total captures: 3")
	assert.Contains(t, stats.String(), "Failed: 1")
}

func TestProcessBatch_NoCaptures(t *testing.T) {
	_, err := ProcessBatch(context.Background(), []string{testutil.CreateTempDir(t)}, quietConfig())
	assert.ErrorIs(t, err, ErrNoCaptures)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	root, _ := writeCaptureTree(t, "scan_a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessBatch(ctx, []string{root}, quietConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func sampleBatch() *Result {
	ok := &pipeline.Result{Source: "/caps/a", Width: 8, Height: 4, Patterns: 3, GrayCode: true}
	ok.Decode.ValidPixels = 32
	ok.Decode.DecodedPixels = 32
	ok.Fringe = &pipeline.FringeSummary{Transitions: 28, Levels: 7, Points: 40}
	return &Result{
		Results: []*pipeline.Result{ok, nil},
		Errors:  []error{nil, errors.New("no pattern files found")},
		Dirs:    []string{"/caps/a", "/caps/b"},
	}
}

func TestFormatResults(t *testing.T) {
	r := sampleBatch()

	t.Run("text", func(t *testing.T) {
		out, err := r.FormatResults("text")
		require.NoError(t, err)
		assert.Contains(t, out, "# /caps/a\n")
		assert.Contains(t, out, "Transitions: 28")
		assert.Contains(t, out, "# /caps/b\nerror: no pattern files found")
	})

	t.Run("json", func(t *testing.T) {
		out, err := r.FormatResults("json")
		require.NoError(t, err)
		var doc batchDocument
		require.NoError(t, json.Unmarshal([]byte(out), &doc))
		require.Len(t, doc.Captures, 2)
		assert.Equal(t, 32, doc.Captures[0].Result.Decode.ValidPixels)
		assert.Nil(t, doc.Captures[1].Result)
		assert.Equal(t, "no pattern files found", doc.Captures[1].Error)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := r.FormatResults("yaml")
		require.NoError(t, err)
		var doc batchDocument
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		require.Len(t, doc.Captures, 2)
		assert.Equal(t, "/caps/a", doc.Captures[0].Dir)
		assert.Equal(t, 7, doc.Captures[0].Result.Fringe.Levels)
	})

	t.Run("csv", func(t *testing.T) {
		out, err := r.FormatResults("csv")
		require.NoError(t, err)
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "dir", rows[0][0])
		assert.Equal(t, []string{"/caps/a", "8", "4", "3", "true", "32", "32", "0", "28", "7", "40", ""}, rows[1])
		assert.Equal(t, "no pattern files found", rows[2][11])
	})
}

func TestSaveResults(t *testing.T) {
	r := sampleBatch()

	var stdout bytes.Buffer
	require.NoError(t, r.SaveResults(&stdout, "csv", "", false))
	assert.True(t, strings.HasPrefix(stdout.String(), "dir,width"))

	stdout.Reset()
	file := filepath.Join(testutil.CreateTempDir(t), "out.json")
	require.NoError(t, r.SaveResults(&stdout, "json", file, false))
	assert.Contains(t, stdout.String(), "Results written to")
	assert.FileExists(t, file)

	stdout.Reset()
	require.NoError(t, r.SaveResults(&stdout, "json", file, true))
	assert.Empty(t, stdout.String())
}
