package support

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/cucumber/godog"
)

// writeCapture generates a capture and registers it under name.
func (testCtx *TestContext) writeCapture(name string, cfg testutil.CaptureConfig) error {
	c, err := testutil.GenerateCapture(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate capture %s: %w", name, err)
	}
	dir := filepath.Join(testCtx.TempDir, "captures", name)
	if err := testutil.WriteCapture(dir, c); err != nil {
		return err
	}
	testCtx.Captures[name] = dir
	return nil
}

func (testCtx *TestContext) aGrayCodedCapture(name string, bits int) error {
	cfg := testutil.DefaultCaptureConfig()
	cfg.Bits = bits
	return testCtx.writeCapture(name, cfg)
}

func (testCtx *TestContext) aBinaryCapture(name string, bits int) error {
	cfg := testutil.DefaultCaptureConfig()
	cfg.Bits = bits
	cfg.GrayCode = false
	return testCtx.writeCapture(name, cfg)
}

// aFullMaskCapture writes a capture whose every pixel is valid, so the
// decoded counts are exact: width*height pixels and (width-1)*height
// transitions.
func (testCtx *TestContext) aFullMaskCapture(name string, width, height, bits int) error {
	cfg := testutil.DefaultCaptureConfig()
	cfg.Width, cfg.Height, cfg.Bits = width, height, bits
	cfg.Mask = testutil.MaskFull
	return testCtx.writeCapture(name, cfg)
}

// theCaptureHasNoMaskFile removes the mask so the decoder falls back to the
// contrast or all-valid mask.
func (testCtx *TestContext) theCaptureHasNoMaskFile(name string) error {
	dir, ok := testCtx.Captures[name]
	if !ok {
		return fmt.Errorf("unknown capture %s", name)
	}
	return os.Remove(filepath.Join(dir, testutil.MaskFileName))
}

// theCaptureIsMissingAnInverse deletes the last inverse image.
func (testCtx *TestContext) theCaptureIsMissingAnInverse(name string) error {
	dir, ok := testCtx.Captures[name]
	if !ok {
		return fmt.Errorf("unknown capture %s", name)
	}
	cfg, err := testutil.ReadCaptureConfig(dir)
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(dir, fmt.Sprintf(testutil.InverseFileFormat, cfg.Bits-1)))
}

func (testCtx *TestContext) anEmptyDirectory(name string) error {
	dir := filepath.Join(testCtx.TempDir, "captures", name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	testCtx.Captures[name] = dir
	return nil
}

// RegisterCaptureSteps registers synthetic capture steps.
func (testCtx *TestContext) RegisterCaptureSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a Gray-coded capture "([^"]*)" with (\d+) patterns$`, testCtx.aGrayCodedCapture)
	sc.Step(`^a binary capture "([^"]*)" with (\d+) patterns$`, testCtx.aBinaryCapture)
	sc.Step(`^a full-mask capture "([^"]*)" of (\d+)x(\d+) pixels with (\d+) patterns$`, testCtx.aFullMaskCapture)
	sc.Step(`^the capture "([^"]*)" has no mask file$`, testCtx.theCaptureHasNoMaskFile)
	sc.Step(`^the capture "([^"]*)" is missing an inverse image$`, testCtx.theCaptureIsMissingAnInverse)
	sc.Step(`^an empty directory "([^"]*)"$`, testCtx.anEmptyDirectory)
}
