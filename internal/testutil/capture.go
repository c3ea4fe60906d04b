package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/utils"
)

// MaskShape selects the valid region of a synthetic capture.
type MaskShape string

const (
	MaskFull MaskShape = "full"
	MaskDisc MaskShape = "disc"
)

// CaptureConfig describes a synthetic stripe capture: Bits vertical stripe
// patterns, each with its photometric inverse, seen by a camera aligned with
// the projector.
type CaptureConfig struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Bits     int       `json:"bits"`
	GrayCode bool      `json:"gray_code"`
	Bright   uint8     `json:"bright"`
	Dark     uint8     `json:"dark"`
	Blur     float64   `json:"blur"`
	Noise    int       `json:"noise"`
	Seed     int64     `json:"seed"`
	Mask     MaskShape `json:"mask"`
}

// DefaultCaptureConfig returns a small, noise-free Gray-coded capture.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		Width:    64,
		Height:   48,
		Bits:     6,
		GrayCode: true,
		Bright:   220,
		Dark:     30,
		Mask:     MaskDisc,
	}
}

// Capture is a generated pattern stack.
type Capture struct {
	Config    CaptureConfig
	Positives []*image.Gray
	Inverses  []*image.Gray
	Mask      *image.Gray
}

// Validate checks the generator configuration.
func (c CaptureConfig) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	}
	if c.Bits < 1 || c.Bits > codeword.MaxPatterns {
		return fmt.Errorf("bits must be in [1, %d], got %d", codeword.MaxPatterns, c.Bits)
	}
	if c.Bright <= c.Dark {
		return errors.New("bright level must exceed dark level")
	}
	if c.Mask != MaskFull && c.Mask != MaskDisc {
		return fmt.Errorf("unknown mask shape %q", c.Mask)
	}
	return nil
}

// Stripe returns the projector stripe index seen by column x.
func (c CaptureConfig) Stripe(x int) int {
	return x * (1 << c.Bits) / c.Width
}

// ExpectedCodeword returns the codeword a decoder should produce for column
// x when pixel noise and blur do not flip any bit.
func (c CaptureConfig) ExpectedCodeword(x int) uint16 {
	encoded := c.encoded(x)
	if c.GrayCode {
		return codeword.GrayToBinary(encoded << 1)
	}
	return encoded << 1
}

func (c CaptureConfig) encoded(x int) uint16 {
	s := uint16(c.Stripe(x))
	if c.GrayCode {
		return codeword.BinaryToGray(s)
	}
	return s
}

// GenerateCapture renders the positive and inverse pattern images plus the
// validity mask for cfg.
func GenerateCapture(cfg CaptureConfig) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: deterministic test data
	c := &Capture{Config: cfg, Mask: renderMask(cfg)}
	for bit := range cfg.Bits {
		pos := image.NewGray(image.Rect(0, 0, cfg.Width, cfg.Height))
		inv := image.NewGray(image.Rect(0, 0, cfg.Width, cfg.Height))
		for x := range cfg.Width {
			on := cfg.encoded(x)>>bit&1 == 1
			p, n := cfg.Dark, cfg.Bright
			if on {
				p, n = cfg.Bright, cfg.Dark
			}
			for y := range cfg.Height {
				pos.Pix[y*pos.Stride+x] = jitter(rng, p, cfg.Noise)
				inv.Pix[y*inv.Stride+x] = jitter(rng, n, cfg.Noise)
			}
		}
		c.Positives = append(c.Positives, utils.Blur(pos, cfg.Blur))
		c.Inverses = append(c.Inverses, utils.Blur(inv, cfg.Blur))
	}
	return c, nil
}

func renderMask(cfg CaptureConfig) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, cfg.Width, cfg.Height))
	cx, cy := float64(cfg.Width-1)/2, float64(cfg.Height-1)/2
	rx, ry := 0.45*float64(cfg.Width), 0.45*float64(cfg.Height)
	for y := range cfg.Height {
		for x := range cfg.Width {
			valid := true
			if cfg.Mask == MaskDisc {
				dx, dy := (float64(x)-cx)/rx, (float64(y)-cy)/ry
				valid = math.Hypot(dx, dy) <= 1
			}
			if valid {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

func jitter(rng *rand.Rand, v uint8, noise int) uint8 {
	if noise <= 0 {
		return v
	}
	n := int(v) + rng.Intn(2*noise+1) - noise
	return uint8(min(max(n, 0), 255))
}

// Capture file names written by WriteCapture.
const (
	PatternFileFormat = "pattern_%02d.png"
	InverseFileFormat = "inverse_%02d.png"
	MaskFileName      = "mask.png"
	ConfigFileName    = "capture.json"
)

// WriteCapture stores c in dir as numbered PNG files plus a JSON description
// of the generator configuration.
func WriteCapture(dir string, c *Capture) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}
	for i := range c.Positives {
		if err := utils.SaveImage(filepath.Join(dir, fmt.Sprintf(PatternFileFormat, i)), c.Positives[i]); err != nil {
			return err
		}
		if err := utils.SaveImage(filepath.Join(dir, fmt.Sprintf(InverseFileFormat, i)), c.Inverses[i]); err != nil {
			return err
		}
	}
	if err := utils.SaveImage(filepath.Join(dir, MaskFileName), c.Mask); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c.Config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal capture config: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0o600)
}

// ReadCaptureConfig loads the JSON description written by WriteCapture.
func ReadCaptureConfig(dir string) (CaptureConfig, error) {
	var cfg CaptureConfig
	data, err := os.ReadFile(filepath.Join(dir, ConfigFileName)) //nolint:gosec // G304: test data path
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", ConfigFileName, err)
	}
	return cfg, nil
}
