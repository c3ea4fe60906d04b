package utils

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImageConstraints(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	cons := ImageConstraints{MaxWidth: 1024, MaxHeight: 1024, MinWidth: 32, MinHeight: 32}
	require.NoError(t, ValidateImageConstraints(img, cons))

	cons.MinWidth = 128
	assert.Error(t, ValidateImageConstraints(img, cons))

	cons = ImageConstraints{MaxWidth: 32, MaxHeight: 1024}
	assert.Error(t, ValidateImageConstraints(img, cons))

	cons = ImageConstraints{}
	assert.NoError(t, ValidateImageConstraints(img, cons), "zero maximum is unbounded")

	err := ValidateImageConstraints(nil, DefaultImageConstraints())
	var ipe *ImageProcessingError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, "validate", ipe.Operation)
}

func TestImageProcessingError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	err := &ImageProcessingError{Operation: "decode", Err: base}
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "decode")
}

func TestToGray_PassThroughAndConvert(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 2, 2))
	assert.Same(t, g, ToGray(g))

	shifted := image.NewGray(image.Rect(3, 3, 5, 4))
	shifted.SetGray(4, 3, color.Gray{Y: 77})
	out := ToGray(shifted)
	assert.Equal(t, image.Rect(0, 0, 2, 1), out.Bounds())
	assert.Equal(t, uint8(77), out.GrayAt(1, 0).Y)

	rgba := image.NewRGBA(image.Rect(0, 0, 1, 1))
	rgba.Set(0, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	assert.Equal(t, uint8(255), ToGray(rgba).GrayAt(0, 0).Y)
}

func TestBlur(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 1))
	img.Pix[4] = 255

	assert.Same(t, img, Blur(img, 0))

	blurred := Blur(img, 1.0)
	assert.Equal(t, img.Bounds(), blurred.Bounds())
	assert.Less(t, blurred.GrayAt(4, 0).Y, uint8(255))
	assert.Greater(t, blurred.GrayAt(3, 0).Y, uint8(0))
}

func TestSameSize(t *testing.T) {
	a := image.NewGray(image.Rect(0, 0, 4, 4))
	b := image.NewGray(image.Rect(10, 10, 14, 14))
	c := image.NewGray(image.Rect(0, 0, 3, 4))
	assert.True(t, SameSize())
	assert.True(t, SameSize(a, b))
	assert.False(t, SameSize(a, b, c))
}
