package convert

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage is 10x2: row 0 dark text on light paper, row 1 the reverse.
func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 2))
	for x := 0; x < 10; x++ {
		if x%2 == 0 {
			img.Set(x, 0, color.NRGBA{R: 20, G: 20, B: 20, A: 255})
			img.Set(x, 1, color.NRGBA{R: 240, G: 240, B: 240, A: 255})
		} else {
			img.Set(x, 0, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
			img.Set(x, 1, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	// Transparent pixels are paper even when dark.
	img.Set(9, 1, color.NRGBA{A: 0})
	return img
}

func TestPack(t *testing.T) {
	t.Parallel()

	p, err := Pack(testImage(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, p.Width)
	assert.Equal(t, 2, p.Height)
	assert.Equal(t, 2, p.Stride)
	require.Len(t, p.Bits, 4)

	// Row 0: ink at even x -> 0b01010101, then x=8 ink, x=9 paper, padding white.
	assert.Equal(t, byte(0x55), p.Bits[0])
	assert.Equal(t, byte(0x7F), p.Bits[1])

	assert.True(t, p.Ink(0, 0))
	assert.False(t, p.Ink(1, 0))
	assert.True(t, p.Ink(1, 1))
	assert.False(t, p.Ink(9, 1))
}

func TestPackInvert(t *testing.T) {
	t.Parallel()

	p, err := Pack(testImage(), Options{Invert: true})
	require.NoError(t, err)
	assert.False(t, p.Ink(0, 0))
	assert.True(t, p.Ink(1, 0))
	assert.True(t, p.Ink(0, 1))
	assert.False(t, p.Ink(9, 1), "transparent stays paper when inverted")
}

func TestPackEmpty(t *testing.T) {
	t.Parallel()

	_, err := Pack(image.NewNRGBA(image.Rect(0, 0, 0, 0)), Options{})
	assert.Error(t, err)
}

func TestMonochrome(t *testing.T) {
	t.Parallel()

	src := testImage()
	m := Monochrome(src, Options{})
	assert.Equal(t, src.Bounds(), m.Bounds())
	assert.Equal(t, uint8(0), m.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(1), m.ColorIndexAt(1, 0))

	p, err := Pack(src, Options{})
	require.NoError(t, err)
	for y := 0; y < 2; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, p.Ink(x, y), m.ColorIndexAt(x, y) == 0, "pixel %d,%d", x, y)
		}
	}
}
