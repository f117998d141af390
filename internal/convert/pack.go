package convert

import (
	"errors"
	"image"
	"image/color"
)

// DefaultThreshold is the luma below which a pixel becomes ink.
const DefaultThreshold = 128

// Palette is the two-colour palette of Monochrome images; index 0 is ink.
var Palette = color.Palette{color.Black, color.White}

// Options controls the black/white reduction.
type Options struct {
	// Threshold is compared against luma (0..255). Zero means
	// DefaultThreshold.
	Threshold uint8
	// Invert treats light pixels as ink, for dark-themed pages on paper
	// panels.
	Invert bool
}

// Plane is a packed 1bpp bitmap, y-major and MSB-first. A 0 bit is ink,
// matching what e-paper controllers expect:
//
//	byteIndex = y*Stride + x>>3
//	mask      = 0x80 >> (x & 7)
type Plane struct {
	Width  int
	Height int
	Stride int
	Bits   []byte
}

// Monochrome reduces img to a black/white paletted image.
func Monochrome(img image.Image, opts Options) *image.Paletted {
	b := img.Bounds()
	out := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), Palette)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			idx := uint8(1)
			if isInk(img.At(b.Min.X+x, b.Min.Y+y), opts) {
				idx = 0
			}
			out.SetColorIndex(x, y, idx)
		}
	}
	return out
}

// Pack converts img into a Plane. Widths that are not a multiple of 8 are
// padded with white.
func Pack(img image.Image, opts Options) (Plane, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return Plane{}, errors.New("convert: empty image")
	}

	p := Plane{Width: w, Height: h, Stride: (w + 7) / 8}
	p.Bits = make([]byte, p.Stride*h)

	// All white, then clear ink bits.
	for i := range p.Bits {
		p.Bits[i] = 0xFF
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !isInk(img.At(b.Min.X+x, b.Min.Y+y), opts) {
				continue
			}
			p.Bits[y*p.Stride+(x>>3)] &^= byte(0x80 >> (x & 7))
		}
	}
	return p, nil
}

// Ink reports whether the pixel at (x, y) is ink.
func (p Plane) Ink(x, y int) bool {
	return p.Bits[y*p.Stride+(x>>3)]&byte(0x80>>(x&7)) == 0
}

func isInk(c color.Color, opts Options) bool {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)

	// Mostly transparent pixels are paper.
	if n.A < 128 {
		return false
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	y := 0.299*float64(n.R) + 0.587*float64(n.G) + 0.114*float64(n.B)
	dark := y < float64(threshold)
	if opts.Invert {
		return !dark
	}
	return dark
}
