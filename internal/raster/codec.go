package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
)

// ToImage converts the raster to an opaque RGBA image.
func (r Raster) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: r.At(0, y, x), G: r.At(1, y, x), B: r.At(2, y, x), A: 0xff})
		}
	}
	return img
}

// FromImage converts any image to a raster, dropping alpha.
func FromImage(img image.Image) Raster {
	b := img.Bounds()
	r := New(b.Dy(), b.Dx())
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			r.Set(0, y, x, c.R)
			r.Set(1, y, x, c.G)
			r.Set(2, y, x, c.B)
		}
	}
	return r
}

// EncodePNG writes the raster as an 8-bit RGB PNG.
func EncodePNG(w io.Writer, r Raster) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := png.Encode(w, r.ToImage()); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return nil
}

// DecodePNG reads a PNG written by EncodePNG.
func DecodePNG(rd io.Reader) (Raster, error) {
	img, err := png.Decode(rd)
	if err != nil {
		return Raster{}, fmt.Errorf("failed to decode png: %w", err)
	}
	return FromImage(img), nil
}
