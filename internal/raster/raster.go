// Package raster provides the channel-first 8-bit RGB raster persisted for each sample.
package raster

import (
	"fmt"
	"math"
)

// Channels is the number of planes in every raster (R, G, B).
const Channels = 3

// Raster is a 3×Height×Width array of 8-bit values stored plane by plane:
// all red pixels, then all green, then all blue.
type Raster struct {
	Height int
	Width  int
	Pix    []uint8
}

// New allocates a zeroed raster.
func New(height, width int) Raster {
	return Raster{Height: height, Width: width, Pix: make([]uint8, Channels*height*width)}
}

// Validate checks that the dimensions are positive and match the pixel buffer.
func (r Raster) Validate() error {
	if r.Height <= 0 || r.Width <= 0 {
		return fmt.Errorf("raster has empty dimensions %dx%d", r.Height, r.Width)
	}
	if want := Channels * r.Height * r.Width; len(r.Pix) != want {
		return fmt.Errorf("raster buffer has %d values, want %d for 3x%dx%d", len(r.Pix), want, r.Height, r.Width)
	}
	return nil
}

// Plane returns the pixels of one channel.
func (r Raster) Plane(c int) []uint8 {
	n := r.Height * r.Width
	return r.Pix[c*n : (c+1)*n]
}

// At returns the value of channel c at row y, column x.
func (r Raster) At(c, y, x int) uint8 {
	return r.Pix[c*r.Height*r.Width+y*r.Width+x]
}

// Set assigns the value of channel c at row y, column x.
func (r Raster) Set(c, y, x int, v uint8) {
	r.Pix[c*r.Height*r.Width+y*r.Width+x] = v
}

// Sum returns the total of every pixel value across all channels.
func (r Raster) Sum() uint64 {
	var s uint64
	for _, v := range r.Pix {
		s += uint64(v)
	}
	return s
}

// Degenerate reports whether the raster carries no signal: every value is zero.
func (r Raster) Degenerate() bool {
	for _, v := range r.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// FromPlanes assembles a raster from three float planes without rescaling.
// Values are rounded and clamped to [0, 255]; NaN becomes 0.
func FromPlanes(planes [][]float64, height, width int) (Raster, error) {
	if err := checkPlanes(planes, height, width); err != nil {
		return Raster{}, err
	}
	r := New(height, width)
	n := height * width
	for c := 0; c < Channels; c++ {
		for i, v := range planes[c] {
			r.Pix[c*n+i] = clampByte(v)
		}
	}
	return r, nil
}

// Normalize assembles a raster from three float planes and linearly rescales the values
// so the minimum across the whole array maps to 0 and the maximum to 255. NaN values
// (nodata) are ignored when computing the range and become 0. A constant array maps
// to all zeros.
func Normalize(planes [][]float64, height, width int) (Raster, error) {
	if err := checkPlanes(planes, height, width); err != nil {
		return Raster{}, err
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range planes[:Channels] {
		for _, v := range p {
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}

	r := New(height, width)
	span := hi - lo
	if math.IsInf(lo, 0) || span <= 0 {
		return r, nil
	}

	n := height * width
	for c := 0; c < Channels; c++ {
		for i, v := range planes[c] {
			if math.IsNaN(v) {
				continue
			}
			r.Pix[c*n+i] = clampByte((v - lo) / span * 255)
		}
	}
	return r, nil
}

func checkPlanes(planes [][]float64, height, width int) error {
	if height <= 0 || width <= 0 {
		return fmt.Errorf("empty clip %dx%d", height, width)
	}
	if len(planes) < Channels {
		return fmt.Errorf("need %d planes, got %d", Channels, len(planes))
	}
	for c := 0; c < Channels; c++ {
		if len(planes[c]) != height*width {
			return fmt.Errorf("plane %d has %d values, want %d", c, len(planes[c]), height*width)
		}
	}
	return nil
}

func clampByte(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(math.Round(v))
	}
}
