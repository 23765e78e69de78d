// Package pixeldiff counts differing pixels between two RGBA buffers and
// renders a diff visualization.
package pixeldiff

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// maxYIQDelta is the largest possible YIQ delta between two colours.
const maxYIQDelta = 35215

// DefaultThreshold matches a pixel when its colour delta stays within
// roughly 10% of the dynamic range.
const DefaultThreshold = 0.1

var (
	// ErrBufferSize is returned when a buffer does not hold width*height*4 bytes.
	ErrBufferSize = errors.New("pixeldiff: buffer size does not match dimensions")
	// ErrThreshold is returned for a threshold outside [0, 1].
	ErrThreshold = errors.New("pixeldiff: threshold must be between 0 and 1")
)

// Options configures Match.
type Options struct {
	// Threshold is the matching sensitivity on a 0-1 scale. Smaller is stricter.
	Threshold float64

	// Alpha is the opacity of unchanged pixels in the diff output.
	Alpha float64

	// DiffColor is the colour used for differing pixels.
	DiffColor [3]uint8
}

// DefaultOptions returns the options used by the comparator.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		Alpha:     0.1,
		DiffColor: [3]uint8{255, 0, 0},
	}
}

// ImageBuffer is a decoded raster in non-premultiplied RGBA, 4 bytes per
// pixel, row-major.
type ImageBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewImageBuffer allocates a zeroed buffer.
func NewImageBuffer(width, height int) *ImageBuffer {
	return &ImageBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}
}

// FromImage converts any image into a tightly packed RGBA buffer.
func FromImage(img image.Image) *ImageBuffer {
	b := img.Bounds()
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) || len(nrgba.Pix) != b.Dx()*b.Dy()*4 {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}
	return &ImageBuffer{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    nrgba.Pix,
	}
}

// ToImage wraps the buffer as an image without copying.
func (b *ImageBuffer) ToImage() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Size returns the buffer dimensions as a point.
func (b *ImageBuffer) Size() image.Point {
	return image.Pt(b.Width, b.Height)
}

// Match compares a and b and returns the number of pixels whose colour delta
// exceeds the threshold. When out is non-nil it receives the diff
// visualization: differing pixels in DiffColor, matching pixels as a faded
// grayscale of a.
func Match(a, b, out []byte, width, height int, opts Options) (int, error) {
	size := width * height * 4
	if width < 0 || height < 0 || len(a) != size || len(b) != size {
		return 0, fmt.Errorf("%w: want %d bytes for %dx%d, got %d and %d",
			ErrBufferSize, size, width, height, len(a), len(b))
	}
	if out != nil && len(out) != size {
		return 0, fmt.Errorf("%w: output has %d bytes, want %d", ErrBufferSize, len(out), size)
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return 0, fmt.Errorf("%w: %v", ErrThreshold, opts.Threshold)
	}

	maxDelta := maxYIQDelta * opts.Threshold * opts.Threshold
	diff := 0

	for pos := 0; pos < size; pos += 4 {
		delta := colorDelta(a, b, pos)
		if delta > maxDelta {
			diff++
			if out != nil {
				out[pos] = opts.DiffColor[0]
				out[pos+1] = opts.DiffColor[1]
				out[pos+2] = opts.DiffColor[2]
				out[pos+3] = 255
			}
			continue
		}
		if out != nil {
			grayPixel(a, out, pos, opts.Alpha)
		}
	}

	return diff, nil
}

// colorDelta returns the squared YIQ distance between the pixels at pos.
func colorDelta(a, b []byte, pos int) float64 {
	r1, g1, b1 := blended(a, pos)
	r2, g2, b2 := blended(b, pos)

	y := rgb2y(r1, g1, b1) - rgb2y(r2, g2, b2)
	i := rgb2i(r1, g1, b1) - rgb2i(r2, g2, b2)
	q := rgb2q(r1, g1, b1) - rgb2q(r2, g2, b2)

	return 0.5053*y*y + 0.299*i*i + 0.1957*q*q
}

// blended composites a pixel over white.
func blended(buf []byte, pos int) (float64, float64, float64) {
	r, g, b := float64(buf[pos]), float64(buf[pos+1]), float64(buf[pos+2])
	if a := buf[pos+3]; a < 255 {
		alpha := float64(a) / 255
		r, g, b = blend(r, alpha), blend(g, alpha), blend(b, alpha)
	}
	return r, g, b
}

func grayPixel(src, out []byte, pos int, alpha float64) {
	r, g, b := float64(src[pos]), float64(src[pos+1]), float64(src[pos+2])
	v := blend(rgb2y(r, g, b), alpha*float64(src[pos+3])/255)
	gray := clamp(v)
	out[pos] = gray
	out[pos+1] = gray
	out[pos+2] = gray
	out[pos+3] = 255
}

func blend(c, a float64) float64 {
	return 255 + (c-255)*a
}

func rgb2y(r, g, b float64) float64 { return r*0.29889531 + g*0.58662247 + b*0.11448223 }
func rgb2i(r, g, b float64) float64 { return r*0.59597799 - g*0.27417610 - b*0.32180189 }
func rgb2q(r, g, b float64) float64 { return r*0.21147017 - g*0.52261711 + b*0.31114694 }

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
