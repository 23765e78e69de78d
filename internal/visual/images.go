package visual

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/xyzbank/banking-e2e/internal/visual/pixeldiff"
)

// Diff is the outcome of comparing two encoded PNG images.
type Diff struct {
	Pixels int
	Width  int
	Height int
	// PNG is the encoded diff visualization.
	PNG []byte
}

// CompareImages decodes baseline and actual, counts differing pixels at the
// given threshold and renders the diff image at the baseline's size.
func CompareImages(baseline, actual []byte, threshold float64) (*Diff, error) {
	base, err := decodePNG(baseline)
	if err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}
	act, err := decodePNG(actual)
	if err != nil {
		return nil, fmt.Errorf("decode actual: %w", err)
	}

	if base.Size() != act.Size() {
		return nil, &DimensionMismatchError{Baseline: base.Size(), Actual: act.Size()}
	}

	out := pixeldiff.NewImageBuffer(base.Width, base.Height)
	opts := pixeldiff.DefaultOptions()
	opts.Threshold = threshold

	n, err := pixeldiff.Match(base.Pix, act.Pix, out.Pix, base.Width, base.Height, opts)
	if err != nil {
		return nil, err
	}

	encoded, err := encodePNG(out)
	if err != nil {
		return nil, fmt.Errorf("encode diff: %w", err)
	}

	return &Diff{
		Pixels: n,
		Width:  base.Width,
		Height: base.Height,
		PNG:    encoded,
	}, nil
}

func decodePNG(data []byte) (*pixeldiff.ImageBuffer, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return pixeldiff.FromImage(img), nil
}

func encodePNG(buf *pixeldiff.ImageBuffer) ([]byte, error) {
	var out bytes.Buffer
	if err := png.Encode(&out, buf.ToImage()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
