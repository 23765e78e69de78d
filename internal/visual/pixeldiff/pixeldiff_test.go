package pixeldiff

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *ImageBuffer {
	buf := NewImageBuffer(w, h)
	for i := 0; i < len(buf.Pix); i += 4 {
		buf.Pix[i] = c.R
		buf.Pix[i+1] = c.G
		buf.Pix[i+2] = c.B
		buf.Pix[i+3] = c.A
	}
	return buf
}

func fillRect(buf *ImageBuffer, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			pos := (y*buf.Width + x) * 4
			buf.Pix[pos] = c.R
			buf.Pix[pos+1] = c.G
			buf.Pix[pos+2] = c.B
			buf.Pix[pos+3] = c.A
		}
	}
}

var (
	white = color.NRGBA{255, 255, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
	red   = color.NRGBA{255, 0, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
)

func TestMatch(t *testing.T) {
	t.Run("identical buffers have no differing pixels", func(t *testing.T) {
		a := solid(20, 10, red)
		b := solid(20, 10, red)
		out := make([]byte, len(a.Pix))

		n, err := Match(a.Pix, b.Pix, out, 20, 10, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("different colours count every pixel", func(t *testing.T) {
		a := solid(10, 10, red)
		b := solid(10, 10, blue)

		n, err := Match(a.Pix, b.Pix, nil, 10, 10, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 100, n)
	})

	t.Run("rectangle of changed pixels", func(t *testing.T) {
		a := solid(50, 40, white)
		b := solid(50, 40, white)
		fillRect(b, image.Rect(5, 5, 17, 13), black)

		n, err := Match(a.Pix, b.Pix, nil, 50, 40, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 12*8, n)
	})

	t.Run("sub-threshold perturbation is ignored", func(t *testing.T) {
		a := solid(8, 8, color.NRGBA{120, 130, 140, 255})
		b := solid(8, 8, color.NRGBA{122, 128, 142, 255})

		n, err := Match(a.Pix, b.Pix, nil, 8, 8, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("perturbation above threshold is counted", func(t *testing.T) {
		a := solid(8, 8, color.NRGBA{120, 130, 140, 255})
		b := solid(8, 8, color.NRGBA{120, 130, 140, 255})
		fillRect(b, image.Rect(3, 3, 4, 4), color.NRGBA{200, 130, 140, 255})

		n, err := Match(a.Pix, b.Pix, nil, 8, 8, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("zero threshold flags any change", func(t *testing.T) {
		a := solid(4, 4, color.NRGBA{100, 100, 100, 255})
		b := solid(4, 4, color.NRGBA{101, 100, 100, 255})
		opts := DefaultOptions()
		opts.Threshold = 0

		n, err := Match(a.Pix, b.Pix, nil, 4, 4, opts)
		require.NoError(t, err)
		assert.Equal(t, 16, n)
	})

	t.Run("transparent pixels blend toward white", func(t *testing.T) {
		a := solid(4, 4, color.NRGBA{0, 0, 0, 0})
		b := solid(4, 4, white)

		n, err := Match(a.Pix, b.Pix, nil, 4, 4, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestMatchOutput(t *testing.T) {
	a := solid(10, 10, white)
	b := solid(10, 10, white)
	fillRect(b, image.Rect(0, 0, 2, 2), black)
	out := make([]byte, len(a.Pix))

	n, err := Match(a.Pix, b.Pix, out, 10, 10, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, []byte{255, 0, 0, 255}, out[0:4], "differing pixel should be red")

	matching := out[(5*10+5)*4 : (5*10+5)*4+4]
	assert.Equal(t, matching[0], matching[1], "matching pixel should be gray")
	assert.Equal(t, matching[1], matching[2], "matching pixel should be gray")
	assert.Equal(t, uint8(255), matching[3])
}

func TestMatchDeterministic(t *testing.T) {
	a := solid(30, 30, white)
	b := solid(30, 30, white)
	fillRect(b, image.Rect(10, 10, 20, 15), blue)

	first, err := Match(a.Pix, b.Pix, nil, 30, 30, DefaultOptions())
	require.NoError(t, err)
	second, err := Match(a.Pix, b.Pix, nil, 30, 30, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMatchErrors(t *testing.T) {
	testCases := []struct {
		name    string
		a, b    []byte
		out     []byte
		w, h    int
		thresh  float64
		wantErr error
	}{
		{
			name:    "short baseline buffer",
			a:       make([]byte, 12),
			b:       make([]byte, 16),
			w:       2,
			h:       2,
			thresh:  0.1,
			wantErr: ErrBufferSize,
		},
		{
			name:    "short output buffer",
			a:       make([]byte, 16),
			b:       make([]byte, 16),
			out:     make([]byte, 4),
			w:       2,
			h:       2,
			thresh:  0.1,
			wantErr: ErrBufferSize,
		},
		{
			name:    "threshold above one",
			a:       make([]byte, 16),
			b:       make([]byte, 16),
			w:       2,
			h:       2,
			thresh:  1.5,
			wantErr: ErrThreshold,
		},
		{
			name:    "negative threshold",
			a:       make([]byte, 16),
			b:       make([]byte, 16),
			w:       2,
			h:       2,
			thresh:  -0.1,
			wantErr: ErrThreshold,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Threshold = tc.thresh
			_, err := Match(tc.a, tc.b, tc.out, tc.w, tc.h, opts)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestFromImage(t *testing.T) {
	t.Run("converts RGBA images", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 3, 2))
		img.Set(1, 1, color.RGBA{10, 20, 30, 255})

		buf := FromImage(img)
		assert.Equal(t, 3, buf.Width)
		assert.Equal(t, 2, buf.Height)
		require.Len(t, buf.Pix, 3*2*4)
		pos := (1*3 + 1) * 4
		assert.Equal(t, []byte{10, 20, 30, 255}, buf.Pix[pos:pos+4])
	})

	t.Run("rebases sub-images to the origin", func(t *testing.T) {
		img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
		img.Set(5, 5, color.NRGBA{1, 2, 3, 255})
		sub := img.SubImage(image.Rect(5, 5, 7, 7))

		buf := FromImage(sub)
		assert.Equal(t, image.Pt(2, 2), buf.Size())
		require.Len(t, buf.Pix, 16)
		assert.Equal(t, []byte{1, 2, 3, 255}, buf.Pix[0:4])
	})

	t.Run("round trips through ToImage", func(t *testing.T) {
		buf := solid(4, 3, red)
		img := buf.ToImage()
		assert.Equal(t, image.Rect(0, 0, 4, 3), img.Bounds())
		assert.Equal(t, color.NRGBA{255, 0, 0, 255}, img.NRGBAAt(2, 2))
	})
}
