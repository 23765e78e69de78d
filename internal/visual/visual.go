// Package visual compares screenshots of named UI regions against stored
// baselines.
//
// Every logical name owns three images: the baseline (long-lived reference),
// the actual capture and the diff visualization (both rewritten on each
// comparison). A missing baseline is seeded from the first capture; existing
// baselines are only replaced by an explicit Approve.
//
// Names are used verbatim as file stems. Callers must avoid path separators
// and characters the backing store cannot hold. Concurrent comparisons of the
// same name race on the actual and diff images and are not supported;
// different names may be compared in parallel.
package visual

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrEmptyName is returned when a comparison is requested without a name.
var ErrEmptyName = errors.New("visual: snapshot name is empty")

// CaptureOptions is passed to a Capturer.
type CaptureOptions struct {
	// FullPage captures the whole scrollable area instead of the viewport.
	FullPage bool
}

// Capturer writes a PNG raster of its current state to path.
type Capturer interface {
	CaptureToFile(ctx context.Context, path string, opts CaptureOptions) error
}

// Result reports the outcome of one comparison.
type Result struct {
	Name string `json:"name" yaml:"name"`

	// IsBaselineCreated is set when no baseline existed and the capture was
	// stored as the new one. DiffPixels is then always zero.
	IsBaselineCreated bool `json:"isBaselineCreated" yaml:"isBaselineCreated"`

	// DiffPixels counts pixels whose colour delta exceeded the threshold.
	DiffPixels int `json:"diffPixels" yaml:"diffPixels"`

	TotalPixels int `json:"totalPixels" yaml:"totalPixels"`
	Width       int `json:"width" yaml:"width"`
	Height      int `json:"height" yaml:"height"`
}

// DiffRatio returns DiffPixels as a fraction of the image area.
func (r *Result) DiffRatio() float64 {
	if r.TotalPixels == 0 {
		return 0
	}
	return float64(r.DiffPixels) / float64(r.TotalPixels)
}

// Passed reports whether the comparison stays within both limits. A negative
// limit disables that check.
func (r *Result) Passed(maxDiffPixels int, maxDiffRatio float64) bool {
	if maxDiffPixels >= 0 && r.DiffPixels > maxDiffPixels {
		return false
	}
	if maxDiffRatio >= 0 && r.DiffRatio() > maxDiffRatio {
		return false
	}
	return true
}

// DimensionMismatchError is returned when baseline and actual images differ
// in size. No diff image is written in that case.
type DimensionMismatchError struct {
	Name     string
	Baseline image.Point
	Actual   image.Point
}

func (e *DimensionMismatchError) Error() string {
	subject := "images"
	if e.Name != "" {
		subject = fmt.Sprintf("snapshot %q", e.Name)
	}
	return fmt.Sprintf("visual: %s dimension mismatch: baseline is %dx%d, actual is %dx%d",
		subject, e.Baseline.X, e.Baseline.Y, e.Actual.X, e.Actual.Y)
}
