// Package capture adapts browser automation handles to visual.Capturer.
package capture

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/xyzbank/banking-e2e/internal/visual"
)

// Func adapts a plain function to visual.Capturer.
type Func func(ctx context.Context, path string, opts visual.CaptureOptions) error

func (f Func) CaptureToFile(ctx context.Context, path string, opts visual.CaptureOptions) error {
	return f(ctx, path, opts)
}

// File "captures" by copying an existing PNG, for comparing screenshots
// taken outside this tool.
type File struct {
	Source string
}

func (f File) CaptureToFile(ctx context.Context, path string, _ visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in, err := os.Open(f.Source)
	if err != nil {
		return fmt.Errorf("open source image: %w", err)
	}
	defer in.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy source image: %w", err)
	}
	return out.Close()
}
