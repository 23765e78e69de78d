package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/xyzbank/banking-e2e/internal/visual"
)

// RodPage captures a go-rod page. The context bounds the CDP call.
type RodPage struct {
	Page *rod.Page
}

func (r RodPage) CaptureToFile(ctx context.Context, path string, opts visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := r.Page.Context(ctx).Screenshot(opts.FullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("rod screenshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// RodElement captures a single element of a go-rod page.
type RodElement struct {
	Element *rod.Element
}

func (r RodElement) CaptureToFile(ctx context.Context, path string, _ visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := r.Element.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return fmt.Errorf("rod element screenshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}
