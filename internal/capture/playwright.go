package capture

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/xyzbank/banking-e2e/internal/visual"
)

// Page captures a Playwright page.
type Page struct {
	Page playwright.Page
}

func (p Page) CaptureToFile(ctx context.Context, path string, opts visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(opts.FullPage),
	})
	if err != nil {
		return fmt.Errorf("page screenshot: %w", err)
	}
	return nil
}

// Locator captures the bounding box of a single element. FullPage does not
// apply to element captures.
type Locator struct {
	Locator playwright.Locator
}

func (l Locator) CaptureToFile(ctx context.Context, path string, _ visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := l.Locator.Screenshot(playwright.LocatorScreenshotOptions{
		Path: playwright.String(path),
	})
	if err != nil {
		return fmt.Errorf("locator screenshot: %w", err)
	}
	return nil
}

// Clip captures a fixed rectangle of a Playwright page.
type Clip struct {
	Page playwright.Page
	X, Y float64
	W, H float64
}

func (c Clip) CaptureToFile(ctx context.Context, path string, opts visual.CaptureOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.W <= 0 || c.H <= 0 {
		return fmt.Errorf("clip %vx%v has no area", c.W, c.H)
	}
	_, err := c.Page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(opts.FullPage),
		Clip: &playwright.Rect{
			X:      c.X,
			Y:      c.Y,
			Width:  c.W,
			Height: c.H,
		},
	})
	if err != nil {
		return fmt.Errorf("clipped screenshot: %w", err)
	}
	return nil
}
