package helpers

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/xyzbank/banking-e2e/tests/e2e/config"
)

// BrowserHelper provides browser setup and teardown for tests
type BrowserHelper struct {
	Playwright *playwright.Playwright
	Browser    playwright.Browser
	Context    playwright.BrowserContext
	Page       playwright.Page
	Config     *config.TestConfig
	t          *testing.T
}

// NewBrowserHelper creates a new browser helper instance
func NewBrowserHelper(t *testing.T) *BrowserHelper {
	return &BrowserHelper{
		Config: config.GetConfig(),
		t:      t,
	}
}

// SetupOrSkip starts the browser or skips the test when no browser or app
// is available.
func (b *BrowserHelper) SetupOrSkip() {
	b.t.Helper()
	if os.Getenv("SKIP_BROWSER") == "true" {
		b.t.Skip("Skipping browser test (SKIP_BROWSER=true)")
	}
	if !b.Config.Reachable {
		b.t.Skipf("Skipping browser test: %s is not reachable", b.Config.BaseURL)
	}
	if err := b.Setup(); err != nil {
		b.TearDown()
		b.t.Skipf("Skipping browser test: %v", err)
	}
	b.t.Cleanup(b.TearDown)
}

// Setup initializes the browser and creates a new page
func (b *BrowserHelper) Setup() error {
	if os.Getenv("PLAYWRIGHT_PREINSTALLED") != "1" {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return fmt.Errorf("could not install playwright browsers: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("could not start playwright: %w", err)
	}
	b.Playwright = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(b.Config.Headless),
		SlowMo:   playwright.Float(float64(b.Config.SlowMo)),
	})
	if err != nil {
		return fmt.Errorf("could not launch browser: %w", err)
	}
	b.Browser = browser

	// Fixed viewport and scale keep captures comparable between runs.
	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 720,
		},
		DeviceScaleFactor: playwright.Float(1),
	})
	if err != nil {
		return fmt.Errorf("could not create context: %w", err)
	}
	b.Context = context

	page, err := context.NewPage()
	if err != nil {
		return fmt.Errorf("could not create page: %w", err)
	}
	b.Page = page
	page.SetDefaultTimeout(float64(b.Config.Timeout.Milliseconds()))

	return nil
}

// TearDown closes the browser and cleans up resources
func (b *BrowserHelper) TearDown() {
	if b.t.Failed() && b.Config.Screenshots && b.Page != nil {
		screenshotPath := filepath.Join("test-results", "screenshots",
			fmt.Sprintf("%s_%d.png", regexp.MustCompile(`[^A-Za-z0-9_-]`).ReplaceAllString(b.t.Name(), "_"), time.Now().Unix()))
		_, _ = b.Page.Screenshot(playwright.PageScreenshotOptions{
			Path: playwright.String(screenshotPath),
		})
	}

	if b.Page != nil {
		b.Page.Close()
		b.Page = nil
	}
	if b.Context != nil {
		b.Context.Close()
		b.Context = nil
	}
	if b.Browser != nil {
		b.Browser.Close()
		b.Browser = nil
	}
	if b.Playwright != nil {
		b.Playwright.Stop()
		b.Playwright = nil
	}
}

// NavigateTo navigates to a route relative to the base URL, e.g. "#/login".
func (b *BrowserHelper) NavigateTo(route string) error {
	url := b.Config.BaseURL + route
	if _, err := b.Page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitForAngular waits until the single-page app has no requests in flight.
func (b *BrowserHelper) WaitForAngular() error {
	return b.Page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}
