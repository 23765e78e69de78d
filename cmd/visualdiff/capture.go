package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/xyzbank/banking-e2e/internal/capture"
	"github.com/xyzbank/banking-e2e/internal/config"
	"github.com/xyzbank/banking-e2e/internal/report"
	"github.com/xyzbank/banking-e2e/internal/visual"
)

var captureCmd = &cobra.Command{
	Use:   "capture NAME",
	Short: "Open the app, capture a region and compare it against its baseline",
	Long: `Capture navigates to the configured base URL (plus an optional route such as
"#/login"), takes a screenshot of the page, a CSS selector or a clip rectangle
and compares it against the baseline stored under NAME.

The command exits non-zero when the diff exceeds --max-diff-pixels or
--max-diff-ratio.`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

var (
	routeFlag         string
	selectorFlag      string
	clipFlag          string
	fullPageFlag      bool
	maxDiffPixelsFlag int
	maxDiffRatioFlag  float64
	reportFlag        string
)

func init() {
	captureCmd.Flags().StringVar(&routeFlag, "route", "", "Route appended to browser.base_url, e.g. #/login")
	captureCmd.Flags().StringVar(&selectorFlag, "selector", "", "Capture only the first element matching this CSS selector")
	captureCmd.Flags().StringVar(&clipFlag, "clip", "", "Capture a rectangle x,y,width,height (playwright only)")
	captureCmd.Flags().BoolVar(&fullPageFlag, "full-page", true, "Capture the full scrollable page")
	addLimitFlags(captureCmd)
	captureCmd.Flags().StringVar(&reportFlag, "report", "", "Write a report (.json, .yaml, .csv or .xlsx)")

	rootCmd.AddCommand(captureCmd)
}

func addLimitFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&maxDiffPixelsFlag, "max-diff-pixels", 0, "Fail when more pixels differ (negative disables; default from visual.max_diff_pixels)")
	cmd.Flags().Float64Var(&maxDiffRatioFlag, "max-diff-ratio", 0, "Fail when a larger fraction differs (negative disables; default from visual.max_diff_ratio)")
}

// limits resolves the pass/fail limits from flags, falling back to config.
func limits(cmd *cobra.Command, cfg *config.Config) (int, float64) {
	px, ratio := cfg.Visual.MaxDiffPixels, cfg.Visual.MaxDiffRatio
	if cmd.Flags().Changed("max-diff-pixels") {
		px = maxDiffPixelsFlag
	}
	if cmd.Flags().Changed("max-diff-ratio") {
		ratio = maxDiffRatioFlag
	}
	return px, ratio
}

func runCapture(cmd *cobra.Command, args []string) error {
	name := args[0]
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	url := strings.TrimSuffix(cfg.Browser.BaseURL, "/") + "/" + strings.TrimPrefix(routeFlag, "/")
	if routeFlag == "" {
		url = cfg.Browser.BaseURL
	}

	var handle visual.Capturer
	var closeBrowser func()
	switch strings.ToLower(cfg.Browser.Engine) {
	case "rod":
		handle, closeBrowser, err = openRod(ctx, cfg, url)
	default:
		handle, closeBrowser, err = openPlaywright(cfg, url)
	}
	if err != nil {
		return err
	}
	defer closeBrowser()

	cmp := rt.cmp
	if cmd.Flags().Changed("full-page") {
		cmp = visual.New(cmp.Store(),
			visual.WithThreshold(cmp.Threshold()),
			visual.WithCaptureOptions(visual.CaptureOptions{FullPage: fullPageFlag}),
			visual.WithLogger(slog.Default()),
			visual.WithMetrics(rt.collector),
		)
	}

	maxPx, maxRatio := limits(cmd, cfg)
	rep := report.New(maxPx, maxRatio)
	res, cmpErr := cmp.Compare(ctx, handle, name)
	entry := rep.Add(name, res, cmpErr)

	if reportFlag != "" {
		if err := rep.WriteFile(reportFlag); err != nil {
			return err
		}
	}
	if cmpErr != nil {
		return cmpErr
	}
	printResult(cmd, entry)
	if !entry.Passed {
		return errFailed
	}
	return nil
}

func printResult(cmd *cobra.Command, e report.Entry) {
	out := cmd.OutOrStdout()
	switch {
	case e.IsBaselineCreated:
		fmt.Fprintf(out, "📸 %s: baseline created (%dx%d)\n", e.Name, e.Width, e.Height)
	case e.Passed:
		fmt.Fprintf(out, "✅ %s: %d of %d pixels differ (%.4f%%)\n", e.Name, e.DiffPixels, e.TotalPixels, e.DiffRatio*100)
	default:
		fmt.Fprintf(out, "❌ %s: %d of %d pixels differ (%.4f%%)\n", e.Name, e.DiffPixels, e.TotalPixels, e.DiffRatio*100)
	}
}

func parseClip(s string) (x, y, w, h float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("clip must be x,y,width,height, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		if vals[i], err = strconv.ParseFloat(strings.TrimSpace(p), 64); err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid clip value %q: %w", p, err)
		}
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

func openPlaywright(cfg *config.Config, url string) (visual.Capturer, func(), error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("could not start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Browser.Headless),
		SlowMo:   playwright.Float(float64(cfg.Browser.SlowMo.Milliseconds())),
	})
	if err != nil {
		pw.Stop()
		return nil, nil, fmt.Errorf("could not launch browser: %w", err)
	}
	closeAll := func() {
		browser.Close()
		pw.Stop()
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  cfg.Browser.Viewport.Width,
			Height: cfg.Browser.Viewport.Height,
		},
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("could not create page: %w", err)
	}
	page.SetDefaultTimeout(float64(cfg.Browser.Timeout.Milliseconds()))

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("could not navigate to %s: %w", url, err)
	}

	switch {
	case clipFlag != "":
		x, y, w, h, err := parseClip(clipFlag)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		return capture.Clip{Page: page, X: x, Y: y, W: w, H: h}, closeAll, nil
	case selectorFlag != "":
		loc := page.Locator(selectorFlag).First()
		if err := loc.WaitFor(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("selector %q not visible: %w", selectorFlag, err)
		}
		return capture.Locator{Locator: loc}, closeAll, nil
	}
	return capture.Page{Page: page}, closeAll, nil
}

func openRod(ctx context.Context, cfg *config.Config, url string) (visual.Capturer, func(), error) {
	if clipFlag != "" {
		return nil, nil, fmt.Errorf("--clip is only supported with the playwright engine")
	}

	wsURL := cfg.Browser.ControlURL
	var l *launcher.Launcher
	if wsURL == "" {
		l = launcher.New().Headless(cfg.Browser.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).SlowMotion(cfg.Browser.SlowMo)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("browser: connect: %w", err)
	}
	closeAll := func() {
		b.Close()
		if l != nil {
			l.Kill()
		}
	}

	var page *rod.Page
	var err error
	if cfg.Browser.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("browser: new page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.Browser.Viewport.Width,
		Height:            cfg.Browser.Viewport.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("browser: set viewport: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, cfg.Browser.Timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("browser: wait load: %w", err)
	}

	if selectorFlag != "" {
		el, err := page.Context(navCtx).Element(selectorFlag)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("selector %q not found: %w", selectorFlag, err)
		}
		return capture.RodElement{Element: el}, closeAll, nil
	}
	return capture.RodPage{Page: page}, closeAll, nil
}
