package visual

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/xyzbank/banking-e2e/internal/metrics"
	"github.com/xyzbank/banking-e2e/internal/storage"
	"github.com/xyzbank/banking-e2e/internal/visual/pixeldiff"
)

// Comparator captures named regions and diffs them against their baselines.
type Comparator struct {
	store      storage.Backend
	threshold  float64
	capture    CaptureOptions
	stagingDir string
	logger     *slog.Logger
	metrics    *metrics.Collector
}

// Option configures a Comparator.
type Option func(*Comparator)

// WithThreshold sets the per-pixel matching threshold (0-1).
func WithThreshold(threshold float64) Option {
	return func(c *Comparator) { c.threshold = threshold }
}

// WithCaptureOptions overrides the options passed to the capturer.
func WithCaptureOptions(opts CaptureOptions) Option {
	return func(c *Comparator) { c.capture = opts }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparator) { c.logger = logger }
}

// WithMetrics records every comparison on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Comparator) { c.metrics = collector }
}

// WithStagingDir sets where captures are staged for stores that have no
// file path of their own. Defaults to os.TempDir().
func WithStagingDir(dir string) Option {
	return func(c *Comparator) { c.stagingDir = dir }
}

// New creates a comparator over store.
func New(store storage.Backend, opts ...Option) *Comparator {
	c := &Comparator{
		store:     store,
		threshold: pixeldiff.DefaultThreshold,
		capture:   CaptureOptions{FullPage: true},
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewForRoots creates a comparator keeping its images on disk under roots.
func NewForRoots(roots storage.Roots, opts ...Option) *Comparator {
	return New(storage.NewFilesystemBackend(roots), opts...)
}

// Store returns the backing snapshot store.
func (c *Comparator) Store() storage.Backend {
	return c.store
}

// Threshold returns the configured matching threshold.
func (c *Comparator) Threshold() float64 {
	return c.threshold
}

// Compare captures handle as the actual image for name and compares it with
// the stored baseline. Visual differences are reported through
// Result.DiffPixels, never as an error; errors are capture, storage or
// decode failures and dimension mismatches.
func (c *Comparator) Compare(ctx context.Context, handle Capturer, name string) (res *Result, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.OutcomeError
		diffPixels := 0
		switch {
		case err != nil:
			c.logger.Error("visual comparison failed", "name", name, "error", err)
		case res.IsBaselineCreated:
			outcome = metrics.OutcomeBaselineCreated
		case res.DiffPixels == 0:
			outcome = metrics.OutcomeMatch
		default:
			outcome = metrics.OutcomeMismatch
			diffPixels = res.DiffPixels
		}
		c.metrics.Observe(outcome, diffPixels, time.Since(start))
	}()

	if name == "" {
		return nil, ErrEmptyName
	}

	if err := c.store.EnsureLayout(ctx); err != nil {
		return nil, fmt.Errorf("prepare snapshot store: %w", err)
	}

	actualKey := storage.Key{Name: name, Kind: storage.KindActual}
	baselineKey := storage.Key{Name: name, Kind: storage.KindBaseline}
	diffKey := storage.Key{Name: name, Kind: storage.KindDiff}

	actual, err := c.captureActual(ctx, handle, actualKey)
	if err != nil {
		return nil, err
	}

	exists, err := c.store.Exists(ctx, baselineKey)
	if err != nil {
		return nil, fmt.Errorf("check baseline %q: %w", name, err)
	}
	if !exists {
		if err := c.seedBaseline(ctx, actualKey, baselineKey, actual); err != nil {
			return nil, fmt.Errorf("create baseline %q: %w", name, err)
		}
		c.logger.Info("visual baseline created", "name", name)
		res = &Result{Name: name, IsBaselineCreated: true}
		if cfg, err := png.DecodeConfig(bytes.NewReader(actual)); err == nil {
			res.Width, res.Height = cfg.Width, cfg.Height
			res.TotalPixels = cfg.Width * cfg.Height
		}
		return res, nil
	}

	baseline, err := c.store.Get(ctx, baselineKey)
	if err != nil {
		return nil, fmt.Errorf("read baseline %q: %w", name, err)
	}

	diff, err := CompareImages(baseline, actual, c.threshold)
	if err != nil {
		var dim *DimensionMismatchError
		if errors.As(err, &dim) {
			dim.Name = name
			return nil, dim
		}
		return nil, fmt.Errorf("compare %q: %w", name, err)
	}

	if err := c.store.Put(ctx, diffKey, diff.PNG); err != nil {
		return nil, fmt.Errorf("write diff %q: %w", name, err)
	}

	res = &Result{
		Name:        name,
		DiffPixels:  diff.Pixels,
		TotalPixels: diff.Width * diff.Height,
		Width:       diff.Width,
		Height:      diff.Height,
	}
	c.logger.Info("visual comparison complete",
		"name", name,
		"diff_pixels", res.DiffPixels,
		"total_pixels", res.TotalPixels,
		"threshold", c.threshold,
	)
	return res, nil
}

// captureActual writes a fresh capture to the actual slot and returns its
// bytes. File-backed stores receive the capture in place; other stores get
// it through a staging file.
func (c *Comparator) captureActual(ctx context.Context, handle Capturer, key storage.Key) ([]byte, error) {
	if resolver, ok := c.store.(storage.PathResolver); ok {
		if path := resolver.Path(key); path != "" {
			if err := handle.CaptureToFile(ctx, path, c.capture); err != nil {
				return nil, fmt.Errorf("capture %q: %w", key.Name, err)
			}
			data, err := c.store.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("read capture %q: %w", key.Name, err)
			}
			return data, nil
		}
	}

	dir := c.stagingDir
	if dir == "" {
		dir = os.TempDir()
	}
	staging := filepath.Join(dir, "visual-"+uuid.NewString()+".png")
	defer os.Remove(staging)

	if err := handle.CaptureToFile(ctx, staging, c.capture); err != nil {
		return nil, fmt.Errorf("capture %q: %w", key.Name, err)
	}
	data, err := os.ReadFile(staging)
	if err != nil {
		return nil, fmt.Errorf("read capture %q: %w", key.Name, err)
	}
	if err := c.store.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("store capture %q: %w", key.Name, err)
	}
	return data, nil
}

type copier interface {
	Copy(ctx context.Context, src, dst storage.Key) error
}

func (c *Comparator) seedBaseline(ctx context.Context, actualKey, baselineKey storage.Key, actual []byte) error {
	if cp, ok := c.store.(copier); ok {
		return cp.Copy(ctx, actualKey, baselineKey)
	}
	return c.store.Put(ctx, baselineKey, actual)
}
