package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyzbank/banking-e2e/internal/visual"
)

func newRodPage(t *testing.T) *rod.Page {
	t.Helper()
	if os.Getenv("SKIP_BROWSER") == "true" {
		t.Skip("Skipping browser test")
	}
	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		t.Skipf("Could not launch Chrome: %v", err)
	}
	t.Cleanup(l.Kill)

	b := rod.New().ControlURL(u)
	require.NoError(t, b.Connect())
	t.Cleanup(func() { _ = b.Close() })

	page, err := b.Page(proto.TargetCreateTarget{URL: ""})
	require.NoError(t, err)
	require.NoError(t, page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width: 640, Height: 480, DeviceScaleFactor: 1,
	}))
	require.NoError(t, page.SetDocumentContent(loginHTML))
	return page
}

func TestRodCapturers(t *testing.T) {
	page := newRodPage(t)
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("page", func(t *testing.T) {
		path := filepath.Join(dir, "page.png")
		require.NoError(t, RodPage{Page: page}.CaptureToFile(ctx, path, visual.CaptureOptions{}))
		w, h := decodeSize(t, path)
		assert.Equal(t, 640, w)
		assert.Equal(t, 480, h)
	})

	t.Run("element", func(t *testing.T) {
		el, err := page.Element("form#login")
		require.NoError(t, err)
		path := filepath.Join(dir, "form.png")
		require.NoError(t, RodElement{Element: el}.CaptureToFile(ctx, path, visual.CaptureOptions{}))
		w, h := decodeSize(t, path)
		assert.Equal(t, 200, w)
		assert.Equal(t, 100, h)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RodPage{Page: page}.CaptureToFile(cctx, filepath.Join(dir, "x.png"), visual.CaptureOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
