package visual

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyzbank/banking-e2e/internal/storage"
)

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	cmp, _ := newTestComparator(t)
	base := solidImage(16, 16, color.White)
	changed := withRect(base, image.Rect(0, 0, 4, 4), color.Black)
	page := &fakePage{img: base}

	_, err := cmp.Compare(ctx, page, "open-account-section")
	require.NoError(t, err)
	page.img = changed
	res, err := cmp.Compare(ctx, page, "open-account-section")
	require.NoError(t, err)
	require.Equal(t, 16, res.DiffPixels)

	_, err = cmp.Compare(ctx, &fakePage{img: base}, "customer-login-panel")
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		statuses, err := cmp.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []SnapshotStatus{
			{Name: "customer-login-panel", HasBaseline: true, HasActual: true},
			{Name: "open-account-section", HasBaseline: true, HasActual: true, HasDiff: true},
		}, statuses)
	})

	t.Run("image", func(t *testing.T) {
		data, err := cmp.Image(ctx, "open-account-section", storage.KindActual)
		require.NoError(t, err)
		assert.Equal(t, encode(t, changed), data)

		_, err = cmp.Image(ctx, "missing", storage.KindBaseline)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("approve promotes actual", func(t *testing.T) {
		require.NoError(t, cmp.Approve(ctx, "open-account-section"))

		baseline, err := cmp.Image(ctx, "open-account-section", storage.KindBaseline)
		require.NoError(t, err)
		assert.Equal(t, encode(t, changed), baseline)

		_, err = cmp.Image(ctx, "open-account-section", storage.KindDiff)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		res, err := cmp.Compare(ctx, page, "open-account-section")
		require.NoError(t, err)
		assert.Equal(t, 0, res.DiffPixels)
	})

	t.Run("approve without actual", func(t *testing.T) {
		err := cmp.Approve(ctx, "never-captured")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("clean keeps baselines", func(t *testing.T) {
		removed, err := cmp.Clean(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, removed)

		statuses, err := cmp.List(ctx)
		require.NoError(t, err)
		for _, st := range statuses {
			assert.True(t, st.HasBaseline, st.Name)
			assert.False(t, st.HasActual, st.Name)
			assert.False(t, st.HasDiff, st.Name)
		}
	})

	t.Run("reset seeds a new baseline", func(t *testing.T) {
		require.NoError(t, cmp.Reset(ctx, "customer-login-panel"))

		res, err := cmp.Compare(ctx, &fakePage{img: changed}, "customer-login-panel")
		require.NoError(t, err)
		assert.True(t, res.IsBaselineCreated)
	})

	t.Run("empty names", func(t *testing.T) {
		assert.ErrorIs(t, cmp.Approve(ctx, ""), ErrEmptyName)
		assert.ErrorIs(t, cmp.Reset(ctx, ""), ErrEmptyName)
		_, err := cmp.Image(ctx, "", storage.KindDiff)
		assert.ErrorIs(t, err, ErrEmptyName)
	})
}

func TestResultRatio(t *testing.T) {
	r := &Result{DiffPixels: 5, TotalPixels: 100}
	assert.InDelta(t, 0.05, r.DiffRatio(), 1e-9)
	assert.True(t, r.Passed(5, 0.05))
	assert.False(t, r.Passed(4, -1))
	assert.False(t, r.Passed(-1, 0.01))

	empty := &Result{IsBaselineCreated: true}
	assert.Equal(t, 0.0, empty.DiffRatio())
	assert.True(t, empty.Passed(0, 0))
}
