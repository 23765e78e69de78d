package visual

import (
	"context"
	"fmt"
	"sort"

	"github.com/xyzbank/banking-e2e/internal/storage"
)

// SnapshotStatus summarizes which images exist for a name.
type SnapshotStatus struct {
	Name        string `json:"name" yaml:"name"`
	HasBaseline bool   `json:"hasBaseline" yaml:"hasBaseline"`
	HasActual   bool   `json:"hasActual" yaml:"hasActual"`
	HasDiff     bool   `json:"hasDiff" yaml:"hasDiff"`
}

// List returns the status of every name known to the store, sorted by name.
func (c *Comparator) List(ctx context.Context) ([]SnapshotStatus, error) {
	byName := make(map[string]*SnapshotStatus)
	for _, kind := range storage.Kinds {
		names, err := c.store.List(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("list %s snapshots: %w", kind, err)
		}
		for _, n := range names {
			st, ok := byName[n]
			if !ok {
				st = &SnapshotStatus{Name: n}
				byName[n] = st
			}
			switch kind {
			case storage.KindBaseline:
				st.HasBaseline = true
			case storage.KindActual:
				st.HasActual = true
			case storage.KindDiff:
				st.HasDiff = true
			}
		}
	}

	out := make([]SnapshotStatus, 0, len(byName))
	for _, st := range byName {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Image returns the stored PNG of the given kind.
func (c *Comparator) Image(ctx context.Context, name string, kind storage.Kind) ([]byte, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	return c.store.Get(ctx, storage.Key{Name: name, Kind: kind})
}

// Approve replaces the baseline of name with its latest actual capture and
// drops the stale diff. This is the only way an existing baseline changes.
func (c *Comparator) Approve(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	actual, err := c.store.Get(ctx, storage.Key{Name: name, Kind: storage.KindActual})
	if err != nil {
		return fmt.Errorf("approve %q: %w", name, err)
	}
	if err := c.store.Put(ctx, storage.Key{Name: name, Kind: storage.KindBaseline}, actual); err != nil {
		return fmt.Errorf("approve %q: %w", name, err)
	}
	if err := c.store.Delete(ctx, storage.Key{Name: name, Kind: storage.KindDiff}); err != nil {
		return fmt.Errorf("approve %q: remove diff: %w", name, err)
	}
	c.logger.Info("visual baseline approved", "name", name)
	return nil
}

// Reset deletes the baseline of name so the next comparison seeds a new one.
func (c *Comparator) Reset(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if err := c.store.Delete(ctx, storage.Key{Name: name, Kind: storage.KindBaseline}); err != nil {
		return fmt.Errorf("reset %q: %w", name, err)
	}
	c.logger.Info("visual baseline reset", "name", name)
	return nil
}

// Clean removes every actual and diff image and returns how many were
// deleted. Baselines are left untouched.
func (c *Comparator) Clean(ctx context.Context) (int, error) {
	removed := 0
	for _, kind := range []storage.Kind{storage.KindActual, storage.KindDiff} {
		names, err := c.store.List(ctx, kind)
		if err != nil {
			return removed, fmt.Errorf("list %s snapshots: %w", kind, err)
		}
		for _, n := range names {
			if err := c.store.Delete(ctx, storage.Key{Name: n, Kind: kind}); err != nil {
				return removed, fmt.Errorf("delete %s/%s: %w", kind, n, err)
			}
			removed++
		}
	}
	c.logger.Info("visual artifacts cleaned", "removed", removed)
	return removed, nil
}
