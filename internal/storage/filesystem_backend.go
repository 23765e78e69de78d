package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

const pngExt = ".png"

// Roots holds the three directories of the on-disk snapshot layout.
type Roots struct {
	Baseline string `mapstructure:"baseline" json:"baseline" yaml:"baseline"`
	Actual   string `mapstructure:"actual" json:"actual" yaml:"actual"`
	Diff     string `mapstructure:"diff" json:"diff" yaml:"diff"`
}

// DefaultRoots returns visual-baseline, visual-actual and visual-diff under base.
func DefaultRoots(base string) Roots {
	return Roots{
		Baseline: filepath.Join(base, "visual-baseline"),
		Actual:   filepath.Join(base, "visual-actual"),
		Diff:     filepath.Join(base, "visual-diff"),
	}
}

// Dir returns the directory holding snapshots of the given kind.
func (r Roots) Dir(kind Kind) string {
	switch kind {
	case KindBaseline:
		return r.Baseline
	case KindActual:
		return r.Actual
	case KindDiff:
		return r.Diff
	}
	return ""
}

// Validate checks that every root is set.
func (r Roots) Validate() error {
	for _, kind := range Kinds {
		if r.Dir(kind) == "" {
			return fmt.Errorf("%s directory is required", kind)
		}
	}
	return nil
}

// FilesystemBackend stores each snapshot as {root}/{name}.png.
type FilesystemBackend struct {
	roots Roots

	files      atomic.Int64
	readNanos  atomic.Int64
	writeNanos atomic.Int64
}

// NewFilesystemBackend creates a new filesystem storage backend. Directories
// are created lazily by EnsureLayout.
func NewFilesystemBackend(roots Roots) *FilesystemBackend {
	return &FilesystemBackend{roots: roots}
}

// Roots returns the configured directories.
func (f *FilesystemBackend) Roots() Roots {
	return f.roots
}

// Path returns the file location of key. The name is used verbatim.
func (f *FilesystemBackend) Path(key Key) string {
	return filepath.Join(f.roots.Dir(key.Kind), key.Name+pngExt)
}

// EnsureLayout creates the three directories if they are missing.
func (f *FilesystemBackend) EnsureLayout(ctx context.Context) error {
	if err := f.roots.Validate(); err != nil {
		return err
	}
	for _, kind := range Kinds {
		if err := os.MkdirAll(f.roots.Dir(kind), 0o755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", kind, err)
		}
	}
	return nil
}

// Put writes data to the snapshot file, replacing it.
func (f *FilesystemBackend) Put(ctx context.Context, key Key, data []byte) error {
	start := time.Now()
	path := f.Path(key)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	f.files.Add(1)
	f.writeNanos.Store(int64(time.Since(start)))
	return nil
}

// Get reads the snapshot file.
func (f *FilesystemBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	start := time.Now()
	path := f.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	f.readNanos.Store(int64(time.Since(start)))
	return data, nil
}

// Exists checks if the snapshot file exists.
func (f *FilesystemBackend) Exists(ctx context.Context, key Key) (bool, error) {
	_, err := os.Stat(f.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the snapshot file.
func (f *FilesystemBackend) Delete(ctx context.Context, key Key) error {
	if err := os.Remove(f.Path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List returns the names of all PNG files in the kind's directory.
func (f *FilesystemBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	entries, err := os.ReadDir(f.roots.Dir(kind))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), pngExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), pngExt))
	}
	sort.Strings(names)
	return names, nil
}

// Copy duplicates a snapshot file byte for byte.
func (f *FilesystemBackend) Copy(ctx context.Context, src, dst Key) error {
	in, err := os.Open(f.Path(src))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", f.Path(src), ErrNotFound)
		}
		return err
	}
	defer in.Close()

	out, err := os.Create(f.Path(dst))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", f.Path(dst), err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

// GetInfo returns filesystem backend information
func (f *FilesystemBackend) GetInfo() *BackendInfo {
	return &BackendInfo{
		Name: "Filesystem",
		Type: TypeFilesystem,
		Capabilities: []string{
			"direct-path",
			"byte-copy",
		},
		Status: "active",
		Statistics: &BackendStats{
			TotalFiles:   f.files.Load(),
			ReadLatency:  time.Duration(f.readNanos.Load()),
			WriteLatency: time.Duration(f.writeNanos.Load()),
		},
	}
}

// HealthCheck verifies every root is a writable directory.
func (f *FilesystemBackend) HealthCheck(ctx context.Context) error {
	for _, kind := range Kinds {
		dir := f.roots.Dir(kind)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("%s directory unavailable: %w", kind, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", kind, dir)
		}
		testFile := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
			return fmt.Errorf("%s directory is not writable: %w", kind, err)
		}
		_ = os.Remove(testFile)
	}
	return nil
}
