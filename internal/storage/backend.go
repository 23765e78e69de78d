package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrNotFound is returned when no snapshot is stored under a key.
var ErrNotFound = errors.New("snapshot not found")

// Kind identifies one of the three images kept per logical name.
type Kind string

const (
	// KindBaseline is the accepted reference image. It persists across runs.
	KindBaseline Kind = "baseline"
	// KindActual is the latest capture, overwritten on every comparison.
	KindActual Kind = "actual"
	// KindDiff is the latest diff visualization, overwritten on every comparison.
	KindDiff Kind = "diff"
)

// Kinds lists every snapshot kind in layout order.
var Kinds = []Kind{KindBaseline, KindActual, KindDiff}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindBaseline, KindActual, KindDiff:
		return true
	}
	return false
}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown snapshot kind: %q", s)
	}
	return k, nil
}

// Key addresses a single stored image.
type Key struct {
	Name string
	Kind Kind
}

func (k Key) String() string {
	return string(k.Kind) + "/" + k.Name + ".png"
}

// Backend defines the interface for snapshot storage backends
type Backend interface {
	// EnsureLayout prepares the backend for use. It must be idempotent.
	EnsureLayout(ctx context.Context) error

	// Put stores data under key, replacing any previous value
	Put(ctx context.Context, key Key, data []byte) error

	// Get returns the data stored under key or ErrNotFound
	Get(ctx context.Context, key Key) ([]byte, error)

	// Exists checks if a snapshot exists
	Exists(ctx context.Context, key Key) (bool, error)

	// Delete removes a snapshot. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error

	// List returns the sorted names stored for a kind
	List(ctx context.Context, kind Kind) ([]string, error)

	// GetInfo returns backend information
	GetInfo() *BackendInfo

	// HealthCheck verifies backend is operational
	HealthCheck(ctx context.Context) error
}

// PathResolver is implemented by backends that keep snapshots as files, so
// that a capturer can write straight to the final location.
type PathResolver interface {
	Path(key Key) string
}

// BackendInfo provides information about a storage backend
type BackendInfo struct {
	Name         string
	Type         string
	Capabilities []string
	Status       string
	Statistics   *BackendStats
}

// BackendStats contains usage statistics
type BackendStats struct {
	TotalFiles   int64
	TotalSize    int64
	ReadLatency  time.Duration
	WriteLatency time.Duration
}

// Factory creates storage backends based on configuration
type Factory interface {
	// Create instantiates a storage backend
	Create(backendType string, config *Config) (Backend, error)

	// Register adds a new backend type
	Register(backendType string, constructor BackendConstructor)

	// List returns available backend types
	List() []string
}

// BackendConstructor creates a new backend instance
type BackendConstructor func(config *Config) (Backend, error)

// DefaultFactory is the global storage backend factory
var DefaultFactory Factory = NewStorageFactory()

// StorageFactory implements the Factory interface
type StorageFactory struct {
	constructors map[string]BackendConstructor
}

// NewStorageFactory creates a new storage factory with the built-in backends
func NewStorageFactory() *StorageFactory {
	f := &StorageFactory{
		constructors: make(map[string]BackendConstructor),
	}
	f.Register(TypeFilesystem, func(c *Config) (Backend, error) {
		return NewFilesystemBackend(c.Roots), nil
	})
	f.Register(TypeMemory, func(c *Config) (Backend, error) {
		return NewMemoryBackend(), nil
	})
	f.Register(TypeDatabase, func(c *Config) (Backend, error) {
		if c.DB == nil {
			return nil, fmt.Errorf("database connection is required for %s backend", TypeDatabase)
		}
		return NewDatabaseBackend(c.DB), nil
	})
	f.Register(TypeRedis, func(c *Config) (Backend, error) {
		return NewRedisBackend(&c.Redis)
	})
	return f
}

// Create instantiates a storage backend
func (f *StorageFactory) Create(backendType string, config *Config) (Backend, error) {
	constructor, exists := f.constructors[backendType]
	if !exists {
		return nil, fmt.Errorf("unknown storage backend type: %s", backendType)
	}

	return constructor(config)
}

// Register adds a new backend type
func (f *StorageFactory) Register(backendType string, constructor BackendConstructor) {
	f.constructors[backendType] = constructor
}

// List returns available backend types
func (f *StorageFactory) List() []string {
	types := make([]string, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// MixedModeBackend writes to a primary backend and reads from fallbacks when
// the primary has no copy, e.g. a local cache in front of shared baselines.
type MixedModeBackend struct {
	primary   Backend
	fallbacks []Backend
}

// NewMixedModeBackend creates a backend that checks multiple storage locations
func NewMixedModeBackend(primary Backend, fallbacks ...Backend) *MixedModeBackend {
	return &MixedModeBackend{
		primary:   primary,
		fallbacks: fallbacks,
	}
}

// EnsureLayout prepares every backend
func (m *MixedModeBackend) EnsureLayout(ctx context.Context) error {
	if err := m.primary.EnsureLayout(ctx); err != nil {
		return err
	}
	for _, backend := range m.fallbacks {
		if err := backend.EnsureLayout(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Put saves to the primary backend
func (m *MixedModeBackend) Put(ctx context.Context, key Key, data []byte) error {
	return m.primary.Put(ctx, key, data)
}

// Get tries primary first, then fallbacks
func (m *MixedModeBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	data, err := m.primary.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	for _, backend := range m.fallbacks {
		data, err = backend.Get(ctx, key)
		if err == nil {
			return data, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
}

// Exists checks all backends
func (m *MixedModeBackend) Exists(ctx context.Context, key Key) (bool, error) {
	exists, err := m.primary.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}

	for _, backend := range m.fallbacks {
		if exists, err := backend.Exists(ctx, key); err == nil && exists {
			return true, nil
		}
	}

	return false, nil
}

// Delete removes from all backends
func (m *MixedModeBackend) Delete(ctx context.Context, key Key) error {
	var lastErr error

	if err := m.primary.Delete(ctx, key); err != nil {
		lastErr = err
	}

	for _, backend := range m.fallbacks {
		if err := backend.Delete(ctx, key); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// List combines results from all backends
func (m *MixedModeBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	seen := make(map[string]bool)
	names, err := m.primary.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		seen[n] = true
	}

	for _, backend := range m.fallbacks {
		fallbackNames, err := backend.List(ctx, kind)
		if err != nil {
			continue
		}
		for _, n := range fallbackNames {
			if !seen[n] {
				names = append(names, n)
				seen[n] = true
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

// Path exposes the primary backend's file layout when it has one.
func (m *MixedModeBackend) Path(key Key) string {
	if r, ok := m.primary.(PathResolver); ok {
		return r.Path(key)
	}
	return ""
}

// GetInfo returns mixed mode backend information
func (m *MixedModeBackend) GetInfo() *BackendInfo {
	return &BackendInfo{
		Name: "MixedMode",
		Type: TypeMixed,
		Capabilities: []string{
			"read-multiple",
			"write-primary",
			"fallback-support",
		},
		Status: "active",
	}
}

// HealthCheck verifies all backends are operational
func (m *MixedModeBackend) HealthCheck(ctx context.Context) error {
	if err := m.primary.HealthCheck(ctx); err != nil {
		return fmt.Errorf("primary backend unhealthy: %w", err)
	}

	// fallbacks being down only degrades reads
	for i, backend := range m.fallbacks {
		if err := backend.HealthCheck(ctx); err != nil {
			slog.Warn("fallback storage backend unhealthy", "index", i, "error", err)
		}
	}

	return nil
}
