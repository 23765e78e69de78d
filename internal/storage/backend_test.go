package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newSQLiteDB opens an in-memory database with the cgo ("sqlite3") or
// pure Go ("sqlite") driver.
func newSQLiteDB(t *testing.T, driver string) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open(driver, ":memory:")
	require.NoError(t, err)
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	backend := NewRedisBackendWithClient(client, "visual-test:"+t.Name()+":", 0)
	t.Cleanup(func() {
		ctx := context.Background()
		for _, kind := range Kinds {
			names, _ := backend.List(ctx, kind)
			for _, n := range names {
				_ = backend.Delete(ctx, Key{Name: n, Kind: kind})
			}
		}
		_ = backend.Close()
	})
	return backend
}

func backends(t *testing.T) map[string]func(t *testing.T) Backend {
	return map[string]func(t *testing.T) Backend{
		"filesystem": func(t *testing.T) Backend {
			return NewFilesystemBackend(DefaultRoots(t.TempDir()))
		},
		"memory": func(t *testing.T) Backend {
			return NewMemoryBackend()
		},
		"database": func(t *testing.T) Backend {
			return NewDatabaseBackend(newSQLiteDB(t, "sqlite3"))
		},
		"database (pure go sqlite)": func(t *testing.T) Backend {
			return NewDatabaseBackend(newSQLiteDB(t, "sqlite"))
		},
		"redis": func(t *testing.T) Backend {
			return newRedisBackend(t)
		},
	}
}

func TestBackendContract(t *testing.T) {
	for name, factory := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			backend := factory(t)
			require.NoError(t, backend.EnsureLayout(ctx))
			require.NoError(t, backend.EnsureLayout(ctx), "EnsureLayout must be idempotent")

			login := Key{Name: "login-page", Kind: KindBaseline}

			t.Run("missing key", func(t *testing.T) {
				exists, err := backend.Exists(ctx, login)
				require.NoError(t, err)
				assert.False(t, exists)

				_, err = backend.Get(ctx, login)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("put and get", func(t *testing.T) {
				require.NoError(t, backend.Put(ctx, login, []byte("png-1")))

				exists, err := backend.Exists(ctx, login)
				require.NoError(t, err)
				assert.True(t, exists)

				data, err := backend.Get(ctx, login)
				require.NoError(t, err)
				assert.Equal(t, []byte("png-1"), data)
			})

			t.Run("put replaces", func(t *testing.T) {
				require.NoError(t, backend.Put(ctx, login, []byte("png-2")))
				data, err := backend.Get(ctx, login)
				require.NoError(t, err)
				assert.Equal(t, []byte("png-2"), data)
			})

			t.Run("kinds are isolated", func(t *testing.T) {
				exists, err := backend.Exists(ctx, Key{Name: "login-page", Kind: KindActual})
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("list is sorted per kind", func(t *testing.T) {
				require.NoError(t, backend.Put(ctx, Key{Name: "add-customer-form", Kind: KindBaseline}, []byte("a")))
				require.NoError(t, backend.Put(ctx, Key{Name: "deposit", Kind: KindDiff}, []byte("d")))

				names, err := backend.List(ctx, KindBaseline)
				require.NoError(t, err)
				assert.Equal(t, []string{"add-customer-form", "login-page"}, names)

				names, err = backend.List(ctx, KindDiff)
				require.NoError(t, err)
				assert.Equal(t, []string{"deposit"}, names)

				names, err = backend.List(ctx, KindActual)
				require.NoError(t, err)
				assert.Empty(t, names)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, backend.Delete(ctx, login))
				require.NoError(t, backend.Delete(ctx, login), "deleting twice is not an error")

				exists, err := backend.Exists(ctx, login)
				require.NoError(t, err)
				assert.False(t, exists)
			})

			t.Run("health and info", func(t *testing.T) {
				assert.NoError(t, backend.HealthCheck(ctx))
				info := backend.GetInfo()
				require.NotNil(t, info)
				assert.NotEmpty(t, info.Type)
			})
		})
	}
}

func TestFilesystemBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("layout matches roots", func(t *testing.T) {
		base := t.TempDir()
		backend := NewFilesystemBackend(DefaultRoots(base))
		require.NoError(t, backend.EnsureLayout(ctx))

		for _, dir := range []string{"visual-baseline", "visual-actual", "visual-diff"} {
			info, err := os.Stat(filepath.Join(base, dir))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}

		key := Key{Name: "open-account-section", Kind: KindActual}
		assert.Equal(t, filepath.Join(base, "visual-actual", "open-account-section.png"), backend.Path(key))
	})

	t.Run("copy is byte for byte", func(t *testing.T) {
		backend := NewFilesystemBackend(DefaultRoots(t.TempDir()))
		require.NoError(t, backend.EnsureLayout(ctx))

		payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
		src := Key{Name: "x", Kind: KindActual}
		dst := Key{Name: "x", Kind: KindBaseline}
		require.NoError(t, backend.Put(ctx, src, payload))
		require.NoError(t, backend.Copy(ctx, src, dst))

		got, err := os.ReadFile(backend.Path(dst))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("copy of missing source", func(t *testing.T) {
		backend := NewFilesystemBackend(DefaultRoots(t.TempDir()))
		require.NoError(t, backend.EnsureLayout(ctx))
		err := backend.Copy(ctx, Key{Name: "nope", Kind: KindActual}, Key{Name: "nope", Kind: KindBaseline})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list ignores non png files", func(t *testing.T) {
		roots := DefaultRoots(t.TempDir())
		backend := NewFilesystemBackend(roots)
		require.NoError(t, backend.EnsureLayout(ctx))
		require.NoError(t, os.WriteFile(filepath.Join(roots.Baseline, "notes.txt"), []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(roots.Baseline, "a.png"), []byte("x"), 0o644))

		names, err := backend.List(ctx, KindBaseline)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, names)
	})

	t.Run("write into missing directory fails", func(t *testing.T) {
		backend := NewFilesystemBackend(DefaultRoots(filepath.Join(t.TempDir(), "missing")))
		err := backend.Put(ctx, Key{Name: "a", Kind: KindActual}, []byte("x"))
		assert.Error(t, err)
	})

	t.Run("empty roots are rejected", func(t *testing.T) {
		backend := NewFilesystemBackend(Roots{})
		assert.Error(t, backend.EnsureLayout(ctx))
	})
}

func TestMixedModeBackend(t *testing.T) {
	ctx := context.Background()
	primary := NewMemoryBackend()
	shared := NewMemoryBackend()
	mixed := NewMixedModeBackend(primary, shared)

	key := Key{Name: "customer-login-panel", Kind: KindBaseline}
	require.NoError(t, shared.Put(ctx, key, []byte("shared")))

	t.Run("reads fall back", func(t *testing.T) {
		exists, err := mixed.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)

		data, err := mixed.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("shared"), data)
	})

	t.Run("writes go to primary", func(t *testing.T) {
		require.NoError(t, mixed.Put(ctx, key, []byte("local")))
		data, err := primary.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("local"), data)

		data, err = shared.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("shared"), data)
	})

	t.Run("list merges names", func(t *testing.T) {
		require.NoError(t, shared.Put(ctx, Key{Name: "deposit-panel", Kind: KindBaseline}, []byte("x")))
		names, err := mixed.List(ctx, KindBaseline)
		require.NoError(t, err)
		assert.Equal(t, []string{"customer-login-panel", "deposit-panel"}, names)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		_, err := mixed.Get(ctx, Key{Name: "unknown", Kind: KindDiff})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no path without a file backend", func(t *testing.T) {
		assert.Empty(t, mixed.Path(key))
	})
}

func TestParseKind(t *testing.T) {
	for _, kind := range Kinds {
		got, err := ParseKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}
	_, err := ParseKind("thumbnail")
	assert.Error(t, err)
}
