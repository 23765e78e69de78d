package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS visual_snapshots (
    name        VARCHAR(255) NOT NULL,
    kind        VARCHAR(16)  NOT NULL,
    content     BYTEA        NOT NULL,
    checksum    VARCHAR(64)  NOT NULL,
    size_bytes  BIGINT       NOT NULL,
    change_time TIMESTAMP    NOT NULL,
    PRIMARY KEY (name, kind)
)`

// DatabaseBackend stores snapshots as rows of visual_snapshots. Queries are
// written with ? placeholders and rebound for the connected driver.
type DatabaseBackend struct {
	db *sqlx.DB
}

// NewDatabaseBackend creates a new database storage backend.
func NewDatabaseBackend(db *sqlx.DB) *DatabaseBackend {
	return &DatabaseBackend{
		db: db,
	}
}

// EnsureLayout creates the snapshot table.
func (d *DatabaseBackend) EnsureLayout(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, snapshotSchema); err != nil {
		return fmt.Errorf("failed to create visual_snapshots table: %w", err)
	}
	return nil
}

// Put upserts the snapshot row.
func (d *DatabaseBackend) Put(ctx context.Context, key Key, data []byte) error {
	hash := sha256.Sum256(data)
	checksum := hex.EncodeToString(hash[:])

	query := d.db.Rebind(`
        INSERT INTO visual_snapshots (name, kind, content, checksum, size_bytes, change_time)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (name, kind) DO UPDATE SET
            content = excluded.content,
            checksum = excluded.checksum,
            size_bytes = excluded.size_bytes,
            change_time = excluded.change_time`)

	_, err := d.db.ExecContext(ctx, query,
		key.Name,
		string(key.Kind),
		data,
		checksum,
		int64(len(data)),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}
	return nil
}

// Get loads the snapshot content.
func (d *DatabaseBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	var content []byte
	query := d.db.Rebind(`SELECT content FROM visual_snapshots WHERE name = ? AND kind = ?`)
	err := d.db.GetContext(ctx, &content, query, key.Name, string(key.Kind))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve snapshot %s: %w", key, err)
	}
	return content, nil
}

// Exists checks if a row exists for key.
func (d *DatabaseBackend) Exists(ctx context.Context, key Key) (bool, error) {
	var count int
	query := d.db.Rebind(`SELECT COUNT(*) FROM visual_snapshots WHERE name = ? AND kind = ?`)
	if err := d.db.GetContext(ctx, &count, query, key.Name, string(key.Kind)); err != nil {
		return false, fmt.Errorf("failed to check snapshot %s: %w", key, err)
	}
	return count > 0, nil
}

// Delete removes the row for key.
func (d *DatabaseBackend) Delete(ctx context.Context, key Key) error {
	query := d.db.Rebind(`DELETE FROM visual_snapshots WHERE name = ? AND kind = ?`)
	if _, err := d.db.ExecContext(ctx, query, key.Name, string(key.Kind)); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// List returns the names stored for kind.
func (d *DatabaseBackend) List(ctx context.Context, kind Kind) ([]string, error) {
	names := []string{}
	query := d.db.Rebind(`SELECT name FROM visual_snapshots WHERE kind = ? ORDER BY name`)
	if err := d.db.SelectContext(ctx, &names, query, string(kind)); err != nil {
		return nil, fmt.Errorf("failed to list %s snapshots: %w", kind, err)
	}
	return names, nil
}

// GetInfo returns database backend information.
func (d *DatabaseBackend) GetInfo() *BackendInfo {
	info := &BackendInfo{
		Name: "Database",
		Type: TypeDatabase,
		Capabilities: []string{
			"transactional",
			"checksums",
		},
		Status: "active",
	}

	var stats struct {
		Files int64         `db:"files"`
		Size  sql.NullInt64 `db:"size"`
	}
	err := d.db.Get(&stats, `SELECT COUNT(*) AS files, SUM(size_bytes) AS size FROM visual_snapshots`)
	if err == nil {
		info.Statistics = &BackendStats{TotalFiles: stats.Files, TotalSize: stats.Size.Int64}
	} else {
		info.Status = "degraded"
	}
	return info
}

// HealthCheck pings the database.
func (d *DatabaseBackend) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
