// Package runcache persists completed stage instances in a SQLite database
// inside the work directory, so a repeated invocation can reuse their
// outputs instead of running the tools again.
package runcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/vk/fmriflow/internal/ctxlog"
	"github.com/vk/fmriflow/internal/nodeid"
	"github.com/vk/fmriflow/internal/nodestore"
	"github.com/vk/fmriflow/internal/stage"
)

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	address      TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	outputs      TEXT NOT NULL,
	completed_at DATETIME NOT NULL
);
`

// Cache is a nodestore.Cache backed by one SQLite file.
type Cache struct {
	db   *sql.DB
	path string
}

var _ nodestore.Cache = (*Cache)(nil)

// Open opens or creates the cache database at path.
func Open(ctx context.Context, path string) (*Cache, error) {
	logger := ctxlog.FromContext(ctx)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise cache %s: %w", path, err)
	}
	logger.Debug("Run cache opened.", "path", path)
	return &Cache{db: db, path: path}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Path is the database file.
func (c *Cache) Path() string {
	return c.path
}

// Lookup returns the outputs remembered for id when they were produced by
// an invocation with the same fingerprint.
func (c *Cache) Lookup(ctx context.Context, id nodeid.Address, fingerprint string) (stage.Outputs, bool, error) {
	var stored, raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT fingerprint, outputs FROM instances WHERE address = ?`, id.String(),
	).Scan(&stored, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: %w", id.String(), err)
	}
	if stored != fingerprint {
		return nil, false, nil
	}

	var outs stage.Outputs
	if err := json.Unmarshal([]byte(raw), &outs); err != nil {
		return nil, false, fmt.Errorf("cache lookup %s: corrupt outputs: %w", id.String(), err)
	}
	return outs, true, nil
}

// Remember records the outputs of a completed instance, replacing any
// earlier entry for the same address.
func (c *Cache) Remember(ctx context.Context, id nodeid.Address, fingerprint string, outputs stage.Outputs) error {
	raw, err := json.Marshal(outputs)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO instances (address, fingerprint, outputs, completed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			outputs = excluded.outputs,
			completed_at = excluded.completed_at`,
		id.String(), fingerprint, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cache remember %s: %w", id.String(), err)
	}
	return nil
}

// Len counts the remembered instances.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances`).Scan(&n)
	return n, err
}
