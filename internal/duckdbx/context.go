// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package duckdbx wraps DuckDB as the SQL execution engine. Each query call
// owns a disposable execution Context: a fresh in-memory database instance
// with its own physical connection, registered views, and storage secret,
// torn down when the call finishes. Nothing is reused across calls.
package duckdbx

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	_ "github.com/marcboeker/go-duckdb/v2"
)

// Global mutex to serialize extension/secret DDL across the process.
// DuckDB extension loading & DDL may crash when done concurrently in many engines.
var duckdbDDLMu sync.Mutex

var (
	installOnce sync.Once
	installErr  error
)

// RemoteAccess carries what the engine needs to read s3:// URIs directly:
// the bucket scope, region, optional custom endpoint, and live credentials.
type RemoteAccess struct {
	Bucket      string
	Region      string
	Endpoint    string
	Credentials aws.Credentials
}

// Context is one disposable execution scope. Create with NewContext, always
// Close when the query call ends.
type Context struct {
	db   *sql.DB
	conn *sql.Conn
}

type contextConfig struct {
	memoryLimitMB int64
	tempDir       string
	threads       int
	remote        *RemoteAccess
}

// ContextOption configures a new execution context.
type ContextOption func(*contextConfig)

// WithMemoryLimitMB caps DuckDB memory for this context.
func WithMemoryLimitMB(limit int64) ContextOption {
	return func(c *contextConfig) {
		c.memoryLimitMB = limit
	}
}

// WithTempDirectory points DuckDB spill files at dir.
func WithTempDirectory(dir string) ContextOption {
	return func(c *contextConfig) {
		c.tempDir = dir
	}
}

// WithThreads sets the engine thread count for this context.
func WithThreads(n int) ContextOption {
	return func(c *contextConfig) {
		c.threads = n
	}
}

// WithRemoteAccess loads httpfs and seeds a storage secret so views can read
// s3:// URIs. Without this option the context reads local files only.
func WithRemoteAccess(ra RemoteAccess) ContextOption {
	return func(c *contextConfig) {
		c.remote = &ra
	}
}

// NewContext opens a fresh in-memory DuckDB instance with one physical
// connection and applies the per-context settings.
func NewContext(ctx context.Context, opts ...ContextOption) (*Context, error) {
	cfg := contextConfig{
		memoryLimitMB: envInt64("DUCKDB_MEMORY_LIMIT", 0),
		tempDir:       os.Getenv("DUCKDB_TEMP_DIRECTORY"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.remote != nil {
		if err := ensureInstall(ctx); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// one physical connection per context
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("acquire duckdb connection: %w", err)
	}

	c := &Context{db: db, conn: conn}
	if err := c.setup(ctx, &cfg); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close tears the context down; all registrations die with it.
func (c *Context) Close() error {
	var connErr, dbErr error
	if c.conn != nil {
		connErr = c.conn.Close()
	}
	if c.db != nil {
		dbErr = c.db.Close()
	}
	if connErr != nil {
		return connErr
	}
	return dbErr
}

func (c *Context) setup(ctx context.Context, cfg *contextConfig) error {
	if cfg.memoryLimitMB > 0 {
		if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%dMB';", cfg.memoryLimitMB)); err != nil {
			return fmt.Errorf("set memory_limit: %w", err)
		}
	}
	if cfg.tempDir != "" {
		if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("SET temp_directory = '%s';", escapeSingle(cfg.tempDir))); err != nil {
			return fmt.Errorf("set temp_directory: %w", err)
		}
	}
	if cfg.threads > 0 {
		if _, err := c.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA threads=%d;", cfg.threads)); err != nil {
			return fmt.Errorf("set threads: %w", err)
		}
	}
	// Keep DuckDB's object cache on to reduce repeated S3 GETs for metadata.
	if _, err := c.conn.ExecContext(ctx, "PRAGMA enable_object_cache;"); err != nil {
		return fmt.Errorf("enable_object_cache: %w", err)
	}

	if cfg.remote != nil {
		duckdbDDLMu.Lock()
		err := loadHTTPFS(ctx, c.conn)
		duckdbDDLMu.Unlock()
		if err != nil {
			return err
		}
		if err := c.seedS3Secret(ctx, cfg.remote); err != nil {
			return err
		}
	}
	return nil
}

// Dev-mode best-effort INSTALL once. Air-gapped: only LOAD.
func ensureInstall(ctx context.Context) error {
	if os.Getenv("BILLINGLAKE_EXTENSIONS_PATH") != "" {
		return nil
	}
	installOnce.Do(func() {
		db, err := sql.Open("duckdb", "")
		if err != nil {
			installErr = err
			return
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		conn, err := db.Conn(ctx)
		if err != nil {
			installErr = err
			return
		}
		defer func() { _ = conn.Close() }()
		duckdbDDLMu.Lock()
		_, _ = conn.ExecContext(ctx, "INSTALL httpfs;")
		duckdbDDLMu.Unlock()
	})
	return installErr
}

func loadHTTPFS(ctx context.Context, conn *sql.Conn) error {
	if base := os.Getenv("BILLINGLAKE_EXTENSIONS_PATH"); base != "" {
		path := os.Getenv("BILLINGLAKE_HTTPFS_EXTENSION")
		if path == "" {
			path = filepath.Join(base, "httpfs.duckdb_extension")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("httpfs extension not found at %s: %w", path, err)
		}
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("LOAD '%s';", escapeSingle(path))); err != nil {
			return fmt.Errorf("LOAD httpfs (air-gapped): %w", err)
		}
		return nil
	}
	if _, err := conn.ExecContext(ctx, "LOAD httpfs;"); err != nil {
		return fmt.Errorf("LOAD httpfs: %w", err)
	}
	return nil
}

// CREATE OR REPLACE SECRET scoped to the dataset bucket (serialized).
func (c *Context) seedS3Secret(ctx context.Context, ra *RemoteAccess) error {
	region := ra.Region
	if region == "" {
		region = "us-east-1"
	}

	endpoint := ra.Endpoint
	useSSL := "true"
	if endpoint == "" {
		endpoint = fmt.Sprintf("s3.%s.amazonaws.com", region)
	} else if strings.HasPrefix(endpoint, "http://") {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		useSSL = "false"
	} else {
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}

	secretName := "secret_" + strings.ReplaceAll(ra.Bucket, "-", "_")

	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "CREATE OR REPLACE SECRET %s (\n", quoteIdent(secretName))
	_, _ = fmt.Fprintf(&b, "  TYPE S3,\n")
	_, _ = fmt.Fprintf(&b, "  ENDPOINT '%s',\n", escapeSingle(endpoint))
	_, _ = fmt.Fprintf(&b, "  URL_STYLE 'path',\n")
	_, _ = fmt.Fprintf(&b, "  USE_SSL '%s',\n", useSSL)
	_, _ = fmt.Fprintf(&b, "  KEY_ID '%s',\n", escapeSingle(ra.Credentials.AccessKeyID))
	_, _ = fmt.Fprintf(&b, "  SECRET '%s',\n", escapeSingle(ra.Credentials.SecretAccessKey))
	if ra.Credentials.SessionToken != "" {
		_, _ = fmt.Fprintf(&b, "  SESSION_TOKEN '%s',\n", escapeSingle(ra.Credentials.SessionToken))
	}
	_, _ = fmt.Fprintf(&b, "  REGION '%s',\n", escapeSingle(region))
	_, _ = fmt.Fprintf(&b, "  SCOPE 's3://%s'\n", escapeSingle(ra.Bucket))
	_, _ = fmt.Fprintf(&b, ");")

	duckdbDDLMu.Lock()
	_, err := c.conn.ExecContext(ctx, b.String())
	duckdbDDLMu.Unlock()
	if err != nil {
		return fmt.Errorf("create storage secret: %w", err)
	}
	return nil
}

func escapeSingle(s string) string { return strings.ReplaceAll(s, `'`, `''`) }
func quoteIdent(s string) string   { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` }

func envInt64(name string, def int64) int64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
