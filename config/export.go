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

// Package config holds the validated, immutable description of one billing
// export dataset. All validation happens at construction; nothing here
// performs I/O.
package config

import (
	"fmt"
	"strings"

	"github.com/cardinalhq/billinglake/internal/partition"
)

// InvalidConfigError indicates a dataset description that was rejected at
// construction time.
type InvalidConfigError struct {
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return "invalid export config: " + e.Reason
}

// ExportConfig describes one billing export dataset: where it lives, which
// export schema wrote it, and how to authorize access to it. Construct with
// New; the value is immutable afterward.
type ExportConfig struct {
	Bucket    string
	Prefix    string
	Schema    partition.Schema
	TableName string

	// Inclusive date range. Both empty means "all partitions".
	DateStart string
	DateEnd   string

	// Local mirror of the remote dataset. Empty root disables local routing.
	LocalRoot   string
	PreferLocal bool

	Region       string
	Endpoint     string
	UsePathStyle bool

	Auth AuthSpec
}

// Option customizes an ExportConfig during construction.
type Option func(*ExportConfig)

// WithDateRange restricts the dataset to the inclusive [start, end] range.
// Format depends on the schema's granularity: YYYY-MM for monthly schemas,
// YYYY-MM-DD for daily ones.
func WithDateRange(start, end string) Option {
	return func(c *ExportConfig) {
		c.DateStart = start
		c.DateEnd = end
	}
}

// WithTableName overrides the logical table name the dataset is registered
// under. Defaults to "billing_data".
func WithTableName(name string) Option {
	return func(c *ExportConfig) {
		c.TableName = name
	}
}

// WithLocalMirror points the config at a local mirror root. preferLocal
// controls whether a populated mirror is used instead of remote storage.
func WithLocalMirror(root string, preferLocal bool) Option {
	return func(c *ExportConfig) {
		c.LocalRoot = root
		c.PreferLocal = preferLocal
	}
}

// WithRegion sets the AWS region used for storage access.
func WithRegion(region string) Option {
	return func(c *ExportConfig) {
		c.Region = region
	}
}

// WithEndpoint forces a custom S3 endpoint (eg MinIO, Ceph) and optionally
// path-style addressing.
func WithEndpoint(url string, pathStyle bool) Option {
	return func(c *ExportConfig) {
		c.Endpoint = url
		c.UsePathStyle = pathStyle
	}
}

// WithAuth selects the credential strategy. Defaults to DefaultChainAuth.
func WithAuth(auth AuthSpec) Option {
	return func(c *ExportConfig) {
		c.Auth = auth
	}
}

// New validates and builds an ExportConfig. Malformed bucket, prefix, schema,
// or date combinations are rejected here, never at query time.
func New(bucket, prefix string, schema partition.Schema, opts ...Option) (*ExportConfig, error) {
	cfg := &ExportConfig{
		Bucket:    bucket,
		Prefix:    normalizePrefix(prefix),
		Schema:    schema,
		TableName: "billing_data",
		Auth:      DefaultChainAuth{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Bucket == "" {
		return nil, &InvalidConfigError{Reason: "bucket is required"}
	}
	if !cfg.Schema.Valid() {
		return nil, &InvalidConfigError{Reason: fmt.Sprintf("unknown export schema %q", cfg.Schema)}
	}
	if cfg.TableName == "" {
		return nil, &InvalidConfigError{Reason: "table name must not be empty"}
	}
	if (cfg.DateStart == "") != (cfg.DateEnd == "") {
		return nil, &InvalidConfigError{Reason: "date_start and date_end must be set together"}
	}
	if cfg.DateStart != "" {
		if _, err := cfg.Schema.ParseValue(cfg.DateStart); err != nil {
			return nil, err
		}
		if _, err := cfg.Schema.ParseValue(cfg.DateEnd); err != nil {
			return nil, err
		}
	}
	if cfg.PreferLocal && cfg.LocalRoot == "" {
		return nil, &InvalidConfigError{Reason: "prefer_local requires a local mirror root"}
	}
	if err := validateAuth(cfg.Auth); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Partitions resolves the configured date range into descriptors under the
// configured prefix. Nil when no range is configured.
func (c *ExportConfig) Partitions() ([]partition.Descriptor, error) {
	return partition.PartitionsFor(c.Schema, c.Prefix, c.DateStart, c.DateEnd)
}

// HasDateRange reports whether the config restricts discovery to a range.
func (c *ExportConfig) HasDateRange() bool {
	return c.DateStart != ""
}

func normalizePrefix(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}
