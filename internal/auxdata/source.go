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

// Package auxdata fetches auxiliary reference datasets (on-demand pricing,
// savings-plan rates) and caches them as parquet files so a query can join
// them against the primary billing table. Everything here is best-effort
// from the query engine's point of view: a failed fetch means the auxiliary
// table is simply absent from that query's session.
package auxdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cardinalhq/billinglake/internal/logctx"
)

// Source is one auxiliary dataset: it knows its table name and how to fetch
// and write itself as a parquet file.
type Source interface {
	// Name is the table name the dataset registers under.
	Name() string

	// Materialize fetches the dataset and writes it as parquet at path.
	Materialize(ctx context.Context, path string) error
}

// DefaultCacheMaxAge bounds how stale a cached auxiliary file may be before
// it is refetched.
const DefaultCacheMaxAge = 24 * time.Hour

// Materializer caches materialized auxiliary files under one directory.
type Materializer struct {
	dir    string
	maxAge time.Duration
}

func NewMaterializer(dir string, maxAge time.Duration) *Materializer {
	if maxAge <= 0 {
		maxAge = DefaultCacheMaxAge
	}
	return &Materializer{dir: dir, maxAge: maxAge}
}

// Materialize returns the path of a fresh parquet file for the source,
// fetching only when the cached copy is missing or older than maxAge.
func (m *Materializer) Materialize(ctx context.Context, src Source) (string, error) {
	path := filepath.Join(m.dir, src.Name()+".parquet")

	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) < m.maxAge {
			return path, nil
		}
		logctx.FromContext(ctx).Debug("auxiliary cache stale, refetching",
			"table", src.Name(), "age", time.Since(info.ModTime()).String())
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create auxiliary cache dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := src.Materialize(ctx, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("materialize %s: %w", src.Name(), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize %s: %w", src.Name(), err)
	}
	return path, nil
}
