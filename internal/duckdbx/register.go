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

package duckdbx

import (
	"context"
	"fmt"
	"strings"

	"github.com/cardinalhq/billinglake/internal/discovery"
)

// RegisterFileSet binds a discovered file set to a named view inside this
// context, creating or replacing the relation. The set must be non-empty and
// single-format; discovery enforces both before we get here.
func (c *Context) RegisterFileSet(ctx context.Context, name string, fs *discovery.FileSet) error {
	if fs == nil || len(fs.Files) == 0 {
		return discovery.ErrEmptyFileSet
	}

	var reader string
	switch fs.Format {
	case discovery.FormatParquet:
		reader = fmt.Sprintf("read_parquet(%s, union_by_name=true)", fileList(fs.Files))
	case discovery.FormatCSV:
		reader = fmt.Sprintf("read_csv_auto(%s, union_by_name=true, header=true)", fileList(fs.Files))
	default:
		return &discovery.MixedFormatError{Have: string(fs.Format), Got: "unknown", Location: fs.Files[0]}
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s;", quoteIdent(name), reader)
	if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("register table %s: %w", name, err)
	}
	return nil
}

// RegisterParquet binds a single materialized parquet file (an auxiliary
// reference table) to a named view.
func (c *Context) RegisterParquet(ctx context.Context, name, path string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s');",
		quoteIdent(name), escapeSingle(path))
	if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("register auxiliary table %s: %w", name, err)
	}
	return nil
}

func fileList(files []string) string {
	quoted := make([]string, len(files))
	for i, f := range files {
		quoted[i] = "'" + escapeSingle(f) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
